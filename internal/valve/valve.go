package valve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Dispatcher delivers valve commands to whatever actuator a room has.
// "position" actuators take the raw 0-255 position. "setpoint" actuators
// cannot be positioned directly, so the position is emulated by commanding
// a setpoint between the room's configured temperature bounds. "log" only
// records the command, which is useful for dry runs and rooms under
// commissioning.
type Dispatcher struct {
	client *http.Client
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Dispatcher) Set(room model.Room, position int) error {
	switch room.ActuatorType {
	case "position":
		return d.post(room.ActuatorURL, map[string]interface{}{
			"position": position,
		})
	case "setpoint":
		return d.post(room.ActuatorURL, map[string]interface{}{
			"setpoint": emulatedSetpoint(room, position),
		})
	default:
		log.Info().
			Str("room", room.ID).
			Int("position", position).
			Msg("Valve command (log driver)")
		return nil
	}
}

// emulatedSetpoint maps a valve position onto the room's temperature bounds:
// closed commands MinTemp, fully open commands MaxTemp. One decimal is all
// the actuators accept.
func emulatedSetpoint(room model.Room, position int) float64 {
	frac := float64(position) / model.ValveOpen
	sp := room.MinTemp + frac*(room.MaxTemp-room.MinTemp)
	return math.Round(sp*10) / 10
}

func (d *Dispatcher) post(url string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal valve command: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create valve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send valve command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("valve endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
