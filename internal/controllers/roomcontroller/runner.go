package roomcontroller

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/db"
	"github.com/thatsimonsguy/trv-controller/internal/datadog"
	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// SensorSource serves the latest known reading for a sensor id. A false
// return means the reading is absent or stale.
type SensorSource interface {
	Get(id string) (float64, bool)
}

// ValveDriver is the downstream actuator boundary. It receives the 0-255
// command; whether that becomes a direct position write or an emulated
// setpoint is the driver's business.
type ValveDriver interface {
	Set(room model.Room, position int) error
}

// Notifier sends push notifications for noteworthy events.
type Notifier interface {
	Send(title, message string) error
}

type Deps struct {
	DB       *sql.DB
	Sensors  SensorSource
	Valves   ValveDriver
	Registry *Registry
	Notifier Notifier

	FlowSensorID    string
	OutdoorSensorID string
	PollInterval    time.Duration
}

// Run starts the per-room control loop. Each room gets its own goroutine and
// its own Controller; rooms share nothing mutable, so they need no
// coordination.
func Run(room model.Room, ctrl *Controller, deps Deps) {
	go func() {
		log.Info().Str("room", room.ID).Msg("Starting room controller")

		// Re-seed persisted user state, then run one immediate tick with
		// first-run semantics before settling into the poll cadence.
		settings, err := db.GetRoomByID(deps.DB, room.ID)
		if err != nil {
			log.Error().Err(err).Str("room", room.ID).Msg("Could not restore room settings")
			settings = &room
		}
		ctrl.Restore(settings.TargetTemp, settings.Mode, time.Now())
		lastMode := settings.Mode
		wasOpen := false

		wasOpen = tick(room, ctrl, deps, settings, nil, wasOpen)
		lastMode = persistMode(deps.DB, room.ID, ctrl.Mode(), lastMode)

		for {
			time.Sleep(deps.PollInterval)

			settings, err := db.GetRoomByID(deps.DB, room.ID)
			if err != nil {
				log.Error().Err(err).Str("room", room.ID).Msg("Could not retrieve room settings")
				continue
			}

			var cmd *model.Mode
			if settings.Mode != lastMode {
				m := settings.Mode
				cmd = &m
				lastMode = settings.Mode
			}

			wasOpen = tick(room, ctrl, deps, settings, cmd, wasOpen)
			lastMode = persistMode(deps.DB, room.ID, ctrl.Mode(), lastMode)
		}
	}()
}

// persistMode writes a controller-initiated mode change (a boost reaching
// its deadline, a garbage persisted mode the controller refused) back to the
// rooms table. Without the write-back the table and the API would report the
// old mode forever, and the next restart would restore into it.
func persistMode(conn *sql.DB, roomID string, mode, lastMode model.Mode) model.Mode {
	if mode == lastMode {
		return lastMode
	}
	if err := db.UpdateRoomMode(conn, roomID, mode); err != nil {
		log.Error().Err(err).Str("room", roomID).Str("mode", string(mode)).Msg("Could not persist mode change")
		return lastMode
	}
	log.Info().Str("room", roomID).Str("mode", string(mode)).Msg("Mode change persisted")
	return mode
}

func tick(room model.Room, ctrl *Controller, deps Deps, settings *model.Room, cmd *model.Mode, wasOpen bool) bool {
	in := model.TickInput{
		Now:         time.Now(),
		TargetTemp:  settings.TargetTemp,
		ModeCommand: cmd,
	}
	if v, ok := deps.Sensors.Get(room.SensorID); ok {
		in.CurrentTemp = &v
	}
	if deps.FlowSensorID != "" {
		if v, ok := deps.Sensors.Get(deps.FlowSensorID); ok {
			in.FlowTemp = &v
		}
	}
	if deps.OutdoorSensorID != "" {
		if v, ok := deps.Sensors.Get(deps.OutdoorSensorID); ok {
			in.OutdoorTemp = &v
		}
	}

	out := ctrl.Tick(in)

	if out.ValveCommand != nil {
		if err := deps.Valves.Set(room, *out.ValveCommand); err != nil {
			// The controller keeps its computed state; the send is retried
			// naturally when the next tick authorizes one.
			log.Error().Err(err).Str("room", room.ID).Int("position", *out.ValveCommand).Msg("Valve command failed")
		} else {
			log.Debug().Str("room", room.ID).Int("position", *out.ValveCommand).Msg("Valve command sent")
		}
	}

	if in.CurrentTemp != nil {
		datadog.Gauge("room.temperature", *in.CurrentTemp, "component:sensor", fmt.Sprintf("room:%s", room.ID))
	}
	datadog.Gauge("room.valve_position", float64(out.Diagnostics.DesiredValvePosition), fmt.Sprintf("room:%s", room.ID))
	datadog.Gauge("room.u_total", out.Diagnostics.UTotal, fmt.Sprintf("room:%s", room.ID))

	if out.WindowOpen && !wasOpen && deps.Notifier != nil {
		if err := deps.Notifier.Send("Open window detected",
			fmt.Sprintf("Heating suppressed in %s", room.Label)); err != nil {
			log.Warn().Err(err).Str("room", room.ID).Msg("Window notification failed")
		}
	}

	deps.Registry.Publish(Status{
		RoomID:        room.ID,
		Label:         room.Label,
		Mode:          ctrl.Mode(),
		TargetTemp:    settings.TargetTemp,
		CurrentTemp:   in.CurrentTemp,
		Action:        out.Action,
		WindowOpen:    out.WindowOpen,
		ValvePosition: ctrl.state.LastSentValve,
		Diagnostics:   out.Diagnostics,
		UpdatedAt:     in.Now,
	})

	return out.WindowOpen
}
