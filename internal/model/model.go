package model

import (
	"math"
	"time"
)

type Mode string

const (
	ModeOff   Mode = "off"
	ModeBoost Mode = "boost"
	ModeAuto  Mode = "auto"
)

type Action string

const (
	ActionOff     Action = "off"
	ActionHeating Action = "heating"
	ActionIdle    Action = "idle"
)

// Valve command scale. Positions are integers on the actuator's 0-255 scale.
const (
	ValveClosed = 0
	ValveOpen   = 255
)

// Floor for the normalization range so division stays well-defined
// even with a degenerate min/max configuration.
const MinTempRangeC = 0.1

// ProcessModel is the FOPDT model of the room's thermal response plus the
// temperature bounds used for error normalization. Immutable once configured.
type ProcessModel struct {
	ProcessGain  float64 `json:"process_gain"`    // °C per unit valve fraction
	DeadTime     float64 `json:"dead_time_s"`     // seconds
	TimeConstant float64 `json:"time_constant_s"` // seconds
	Lambda       float64 `json:"lambda_s"`        // desired closed-loop time constant, seconds
	MinTemp      float64 `json:"min_temp"`
	MaxTemp      float64 `json:"max_temp"`
}

func (pm ProcessModel) TempRange() float64 {
	return math.Max(MinTempRangeC, pm.MaxTemp-pm.MinTemp)
}

// Gains are the PI gains derived from a ProcessModel via IMC tuning.
type Gains struct {
	Kc float64
	Ki float64 // per second
}

type FeedForwardConfig struct {
	KFlow            float64 `json:"k_flow"`    // valve fraction per K of flow delta
	KOutdoor         float64 `json:"k_outdoor"` // valve fraction per K of outdoor delta
	TFlowRef         float64 `json:"tflow_ref"` // reference flow temperature, °C
	TOutRef          float64 `json:"tout_ref"`  // reference outdoor temperature, °C
	TauFlow          float64 `json:"flow_filter_tau_s"` // EWMA time constant, seconds
	TauOutdoor       float64 `json:"outdoor_filter_tau_s"`
	DeadbandFlow     float64 `json:"flow_deadband_k"`
	DeadbandOutdoor  float64 `json:"outdoor_deadband_k"`
	RateLimitPerMin  float64 `json:"rate_limit_per_min"` // valve fraction per minute
	SmoothingEnabled bool    `json:"enable_smoothing"`
}

// FeedForwardState is the estimator's filter memory. FilteredFlow and
// FilteredOutdoor are nil until the first sample of the respective signal.
// PrevOutput is nil until the first evaluation.
type FeedForwardState struct {
	FilteredFlow    *float64
	FilteredOutdoor *float64
	PrevOutput      *float64
	LastUpdate      time.Time
}

// ControllerState is the full mutable record for one room. It is owned
// exclusively by that room's orchestrator and mutated only inside Tick.
type ControllerState struct {
	Mode          Mode
	TargetTemp    float64
	CurrentTemp   *float64
	IntegralAccum float64
	PrevNormError float64

	LastDesiredValve int // last computed command, before throttling
	LastSentValve    int // last command actually emitted

	LastValveSendTime time.Time
	LastTickTime      time.Time

	BoostUntil time.Time // zero unless mode is boost

	WindowOpenUntil     time.Time // zero unless suppression is active
	LastWindowCheckTime time.Time
	LastWindowCheckTemp float64

	FF FeedForwardState
}

// TickInput is the measurement snapshot handed to one tick evaluation.
// Nil pointers mean the value is unavailable this tick.
type TickInput struct {
	Now         time.Time
	CurrentTemp *float64
	TargetTemp  float64
	FlowTemp    *float64
	OutdoorTemp *float64
	ModeCommand *Mode
}

// Diagnostics carries the observational values of a tick at full precision.
// Rounding happens only at the presentation boundary.
type Diagnostics struct {
	DesiredValvePosition int      `json:"desired_valve_position"`
	Kc                   float64  `json:"kc"`
	Ki                   float64  `json:"ki"`
	Error                float64  `json:"error_c"`
	NormError            float64  `json:"error_norm"`
	UPi                  float64  `json:"u_pi"`
	UI                   float64  `json:"u_i"`
	UFF                  float64  `json:"u_ff"`
	UTotal               float64  `json:"u_total"`
	FilteredFlow         *float64 `json:"filtered_flow,omitempty"`
	FilteredOutdoor      *float64 `json:"filtered_outdoor,omitempty"`
}

// TickOutput is the result of one tick. ValveCommand is non-nil only when a
// send was authorized this tick.
type TickOutput struct {
	ValveCommand *int
	Action       Action
	WindowOpen   bool
	Diagnostics  Diagnostics
}

// Room is the registry record binding a controller instance to its sensors
// and actuator. MinTemp and MaxTemp ride along from the static config for
// setpoint-emulating actuators; they are not persisted.
type Room struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	SensorID     string  `json:"sensor_id"`
	TargetTemp   float64 `json:"target_temp"`
	Mode         Mode    `json:"mode"`
	ActuatorType string  `json:"actuator_type"` // "position", "setpoint" or "log"
	ActuatorURL  string  `json:"actuator_url"`
	MinTemp      float64 `json:"-"`
	MaxTemp      float64 `json:"-"`
}

func ValidMode(m Mode) bool {
	switch m {
	case ModeOff, ModeBoost, ModeAuto:
		return true
	default:
		return false
	}
}
