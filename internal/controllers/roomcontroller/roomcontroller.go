package roomcontroller

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/internal/feedforward"
	"github.com/thatsimonsguy/trv-controller/internal/imc"
	"github.com/thatsimonsguy/trv-controller/internal/model"
	"github.com/thatsimonsguy/trv-controller/internal/throttle"
	"github.com/thatsimonsguy/trv-controller/internal/windowdetect"
)

// Config is the full, immutable parameter set for one room controller.
// Reconfigure replaces it wholesale and recomputes the gains.
type Config struct {
	Model       model.ProcessModel
	FeedForward model.FeedForwardConfig

	BlendHalfWidth         float64       // °C, half-width of the near-setpoint blend band
	DecayTau               float64       // seconds, exponential decay toward closed
	BoostDuration          time.Duration
	MinSendInterval        time.Duration
	WindowThresholdPerMin  float64
	WindowOpenDuration     time.Duration
	WindowCheckMinInterval time.Duration
	HeatingActionThreshold float64 // fraction of full scale
}

// Controller owns one room's ControllerState and evaluates it one tick at a
// time. It performs no I/O; sensor values come in through TickInput and the
// valve command goes out through TickOutput. A Controller must only be
// ticked from a single goroutine; separate rooms are separate instances.
type Controller struct {
	cfg      Config
	gains    model.Gains
	gainsErr error

	ff       *feedforward.Estimator
	window   *windowdetect.Detector
	throttle *throttle.Throttle

	state model.ControllerState
}

func New(cfg Config) *Controller {
	c := &Controller{
		state: model.ControllerState{Mode: model.ModeAuto},
	}
	c.configure(cfg)
	return c
}

// Reconfigure swaps the parameter set and forces a gain recomputation.
func (c *Controller) Reconfigure(cfg Config) {
	c.configure(cfg)
}

func (c *Controller) configure(cfg Config) {
	c.cfg = cfg
	c.ff = feedforward.New(cfg.FeedForward)
	c.window = &windowdetect.Detector{
		ThresholdPerMin:  cfg.WindowThresholdPerMin,
		OpenDuration:     cfg.WindowOpenDuration,
		MinCheckInterval: cfg.WindowCheckMinInterval,
	}
	c.throttle = &throttle.Throttle{MinInterval: cfg.MinSendInterval}

	c.gains, c.gainsErr = imc.Gains(cfg.Model)
	if c.gainsErr != nil {
		log.Error().Err(c.gainsErr).Msg("Gain derivation failed, controller will hold valve closed")
		return
	}
	log.Info().
		Float64("kc", c.gains.Kc).
		Float64("ki", c.gains.Ki).
		Float64("process_gain", cfg.Model.ProcessGain).
		Float64("lambda_s", cfg.Model.Lambda).
		Float64("dead_time_s", cfg.Model.DeadTime).
		Msg("IMC tuning computed")
}

// Restore re-seeds the persisted user-facing fields after a process
// restart. The boost deadline does not survive restarts, so a restored
// boost gets a fresh one; without it the expiry check in Tick could never
// fire and the valve would stay at full open indefinitely. LastTickTime
// stays zero so the following tick runs with first-run semantics instead
// of acting on a stale derivative.
func (c *Controller) Restore(target float64, mode model.Mode, now time.Time) {
	if model.ValidMode(mode) {
		c.state.Mode = mode
		if mode == model.ModeBoost {
			c.state.BoostUntil = now.Add(c.cfg.BoostDuration)
		}
	}
	c.state.TargetTemp = target
}

// Mode returns the controller's current mode.
func (c *Controller) Mode() model.Mode { return c.state.Mode }

// Valid reports whether the configured process model produced usable gains.
func (c *Controller) Valid() bool { return c.gainsErr == nil }

// Tick evaluates one control step. Ticks must be supplied in non-decreasing
// timestamp order.
func (c *Controller) Tick(in model.TickInput) model.TickOutput {
	st := &c.state
	now := in.Now

	st.TargetTemp = in.TargetTemp
	if in.CurrentTemp != nil {
		v := *in.CurrentTemp
		st.CurrentTemp = &v
	}

	forced := c.applyModeCommand(in.ModeCommand, now)

	switch st.Mode {
	case model.ModeOff:
		return c.tickOff(now, forced)
	case model.ModeBoost:
		if !st.BoostUntil.IsZero() && !now.Before(st.BoostUntil) {
			log.Info().Msg("Boost window elapsed, reverting to auto")
			st.Mode = model.ModeAuto
			st.BoostUntil = time.Time{}
			return c.tickAuto(in, now)
		}
		return c.tickBoost(now, forced)
	default:
		return c.tickAuto(in, now)
	}
}

// applyModeCommand runs the mode transition table. It returns true when the
// transition requires an immediate valve send that bypasses throttling.
func (c *Controller) applyModeCommand(cmd *model.Mode, now time.Time) bool {
	if cmd == nil {
		return false
	}
	st := &c.state

	switch *cmd {
	case model.ModeOff:
		log.Info().Str("from", string(st.Mode)).Msg("Mode command: off")
		st.Mode = model.ModeOff
		st.IntegralAccum = 0
		st.BoostUntil = time.Time{}
		st.WindowOpenUntil = time.Time{}
		// Forget tick timing so a later auto tick restarts cleanly.
		st.LastTickTime = time.Time{}
		return true
	case model.ModeBoost:
		log.Info().Str("from", string(st.Mode)).Dur("duration", c.cfg.BoostDuration).Msg("Mode command: boost")
		st.Mode = model.ModeBoost
		st.BoostUntil = now.Add(c.cfg.BoostDuration)
		return true
	case model.ModeAuto:
		if st.Mode != model.ModeAuto {
			log.Info().Str("from", string(st.Mode)).Msg("Mode command: auto")
		}
		st.Mode = model.ModeAuto
		st.BoostUntil = time.Time{}
		return false
	default:
		log.Warn().Str("mode", string(*cmd)).Msg("Ignoring unsupported mode command")
		return false
	}
}

func (c *Controller) tickOff(now time.Time, forced bool) model.TickOutput {
	st := &c.state
	send := c.throttle.Submit(st, model.ValveClosed, now, forced)
	return c.output(st, send, false)
}

func (c *Controller) tickBoost(now time.Time, forced bool) model.TickOutput {
	st := &c.state
	send := c.throttle.Submit(st, model.ValveOpen, now, forced)
	return c.output(st, send, false)
}

func (c *Controller) tickAuto(in model.TickInput, now time.Time) model.TickOutput {
	st := &c.state

	// Fail safe: without valid gains auto mode drives the valve closed.
	if c.gainsErr != nil {
		send := c.throttle.Submit(st, model.ValveClosed, now, st.LastSentValve != model.ValveClosed)
		return c.output(st, send, false)
	}

	// No measurement this tick: defer without mutating anything else.
	if in.CurrentTemp == nil {
		log.Debug().Msg("No room temperature available, skipping control step")
		suppressed := !st.WindowOpenUntil.IsZero() && now.Before(st.WindowOpenUntil)
		return c.output(st, false, suppressed)
	}
	temp := *in.CurrentTemp

	if c.window.Check(st, temp, now) {
		st.IntegralAccum = 0
	}
	if c.window.Active(st, now) {
		send := c.throttle.Submit(st, model.ValveClosed, now, st.LastSentValve != model.ValveClosed)
		st.LastTickTime = now
		return c.output(st, send, true)
	}

	var dt float64
	if !st.LastTickTime.IsZero() {
		dt = math.Max(0, now.Sub(st.LastTickTime).Seconds())
	}

	tempRange := c.cfg.Model.TempRange()
	errC := st.TargetTemp - temp
	normError := clamp(errC, 0, tempRange) / tempRange

	uFF := c.ff.Update(&st.FF, in.FlowTemp, in.OutdoorTemp, now)

	eps := c.cfg.BlendHalfWidth
	heatSide := errC > eps
	coolSide := errC < -eps

	c.updateIntegral(normError, heatSide, coolSide, uFF, dt)

	uI := c.gains.Ki * st.IntegralAccum
	uPi := c.gains.Kc*normError + uI

	uTotal := c.shapeOutput(errC, uPi, uFF, dt)
	desired := int(math.Round(clamp01(uTotal) * model.ValveOpen))

	send := c.throttle.Submit(st, desired, now, false)

	st.LastTickTime = now
	st.PrevNormError = normError

	out := c.output(st, send, false)
	out.Diagnostics.Error = errC
	out.Diagnostics.NormError = normError
	out.Diagnostics.UPi = uPi
	out.Diagnostics.UI = uI
	out.Diagnostics.UFF = uFF
	out.Diagnostics.UTotal = uTotal
	return out
}

// updateIntegral applies anti-windup and integral separation. Growth is
// suppressed once either the feedback-only or the combined estimate would
// saturate; above the band the accumulator bleeds at 1/(3*tau) and inside
// the band it freezes.
func (c *Controller) updateIntegral(normError float64, heatSide, coolSide bool, uFF, dt float64) {
	if dt <= 0 {
		return
	}
	st := &c.state

	uP := c.gains.Kc * normError
	uI := c.gains.Ki * st.IntegralAccum
	piEst := uP + uI
	totalEst := piEst + uFF

	switch {
	case heatSide && piEst < 1.0 && totalEst < 1.0:
		st.IntegralAccum += normError * dt
	case coolSide:
		bleed := 1.0 / (3.0 * c.cfg.Model.TimeConstant)
		st.IntegralAccum = math.Max(0, st.IntegralAccum-bleed*dt)
	}
}

// shapeOutput resolves the final command fraction. Near the setpoint the
// heating suggestion and an exponential decay toward closed are blended
// with a smoothstep weight so the output is continuous as the error crosses
// zero; clearly below target the PI+FF suggestion is tracked directly, and
// clearly above it the previous opening decays toward closed.
func (c *Controller) shapeOutput(errC, uPi, uFF, dt float64) float64 {
	st := &c.state

	prevU := clamp01(float64(st.LastDesiredValve) / model.ValveOpen)
	uHeat := clamp01(uPi + uFF)

	var alpha float64
	if dt > 0 && c.cfg.DecayTau > 0 {
		alpha = 1.0 - math.Exp(-dt/c.cfg.DecayTau)
	}
	uDecay := math.Max(0, prevU+alpha*(0-prevU))

	eps := c.cfg.BlendHalfWidth
	if eps > 0 && math.Abs(errC) <= eps {
		x := clamp((errC+eps)/(2*eps), 0, 1)
		w := x * x * (3 - 2*x)
		return clamp01(w*uHeat + (1-w)*uDecay)
	}
	if errC > eps {
		return uHeat
	}
	return uDecay
}

func (c *Controller) output(st *model.ControllerState, send bool, windowOpen bool) model.TickOutput {
	out := model.TickOutput{
		Action:     c.action(st),
		WindowOpen: windowOpen,
		Diagnostics: model.Diagnostics{
			DesiredValvePosition: st.LastDesiredValve,
			Kc:                   c.gains.Kc,
			Ki:                   c.gains.Ki,
			FilteredFlow:         st.FF.FilteredFlow,
			FilteredOutdoor:      st.FF.FilteredOutdoor,
		},
	}
	if send {
		v := st.LastSentValve
		out.ValveCommand = &v
	}
	return out
}

// action reports against the throttled (sent) value rather than the
// instantaneous desired one, so sub-minute corrections do not flicker the
// reported state.
func (c *Controller) action(st *model.ControllerState) model.Action {
	if st.Mode == model.ModeOff {
		return model.ActionOff
	}
	threshold := int(c.cfg.HeatingActionThreshold * model.ValveOpen)
	if st.LastSentValve > threshold {
		return model.ActionHeating
	}
	return model.ActionIdle
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp01(x float64) float64 { return clamp(x, 0, 1) }
