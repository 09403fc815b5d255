package feedforward

import (
	"math"
	"time"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Estimator computes the disturbance-rejecting feed-forward correction from
// boiler flow and outdoor temperature. Each signal is independently
// EWMA-filtered and deadbanded; the combined correction is rate-limited
// against the previous output. Filter memory lives in the room's
// FeedForwardState so the estimator itself stays stateless and shareable.
type Estimator struct {
	cfg model.FeedForwardConfig
}

func New(cfg model.FeedForwardConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Update advances the filters with whatever samples are present and returns
// the rate-limited feed-forward output in [-1, 1]. A missing sensor
// contributes exactly zero without touching its filter memory. The estimator
// keeps its own elapsed-time basis in st.LastUpdate, so it makes progress
// even on the orchestrator's first tick.
func (e *Estimator) Update(st *model.FeedForwardState, flow, outdoor *float64, now time.Time) float64 {
	var dt float64
	if !st.LastUpdate.IsZero() {
		dt = math.Max(0, now.Sub(st.LastUpdate).Seconds())
	}
	st.LastUpdate = now

	if flow != nil {
		st.FilteredFlow = e.filter(st.FilteredFlow, *flow, e.cfg.TauFlow, dt)
	}
	if outdoor != nil {
		st.FilteredOutdoor = e.filter(st.FilteredOutdoor, *outdoor, e.cfg.TauOutdoor, dt)
	}

	var raw float64
	if flow != nil && st.FilteredFlow != nil {
		raw += e.cfg.KFlow * deadband(e.cfg.TFlowRef-*st.FilteredFlow, e.cfg.DeadbandFlow)
	}
	if outdoor != nil && st.FilteredOutdoor != nil {
		raw += e.cfg.KOutdoor * deadband(e.cfg.TOutRef-*st.FilteredOutdoor, e.cfg.DeadbandOutdoor)
	}

	// First evaluation seeds the output directly; rate limiting starts on
	// the second sample.
	if st.PrevOutput == nil {
		out := clamp(raw, -1, 1)
		st.PrevOutput = &out
		return out
	}

	duLimit := (e.cfg.RateLimitPerMin / 60.0) * dt
	du := clamp(raw-*st.PrevOutput, -duLimit, duLimit)
	out := clamp(*st.PrevOutput+du, -1, 1)
	st.PrevOutput = &out
	return out
}

func (e *Estimator) filter(prev *float64, value, tau, dt float64) *float64 {
	if !e.cfg.SmoothingEnabled || tau <= 0 || prev == nil {
		v := value
		return &v
	}
	alpha := 1.0 - math.Exp(-dt/tau)
	v := *prev + alpha*(value-*prev)
	return &v
}

// deadband ignores deviations within ±db and shrinks larger ones by db so
// the output stays continuous at the band edge.
func deadband(x, db float64) float64 {
	if db <= 0 {
		return x
	}
	switch {
	case math.Abs(x) <= db:
		return 0
	case x > 0:
		return x - db
	default:
		return x + db
	}
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
