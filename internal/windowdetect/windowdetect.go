package windowdetect

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Detector watches the room temperature's rate of change and declares an
// open window when it drops faster than the configured threshold. Detection
// state lives in the room's ControllerState.
type Detector struct {
	ThresholdPerMin  float64       // K/min, positive; only drops trigger
	OpenDuration     time.Duration // suppression window once triggered
	MinCheckInterval time.Duration // minimum spacing between rate evaluations
}

// Check runs one detection step. It returns true when a new suppression
// window was entered this call. Evaluations closer together than
// MinCheckInterval are skipped to avoid amplifying sensor noise; the
// reference sample is refreshed on every eligible evaluation whether or not
// it triggers.
func (d *Detector) Check(st *model.ControllerState, temp float64, now time.Time) bool {
	if st.LastWindowCheckTime.IsZero() {
		st.LastWindowCheckTemp = temp
		st.LastWindowCheckTime = now
		return false
	}

	elapsed := now.Sub(st.LastWindowCheckTime)
	if elapsed < d.MinCheckInterval {
		return false
	}

	delta := temp - st.LastWindowCheckTemp
	ratePerMin := delta / elapsed.Minutes()

	st.LastWindowCheckTemp = temp
	st.LastWindowCheckTime = now

	if ratePerMin <= -d.ThresholdPerMin {
		st.WindowOpenUntil = now.Add(d.OpenDuration)
		log.Warn().
			Float64("delta_k", delta).
			Dur("elapsed", elapsed).
			Float64("rate_per_min", ratePerMin).
			Dur("suppress_for", d.OpenDuration).
			Msg("Open window detected, suppressing heat")
		return true
	}
	return false
}

// Active reports whether a suppression window is in effect, clearing it once
// expired. Expiry is evaluated lazily; the duration fixed at entry is not
// extended by continued dropping.
func (d *Detector) Active(st *model.ControllerState, now time.Time) bool {
	if st.WindowOpenUntil.IsZero() {
		return false
	}
	if now.Before(st.WindowOpenUntil) {
		return true
	}
	st.WindowOpenUntil = time.Time{}
	log.Info().Msg("Open window suppression expired, resuming control")
	return false
}
