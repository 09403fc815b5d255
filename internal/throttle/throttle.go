package throttle

import (
	"time"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Throttle turns the continuous stream of desired valve positions into
// rate-limited sends. Desired values computed inside the holdoff window are
// coalesced by overwrite; the freshest one goes out at the next eligible
// submission. There is no timer of its own, so a pending value only flushes
// when another tick submits.
type Throttle struct {
	MinInterval time.Duration
}

// Submit records the desired position and decides whether to emit it now.
// Forced submissions (mode transitions) and the first-ever send bypass the
// interval check. Once the interval has elapsed the desired value goes out
// even when it matches the last send, so an actuator that dropped a command
// still gets refreshed.
func (t *Throttle) Submit(st *model.ControllerState, desired int, now time.Time, force bool) bool {
	if desired < model.ValveClosed {
		desired = model.ValveClosed
	}
	if desired > model.ValveOpen {
		desired = model.ValveOpen
	}
	st.LastDesiredValve = desired

	send := force
	if !send {
		send = st.LastValveSendTime.IsZero() || now.Sub(st.LastValveSendTime) >= t.MinInterval
	}
	if !send {
		return false
	}

	st.LastSentValve = desired
	st.LastValveSendTime = now
	return true
}
