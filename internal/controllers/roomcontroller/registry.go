package roomcontroller

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Status is the externally visible snapshot of one room, refreshed by that
// room's runner after every tick.
type Status struct {
	RoomID        string             `json:"room_id"`
	Label         string             `json:"label"`
	Mode          model.Mode         `json:"mode"`
	TargetTemp    float64            `json:"target_temp"`
	CurrentTemp   *float64           `json:"current_temp,omitempty"`
	Action        model.Action       `json:"action"`
	WindowOpen    bool               `json:"window_open"`
	ValvePosition int                `json:"valve_position"`
	Diagnostics   model.Diagnostics  `json:"diagnostics"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Registry is the read side of the per-room runners: it holds the latest
// Status per room and fans updates out to stream subscribers. Runners write,
// the API reads.
type Registry struct {
	mu     sync.RWMutex
	status map[string]Status
	subs   map[string]map[chan Status]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		status: make(map[string]Status),
		subs:   make(map[string]map[chan Status]struct{}),
	}
}

func (r *Registry) Publish(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[s.RoomID] = s
	for ch := range r.subs[s.RoomID] {
		select {
		case ch <- s:
		default: // slow subscriber, drop the update
		}
	}
}

func (r *Registry) Get(roomID string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[roomID]
	return s, ok
}

func (r *Registry) All() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.status))
	for _, s := range r.status {
		out = append(out, s)
	}
	return out
}

// Subscribe returns a channel receiving every published Status for the room
// and a cancel func that must be called when the subscriber goes away.
func (r *Registry) Subscribe(roomID string) (<-chan Status, func()) {
	ch := make(chan Status, 8)
	r.mu.Lock()
	if r.subs[roomID] == nil {
		r.subs[roomID] = make(map[chan Status]struct{})
	}
	r.subs[roomID][ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subs[roomID], ch)
		r.mu.Unlock()
	}
	return ch, cancel
}
