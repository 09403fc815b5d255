package sensors

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Reading struct {
	Value     float64
	Timestamp time.Time
}

// Service is the shared cache of sensor readings. Producers push readings in
// through Set (the HTTP ingest endpoint in practice), room controllers pull
// them out through Get. A reading older than maxAge is treated as absent so
// a dead sensor degrades to "no measurement" instead of freezing the loop on
// its last value.
type Service struct {
	mu       sync.RWMutex
	readings map[string]Reading
	pending  map[string]Reading
	maxAge   time.Duration
	maxDelta float64
}

// NewService creates the cache. maxDelta bounds the believable jump between
// consecutive readings of one sensor; a jump beyond it is held back until a
// second reading confirms the new level. Zero disables the guard.
func NewService(maxAge time.Duration, maxDelta float64) *Service {
	return &Service{
		readings: make(map[string]Reading),
		pending:  make(map[string]Reading),
		maxAge:   maxAge,
		maxDelta: maxDelta,
	}
}

// Set records a reading. It returns false when the reading was rejected as
// an implausible jump.
func (s *Service) Set(id string, value float64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.readings[id]
	fresh := ok && now.Sub(last.Timestamp) <= s.maxAge

	if fresh && s.maxDelta > 0 && abs(value-last.Value) > s.maxDelta {
		// A single outlier is dropped; two consecutive readings agreeing on
		// the new level are taken as a genuine change.
		if prev, held := s.pending[id]; held && abs(value-prev.Value) <= s.maxDelta {
			delete(s.pending, id)
			s.readings[id] = Reading{Value: value, Timestamp: now}
			log.Info().Str("sensor_id", id).Float64("value", value).Msg("Sensor level change confirmed")
			return true
		}
		s.pending[id] = Reading{Value: value, Timestamp: now}
		log.Warn().
			Str("sensor_id", id).
			Float64("value", value).
			Float64("last", last.Value).
			Msg("Sensor reading rejected as anomalous")
		return false
	}

	delete(s.pending, id)
	s.readings[id] = Reading{Value: value, Timestamp: now}
	return true
}

// Get returns the current value for a sensor. A missing or stale reading
// reports false.
func (s *Service) Get(id string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reading, exists := s.readings[id]
	if !exists {
		return 0, false
	}

	if time.Since(reading.Timestamp) > s.maxAge {
		log.Warn().
			Str("sensor_id", id).
			Dur("age", time.Since(reading.Timestamp)).
			Msg("Sensor reading is stale")
		return 0, false
	}

	return reading.Value, true
}

// All returns a copy of every cached reading, stale ones included.
func (s *Service) All() map[string]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Reading, len(s.readings))
	for k, v := range s.readings {
		result[k] = v
	}
	return result
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
