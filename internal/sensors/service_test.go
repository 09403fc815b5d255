package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)

	require.True(t, s.Set("sensor.living_room", 20.5, time.Now()))

	v, ok := s.Get("sensor.living_room")
	require.True(t, ok)
	assert.Equal(t, 20.5, v)
}

func TestUnknownSensorReportsAbsent(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)

	_, ok := s.Get("sensor.attic")
	assert.False(t, ok)
}

func TestStaleReadingReportsAbsent(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)

	s.Set("sensor.living_room", 20.5, time.Now().Add(-16*time.Minute))

	_, ok := s.Get("sensor.living_room")
	assert.False(t, ok)
}

func TestImplausibleJumpNeedsConfirmation(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)
	now := time.Now()

	require.True(t, s.Set("sensor.living_room", 20.0, now))

	// A 15 K jump is held back; the cache keeps serving the old value.
	assert.False(t, s.Set("sensor.living_room", 35.0, now.Add(time.Minute)))
	v, ok := s.Get("sensor.living_room")
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	// The second reading at the new level confirms it.
	assert.True(t, s.Set("sensor.living_room", 34.5, now.Add(2*time.Minute)))
	v, ok = s.Get("sensor.living_room")
	require.True(t, ok)
	assert.Equal(t, 34.5, v)
}

func TestOutlierFollowedByNormalReadingRecovers(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)
	now := time.Now()

	require.True(t, s.Set("sensor.living_room", 20.0, now))
	require.False(t, s.Set("sensor.living_room", 55.0, now.Add(time.Minute)))

	// Back to a plausible value: the held outlier is discarded.
	assert.True(t, s.Set("sensor.living_room", 20.3, now.Add(2*time.Minute)))
	v, ok := s.Get("sensor.living_room")
	require.True(t, ok)
	assert.Equal(t, 20.3, v)
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewService(15*time.Minute, 8.0)
	s.Set("a", 1.0, time.Now())

	all := s.All()
	all["a"] = Reading{Value: 99}

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}
