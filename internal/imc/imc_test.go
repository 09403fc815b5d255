package imc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/trv-controller/internal/imc"
	"github.com/thatsimonsguy/trv-controller/internal/model"
)

func referenceModel() model.ProcessModel {
	return model.ProcessModel{
		ProcessGain:  4.0,
		DeadTime:     900.0,
		TimeConstant: 5400.0,
		Lambda:       5400.0,
		MinTemp:      5.0,
		MaxTemp:      30.0,
	}
}

func TestGainsReferenceTuning(t *testing.T) {
	g, err := imc.Gains(referenceModel())
	require.NoError(t, err)

	// tempRange=25, Kc=(5400*25)/(4*6300), Ki=25/(4*6300)
	assert.InDelta(t, 5.357142857, g.Kc, 1e-6)
	assert.InDelta(t, 0.000992063, g.Ki, 1e-9)
}

func TestGainsMonotonicInProcessGain(t *testing.T) {
	pm := referenceModel()
	prev, err := imc.Gains(pm)
	require.NoError(t, err)

	for _, kp := range []float64{5.0, 8.0, 16.0} {
		pm.ProcessGain = kp
		g, err := imc.Gains(pm)
		require.NoError(t, err)
		assert.Greater(t, g.Kc, 0.0)
		assert.Greater(t, g.Ki, 0.0)
		assert.Less(t, g.Kc, prev.Kc)
		assert.Less(t, g.Ki, prev.Ki)
		prev = g
	}
}

func TestGainsRejectsNonPositiveProcessGain(t *testing.T) {
	pm := referenceModel()
	pm.ProcessGain = 0
	_, err := imc.Gains(pm)
	assert.Error(t, err)

	pm.ProcessGain = -2.5
	_, err = imc.Gains(pm)
	assert.Error(t, err)
}

func TestGainsRejectsNonPositiveHorizon(t *testing.T) {
	pm := referenceModel()
	pm.Lambda = 0
	pm.DeadTime = 0
	_, err := imc.Gains(pm)
	assert.Error(t, err)
}

func TestGainsTempRangeFloor(t *testing.T) {
	pm := referenceModel()
	pm.MinTemp = 20.0
	pm.MaxTemp = 20.0

	g, err := imc.Gains(pm)
	require.NoError(t, err)

	// Range clamps to 0.1 rather than collapsing the gains to zero.
	assert.InDelta(t, (5400.0*0.1)/(4.0*6300.0), g.Kc, 1e-9)
	assert.InDelta(t, 0.1/(4.0*6300.0), g.Ki, 1e-12)
}
