package imc

import (
	"fmt"
	"math"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// Gains derives PI gains from a FOPDT process model using IMC/Lambda tuning:
//
//	Kc = (tau * tempRange) / (Kp * (lambda + theta))
//	Ki = tempRange / (Kp * (lambda + theta))
//
// The temperature range scales the gains because the controller works on a
// normalized error. Returns an error when the model cannot produce finite,
// positive gains; callers treat that as an invalid controller and fail safe.
func Gains(pm model.ProcessModel) (model.Gains, error) {
	if pm.ProcessGain <= 0 {
		return model.Gains{}, fmt.Errorf("invalid process gain %.4f: must be positive", pm.ProcessGain)
	}
	horizon := pm.Lambda + pm.DeadTime
	if horizon <= 0 {
		return model.Gains{}, fmt.Errorf("invalid tuning horizon lambda+theta=%.2f: must be positive", horizon)
	}

	tempRange := pm.TempRange()
	kc := (pm.TimeConstant * tempRange) / (pm.ProcessGain * horizon)
	ki := tempRange / (pm.ProcessGain * horizon)

	if !finitePositive(kc) || !finitePositive(ki) {
		return model.Gains{}, fmt.Errorf("degenerate gains Kc=%v Ki=%v from model %+v", kc, ki, pm)
	}
	return model.Gains{Kc: kc, Ki: ki}, nil
}

func finitePositive(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x > 0
}
