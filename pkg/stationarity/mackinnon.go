package stationarity

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994) response surface for the constant-only ADF regression with one series.
const (
	tauMax  = 2.74
	tauMin  = -18.83
	tauStar = -1.61
)

var (
	// 多项式系数按升幂排列
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// MacKinnon (2010) finite-sample critical values: c0 + c1/T + c2/T² + c3/T³
var critCoefficients = [3][4]float64{
	{-3.43035, -6.5393, -16.786, -79.433}, // 1%
	{-2.86154, -2.8903, -4.234, -40.040},  // 5%
	{-2.56677, -1.5384, -2.809, 0},        // 10%
}

// MacKinnonPValue 返回 ADF 统计量的近似 p 值
func MacKinnonPValue(stat float64) float64 {
	switch {
	case stat > tauMax:
		return 1
	case stat < tauMin:
		return 0
	}

	coef := tauLargeP
	if stat <= tauStar {
		coef = tauSmallP
	}
	return distuv.UnitNormal.CDF(polyval(coef, stat))
}

// MacKinnonCritical 返回 nobs 个观测下的 1%/5%/10% 临界值
func MacKinnonCritical(nobs int) CriticalValues {
	t := float64(nobs)
	at := func(c [4]float64) float64 {
		return c[0] + c[1]/t + c[2]/(t*t) + c[3]/(t*t*t)
	}
	return CriticalValues{
		OnePercent:  at(critCoefficients[0]),
		FivePercent: at(critCoefficients[1]),
		TenPercent:  at(critCoefficients[2]),
	}
}

func polyval(coef []float64, x float64) float64 {
	var y float64
	for i := len(coef) - 1; i >= 0; i-- {
		y = y*x + coef[i]
	}
	return y
}
