package spread

import (
	"context"
	"math"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

// EuclideanModel 两条腿在滚动窗口内分别标准化后的距离 |nA - nB|
type EuclideanModel struct {
	Lookback      int
	Normalization Normalization
}

func (m *EuclideanModel) Type() ModelType { return ModelEuclidean }

func (m *EuclideanModel) WarmUp() int { return m.Lookback - 1 }

// Compute 实现 Model
func (m *EuclideanModel) Compute(ctx context.Context, series *pricedata.AlignedSeries) (*Output, error) {
	out, err := prepare(series, ModelEuclidean, m.WarmUp())
	if err != nil {
		return nil, err
	}

	for i := m.Lookback - 1; i < series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := i - m.Lookback + 1
		out.Points[i] = euclideanPoint(series.PricesA[start:i+1], series.PricesB[start:i+1], m.Normalization)
	}
	return out, nil
}

func euclideanPoint(a, b []float64, method Normalization) Point {
	p := nanPoint()
	na, okA := normalizeLast(a, method)
	nb, okB := normalizeLast(b, method)
	if !okA || !okB {
		return p
	}
	p.Value = math.Abs(na - nb)
	return p
}

// normalizeLast 标准化窗口最后一个值
// 所选方法无定义（方差或区间为零）时退化为相对首值缩放
func normalizeLast(w []float64, method Normalization) (float64, bool) {
	for _, v := range w {
		if !stats.IsFinite(v) {
			return math.NaN(), false
		}
	}
	last := w[len(w)-1]

	switch method {
	case NormalizeMinMax:
		lo, hi := w[0], w[0]
		for _, v := range w[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if rng := hi - lo; rng > 1e-12*math.Max(math.Abs(hi), 1) {
			return (last - lo) / rng, true
		}
	case NormalizeRelative:
	default:
		if z := stats.ZScore(last, stats.Mean(w), stats.StdDev(w)); stats.IsFinite(z) {
			return z, true
		}
	}
	return relativeToFirst(w)
}

func relativeToFirst(w []float64) (float64, bool) {
	if math.Abs(w[0]) < 1e-12 {
		return math.NaN(), false
	}
	return w[len(w)-1] / w[0], true
}
