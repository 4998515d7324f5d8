package spread

import (
	"context"
	"math"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

// RatioModel priceA / priceB，无回归参数
type RatioModel struct{}

func (m *RatioModel) Type() ModelType { return ModelRatio }

func (m *RatioModel) WarmUp() int { return 0 }

// Compute 实现 Model
func (m *RatioModel) Compute(ctx context.Context, series *pricedata.AlignedSeries) (*Output, error) {
	out, err := prepare(series, ModelRatio, 0)
	if err != nil {
		return nil, err
	}
	for i := range out.Points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Points[i] = ratioPoint(series.PricesA[i], series.PricesB[i])
	}
	return out, nil
}

func ratioPoint(a, b float64) Point {
	p := nanPoint()
	if !stats.IsFinite(a) || !stats.IsFinite(b) || math.Abs(b) < 1e-12 {
		return p
	}
	p.Value = a / b
	return p
}
