package spread

import (
	"context"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

// OLSModel 滚动窗口回归 priceA = alpha + beta * priceB
// 每一步重新计算整个窗口的和，O(n * lookback)
type OLSModel struct {
	Lookback int
}

func (m *OLSModel) Type() ModelType { return ModelOLS }

func (m *OLSModel) WarmUp() int { return m.Lookback - 1 }

// Compute 实现 Model
func (m *OLSModel) Compute(ctx context.Context, series *pricedata.AlignedSeries) (*Output, error) {
	out, err := prepare(series, ModelOLS, m.WarmUp())
	if err != nil {
		return nil, err
	}

	for i := m.Lookback - 1; i < series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := i - m.Lookback + 1
		out.Points[i] = olsPoint(series.PricesA[start:i+1], series.PricesB[start:i+1])
	}
	return out, nil
}

// olsPoint 用窗口拟合 alpha/beta，并计算窗口最后一个点的残差
func olsPoint(a, b []float64) Point {
	alpha, beta, ok := stats.OLS(b, a)
	if !ok {
		return nanPoint()
	}
	last := len(a) - 1
	return Point{
		Value: a[last] - (alpha + beta*b[last]),
		Alpha: alpha,
		Beta:  beta,
	}
}
