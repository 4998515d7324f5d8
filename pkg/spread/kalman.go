package spread

import (
	"context"
	"math"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

const (
	// minInnovationVariance |S| 小于该值时跳过更新
	minInnovationVariance = 1e-10

	// minMeasurementNoise 估计的 R 下限
	minMeasurementNoise = 1e-8
)

// KalmanState 状态 [alpha, beta] 及其协方差
// 状态转移为单位阵（随机游走），观测模型 priceA = alpha + beta * priceB
type KalmanState struct {
	Alpha float64
	Beta  float64
	P     [2][2]float64

	ProcessNoise     float64 // Q = diag(q, q)
	MeasurementNoise float64 // R
}

// NewKalmanState 创建状态，初始协方差 P0 = I
func NewKalmanState(alpha, beta, processNoise, measurementNoise float64) *KalmanState {
	return &KalmanState{
		Alpha:            alpha,
		Beta:             beta,
		P:                [2][2]float64{{1, 0}, {0, 1}},
		ProcessNoise:     processNoise,
		MeasurementNoise: measurementNoise,
	}
}

// Spread 当前状态下的残差 priceA - (alpha + beta * priceB)
func (k *KalmanState) Spread(a, b float64) float64 {
	return a - (k.Alpha + k.Beta*b)
}

// Step 对一个观测执行 predict + update，返回新息 y = a - H·x
// 观测非有限或 |S| < 1e-10 时跳过更新，保留先验状态，updated=false
func (k *KalmanState) Step(a, b float64) (innovation float64, updated bool) {
	// predict: x 不变，P += Q
	k.P[0][0] += k.ProcessNoise
	k.P[1][1] += k.ProcessNoise

	if !stats.IsFinite(a) || !stats.IsFinite(b) {
		return math.NaN(), false
	}

	innovation = k.Spread(a, b)

	// S = H P Hᵗ + R, H = [1, b]
	ph0 := k.P[0][0] + k.P[0][1]*b
	ph1 := k.P[1][0] + k.P[1][1]*b
	s := ph0 + b*ph1 + k.MeasurementNoise
	if math.Abs(s) < minInnovationVariance || !stats.IsFinite(s) {
		return innovation, false
	}

	// K = P Hᵗ / S
	k0 := ph0 / s
	k1 := ph1 / s

	k.Alpha += k0 * innovation
	k.Beta += k1 * innovation

	// P = (I - K H) P
	p := k.P
	k.P[0][0] = (1-k0)*p[0][0] - k0*b*p[1][0]
	k.P[0][1] = (1-k0)*p[0][1] - k0*b*p[1][1]
	k.P[1][0] = -k1*p[0][0] + (1-k1*b)*p[1][0]
	k.P[1][1] = -k1*p[0][1] + (1-k1*b)*p[1][1]

	// 保持对称
	off := (k.P[0][1] + k.P[1][0]) / 2
	k.P[0][1], k.P[1][0] = off, off

	return innovation, true
}

// Point 当前状态对应的模型输出
func (k *KalmanState) Point(a, b float64) Point {
	return Point{Value: k.Spread(a, b), Alpha: k.Alpha, Beta: k.Beta}
}

// KalmanModel 卡尔曼滤波动态对冲比率
type KalmanModel struct {
	InitialLookback  int
	ProcessNoise     float64
	MeasurementNoise float64
}

func (m *KalmanModel) Type() ModelType { return ModelKalman }

func (m *KalmanModel) WarmUp() int { return m.InitialLookback - 1 }

// Compute 实现 Model
// 前 InitialLookback 个点用 OLS 初始化状态，初始化下标输出 OLS 状态，之后逐步滤波
func (m *KalmanModel) Compute(ctx context.Context, series *pricedata.AlignedSeries) (*Output, error) {
	out, err := prepare(series, ModelKalman, m.WarmUp())
	if err != nil {
		return nil, err
	}

	init := m.InitialLookback
	state := m.initState(series.PricesA[:init], series.PricesB[:init])
	out.Points[init-1] = state.Point(series.PricesA[init-1], series.PricesB[init-1])

	for i := init; i < series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, b := series.PricesA[i], series.PricesB[i]
		state.Step(a, b)
		out.Points[i] = state.Point(a, b)
	}
	return out, nil
}

// initState OLS 初始化 [alpha, beta]
// OLS 退化时使用 alpha=0, beta=mean(a)/mean(b)
func (m *KalmanModel) initState(a, b []float64) *KalmanState {
	alpha, beta, ok := stats.OLS(b, a)
	if !ok {
		alpha = 0
		beta = stats.Mean(a) / stats.Mean(b)
		if !stats.IsFinite(beta) {
			beta = 1
		}
	}

	r := m.MeasurementNoise
	if r <= 0 {
		residuals := make([]float64, len(a))
		for i := range a {
			residuals[i] = a[i] - (alpha + beta*b[i])
		}
		r = stats.Variance(residuals)
		if !stats.IsFinite(r) || r < minMeasurementNoise {
			r = minMeasurementNoise
		}
	}
	return NewKalmanState(alpha, beta, m.ProcessNoise, r)
}
