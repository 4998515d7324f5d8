// Package spread computes the relationship series between two aligned price histories
// under one of four models: rolling OLS, Kalman filter, Euclidean distance and raw ratio.
package spread

import (
	"fmt"
	"math"
	"strings"
)

// ModelType 定义 spread 模型类型
type ModelType string

const (
	// ModelOLS 滚动回归: priceA - (alpha + beta * priceB)
	ModelOLS ModelType = "ols"

	// ModelKalman 卡尔曼滤波动态估计 [alpha, beta]
	ModelKalman ModelType = "kalman"

	// ModelEuclidean 窗口内标准化后的价格距离 |nA - nB|
	ModelEuclidean ModelType = "euclidean"

	// ModelRatio 比率 spread: priceA / priceB
	ModelRatio ModelType = "ratio"
)

// ParseModelType 解析模型名称（不区分大小写）
func ParseModelType(s string) (ModelType, error) {
	switch m := ModelType(strings.ToLower(strings.TrimSpace(s))); m {
	case ModelOLS, ModelKalman, ModelEuclidean, ModelRatio:
		return m, nil
	default:
		return "", fmt.Errorf("unknown model type %q (want ols, kalman, euclidean or ratio)", s)
	}
}

// HasHedgeRatio 模型是否输出 beta
func (m ModelType) HasHedgeRatio() bool {
	return m == ModelOLS || m == ModelKalman
}

// Normalization Euclidean 模型的窗口标准化方式
type Normalization string

const (
	// NormalizeZScore (x - mean) / std，样本标准差
	NormalizeZScore Normalization = "zscore"

	// NormalizeMinMax (x - min) / (max - min)
	NormalizeMinMax Normalization = "minmax"

	// NormalizeRelative x / 窗口第一个值
	NormalizeRelative Normalization = "relative"
)

// ParseNormalization 解析标准化方式，空字符串返回默认值 zscore
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NormalizeZScore, nil
	case NormalizeZScore, NormalizeMinMax, NormalizeRelative:
		return n, nil
	default:
		return "", fmt.Errorf("unknown normalization %q (want zscore, minmax or relative)", s)
	}
}

// Config 模型参数
type Config struct {
	Model ModelType

	// Lookback OLS 与 Euclidean 的滚动窗口
	Lookback int

	// Kalman 参数
	KalmanProcessNoise     float64 // Q 对角线
	KalmanMeasurementNoise float64 // R，<= 0 时由初始化窗口的残差方差估计
	KalmanInitialLookback  int     // 用于 OLS 初始化状态的样本数

	Normalization Normalization
}

// Validate 检查模型参数
func (c Config) Validate() error {
	switch c.Model {
	case ModelOLS, ModelEuclidean:
		if c.Lookback < 2 {
			return fmt.Errorf("lookback window must be >= 2 for %s, got %d", c.Model, c.Lookback)
		}
	case ModelKalman:
		if c.KalmanInitialLookback < 2 {
			return fmt.Errorf("kalman initial lookback must be >= 2, got %d", c.KalmanInitialLookback)
		}
		if c.KalmanProcessNoise < 0 || math.IsNaN(c.KalmanProcessNoise) || math.IsInf(c.KalmanProcessNoise, 0) {
			return fmt.Errorf("kalman process noise must be a finite value >= 0, got %v", c.KalmanProcessNoise)
		}
		if c.KalmanMeasurementNoise < 0 || math.IsNaN(c.KalmanMeasurementNoise) || math.IsInf(c.KalmanMeasurementNoise, 0) {
			return fmt.Errorf("kalman measurement noise must be a finite value >= 0, got %v", c.KalmanMeasurementNoise)
		}
	case ModelRatio:
	default:
		return fmt.Errorf("unknown model type %q", c.Model)
	}

	if c.Model == ModelEuclidean {
		if _, err := ParseNormalization(string(c.Normalization)); err != nil {
			return err
		}
	}
	return nil
}

// WarmUp 第一个有效输出之前的下标数量
func (c Config) WarmUp() int {
	switch c.Model {
	case ModelOLS, ModelEuclidean:
		return c.Lookback - 1
	case ModelKalman:
		return c.KalmanInitialLookback - 1
	default:
		return 0
	}
}

// Point 单个时间步的模型输出，预热期或退化时为 NaN
type Point struct {
	Value float64
	Alpha float64
	Beta  float64
}

func nanPoint() Point {
	return Point{Value: math.NaN(), Alpha: math.NaN(), Beta: math.NaN()}
}

// Output 模型输出序列，长度与输入的对齐序列一致
type Output struct {
	Model  ModelType
	WarmUp int
	Points []Point
}

// Len 返回输出长度
func (o *Output) Len() int {
	return len(o.Points)
}

// Values 返回 value 序列
func (o *Output) Values() []float64 {
	out := make([]float64, len(o.Points))
	for i, p := range o.Points {
		out[i] = p.Value
	}
	return out
}

// Alphas 返回 alpha 序列
func (o *Output) Alphas() []float64 {
	out := make([]float64, len(o.Points))
	for i, p := range o.Points {
		out[i] = p.Alpha
	}
	return out
}

// Betas 返回 beta 序列
func (o *Output) Betas() []float64 {
	out := make([]float64, len(o.Points))
	for i, p := range o.Points {
		out[i] = p.Beta
	}
	return out
}
