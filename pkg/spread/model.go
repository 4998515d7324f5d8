package spread

import (
	"context"
	"fmt"

	"github.com/yourusername/pairlab/pkg/pricedata"
)

// Model 计算对齐价格序列的 spread
type Model interface {
	Type() ModelType
	WarmUp() int
	Compute(ctx context.Context, series *pricedata.AlignedSeries) (*Output, error)
}

// New 按配置创建模型
func New(cfg Config) (Model, error) {
	if cfg.Model == ModelEuclidean && cfg.Normalization == "" {
		cfg.Normalization = NormalizeZScore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Model {
	case ModelOLS:
		return &OLSModel{Lookback: cfg.Lookback}, nil
	case ModelKalman:
		return &KalmanModel{
			InitialLookback:  cfg.KalmanInitialLookback,
			ProcessNoise:     cfg.KalmanProcessNoise,
			MeasurementNoise: cfg.KalmanMeasurementNoise,
		}, nil
	case ModelEuclidean:
		return &EuclideanModel{Lookback: cfg.Lookback, Normalization: cfg.Normalization}, nil
	case ModelRatio:
		return &RatioModel{}, nil
	default:
		return nil, fmt.Errorf("unknown model type %q", cfg.Model)
	}
}

// prepare 校验输入并分配全 NaN 的输出
func prepare(series *pricedata.AlignedSeries, model ModelType, warmUp int) (*Output, error) {
	if series == nil {
		return nil, fmt.Errorf("%s: nil series", model)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", model, err)
	}
	if series.Len() < warmUp+1 {
		return nil, &pricedata.InsufficientDataError{Required: warmUp + 1, Got: series.Len()}
	}

	out := &Output{
		Model:  model,
		WarmUp: warmUp,
		Points: make([]Point, series.Len()),
	}
	for i := range out.Points {
		out.Points[i] = nanPoint()
	}
	return out, nil
}
