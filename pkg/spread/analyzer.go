package spread

import (
	"math"
	"sync"
	"time"

	"github.com/yourusername/pairlab/pkg/stats"
)

// Snapshot 分析器当前状态
type Snapshot struct {
	Date        time.Time
	PriceA      float64
	PriceB      float64
	Value       float64 // 当前 spread
	Alpha       float64
	Beta        float64
	Mean        float64 // spread 滚动均值
	Std         float64 // spread 滚动样本标准差
	ZScore      float64
	Correlation float64 // 价格相关系数
	Ready       bool    // z-score 窗口已满
}

// Analyzer 增量计算两个资产之间的 spread
// 用于逐日回放或实时监控，每次 Update 只计算最新一个点
type Analyzer struct {
	symbolA   string
	symbolB   string
	cfg       Config
	zLookback int

	pricesA *stats.TimeSeries
	pricesB *stats.TimeSeries
	values  *stats.TimeSeries

	kalman  *KalmanState
	current Snapshot

	mu sync.RWMutex
}

// NewAnalyzer 创建增量分析器，maxHistory 为保留的历史长度（至少覆盖模型窗口和 z-score 窗口）
func NewAnalyzer(symbolA, symbolB string, cfg Config, zLookback, maxHistory int) (*Analyzer, error) {
	if cfg.Model == ModelEuclidean && cfg.Normalization == "" {
		cfg.Normalization = NormalizeZScore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if zLookback < 2 {
		zLookback = 2
	}
	if need := cfg.WarmUp() + 1; maxHistory < need {
		maxHistory = need
	}
	if maxHistory < zLookback {
		maxHistory = zLookback
	}

	a := &Analyzer{
		symbolA:   symbolA,
		symbolB:   symbolB,
		cfg:       cfg,
		zLookback: zLookback,
		pricesA:   stats.NewTimeSeries(symbolA, maxHistory),
		pricesB:   stats.NewTimeSeries(symbolB, maxHistory),
		values:    stats.NewTimeSeries("spread", maxHistory),
	}
	a.current = a.emptySnapshot()
	return a, nil
}

// Update 追加一对价格并返回最新状态
func (a *Analyzer) Update(priceA, priceB float64, date time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pricesA.Append(priceA, date)
	a.pricesB.Append(priceB, date)

	p := a.latestPointLocked(priceA, priceB)

	snap := a.emptySnapshot()
	snap.Date = date
	snap.PriceA = priceA
	snap.PriceB = priceB
	snap.Value = p.Value
	snap.Alpha = p.Alpha
	snap.Beta = p.Beta

	if stats.IsFinite(p.Value) {
		a.values.Append(p.Value, date)
	}

	if a.values.Len() >= a.zLookback {
		ws := a.values.Stats(a.zLookback)
		snap.Mean = ws.Mean
		snap.Std = ws.Std
		if stats.IsFinite(p.Value) {
			snap.ZScore = stats.ZScore(p.Value, ws.Mean, ws.Std)
			snap.Ready = stats.IsFinite(snap.ZScore)
		}
	}

	if window := a.correlationWindow(); a.pricesA.Len() >= window {
		snap.Correlation = stats.Correlation(a.pricesA.GetLast(window), a.pricesB.GetLast(window))
	}

	a.current = snap
	return snap
}

// latestPointLocked 计算最新一个时间步的模型输出（已持有锁）
func (a *Analyzer) latestPointLocked(priceA, priceB float64) Point {
	switch a.cfg.Model {
	case ModelRatio:
		return ratioPoint(priceA, priceB)

	case ModelKalman:
		if a.kalman == nil {
			if a.pricesA.Len() < a.cfg.KalmanInitialLookback {
				return nanPoint()
			}
			m := KalmanModel{
				InitialLookback:  a.cfg.KalmanInitialLookback,
				ProcessNoise:     a.cfg.KalmanProcessNoise,
				MeasurementNoise: a.cfg.KalmanMeasurementNoise,
			}
			n := a.cfg.KalmanInitialLookback
			a.kalman = m.initState(a.pricesA.GetLast(n), a.pricesB.GetLast(n))
			return a.kalman.Point(priceA, priceB)
		}
		a.kalman.Step(priceA, priceB)
		return a.kalman.Point(priceA, priceB)

	case ModelOLS, ModelEuclidean:
		if a.pricesA.Len() < a.cfg.Lookback {
			return nanPoint()
		}
		wa := a.pricesA.GetLast(a.cfg.Lookback)
		wb := a.pricesB.GetLast(a.cfg.Lookback)
		if a.cfg.Model == ModelOLS {
			return olsPoint(wa, wb)
		}
		return euclideanPoint(wa, wb, a.cfg.Normalization)
	}
	return nanPoint()
}

func (a *Analyzer) correlationWindow() int {
	if a.cfg.Lookback >= 2 {
		return a.cfg.Lookback
	}
	return a.zLookback
}

func (a *Analyzer) emptySnapshot() Snapshot {
	nan := math.NaN()
	return Snapshot{
		PriceA: nan, PriceB: nan,
		Value: nan, Alpha: nan, Beta: nan,
		Mean: nan, Std: nan, ZScore: nan, Correlation: nan,
	}
}

// Snapshot 获取当前状态
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Symbols 返回两条腿的代码
func (a *Analyzer) Symbols() (string, string) {
	return a.symbolA, a.symbolB
}

// IsReady z-score 是否可用
func (a *Analyzer) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Ready
}

// Reset 重置分析器
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pricesA.Clear()
	a.pricesB.Clear()
	a.values.Clear()
	a.kalman = nil
	a.current = a.emptySnapshot()
}
