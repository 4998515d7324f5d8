package stationarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/pairlab/pkg/stats"
)

// minADFObservations matches the remote service's lower bound.
const minADFObservations = 5

// LocalTester runs the Augmented Dickey-Fuller test in process.
//
// Regression: Δy[t] = c + γ·y[t-1] + Σ δ_i·Δy[t-i] + ε, lag order chosen by AIC on a
// common sample up to 12·(n/100)^¼, then refit on the full sample with the chosen lag.
// The statistic is the t-ratio of γ.
type LocalTester struct {
	Significance float64
	// MaxLag < 0 selects the lag automatically; otherwise it is used as the upper bound.
	MaxLag int
}

// NewLocalTester creates a tester with p < 0.05 significance and automatic lag selection.
func NewLocalTester() *LocalTester {
	return &LocalTester{Significance: DefaultSignificance, MaxLag: -1}
}

// Test implements Tester. Non-finite values are dropped first.
func (lt *LocalTester) Test(ctx context.Context, values []float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	x := stats.Finite(values)
	n := len(x)
	if n < minADFObservations {
		return Result{}, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewObservations, n, minADFObservations)
	}
	if stats.Variance(x) <= 1e-12*math.Max(stats.Mean(x)*stats.Mean(x), 1) {
		return Result{}, errors.New("ADF test undefined for a constant series")
	}

	maxLag := lt.maxLag(n)
	dy := make([]float64, n-1)
	for i := range dy {
		dy[i] = x[i+1] - x[i]
	}

	bestLag := 0
	if maxLag > 0 {
		bestAIC := math.Inf(1)
		for p := 0; p <= maxLag; p++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			fit, err := adfRegression(x, dy, p, maxLag)
			if err != nil {
				continue
			}
			if fit.aic < bestAIC {
				bestAIC = fit.aic
				bestLag = p
			}
		}
	}

	fit, err := adfRegression(x, dy, bestLag, bestLag)
	if err != nil {
		return Result{}, fmt.Errorf("ADF regression failed: %w", err)
	}

	sig := lt.Significance
	if sig <= 0 || sig >= 1 {
		sig = DefaultSignificance
	}
	p := MacKinnonPValue(fit.tstat)
	return Result{
		Statistic:      fit.tstat,
		PValue:         p,
		CriticalValues: MacKinnonCritical(fit.nobs),
		IsStationary:   p < sig,
		UsedLag:        bestLag,
		NObs:           fit.nobs,
		Source:         SourceLocal,
	}, nil
}

func (lt *LocalTester) maxLag(n int) int {
	maxLag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if lt.MaxLag >= 0 && lt.MaxLag < maxLag {
		maxLag = lt.MaxLag
	}
	// 常数项回归：保证自由度为正
	if limit := n/2 - 2; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}
	return maxLag
}

type adfFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression 拟合滞后阶数为 lag 的 ADF 回归，样本从 dy[from] 开始（from >= lag）
func adfRegression(x, dy []float64, lag, from int) (adfFit, error) {
	rows := len(dy) - from
	cols := lag + 2
	if rows <= cols {
		return adfFit{}, fmt.Errorf("lag %d leaves %d observations for %d parameters", lag, rows, cols)
	}

	design := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := from + r
		target.SetVec(r, dy[t])
		design.Set(r, 0, 1)
		design.Set(r, 1, x[t])
		for i := 1; i <= lag; i++ {
			design.Set(r, 1+i, dy[t-i])
		}
	}

	var xtx mat.Dense
	xtx.Mul(design.T(), design)

	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return adfFit{}, fmt.Errorf("singular regression matrix: %w", err)
		}
	}

	var xty, beta mat.VecDense
	xty.MulVec(design.T(), target)
	beta.MulVec(&inv, &xty)

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(target, &fitted)
	ssr := mat.Dot(&resid, &resid)

	if !(ssr > 0) {
		return adfFit{}, errors.New("regression has no residual variance")
	}

	sigma2 := ssr / float64(rows-cols)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if !(se > 0) || !stats.IsFinite(se) {
		return adfFit{}, errors.New("degenerate standard error for the lagged level")
	}

	nobs := float64(rows)
	llf := -nobs / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nobs) + 1)
	return adfFit{
		tstat: beta.AtVec(1) / se,
		aic:   -2*llf + 2*float64(cols),
		nobs:  rows,
	}, nil
}
