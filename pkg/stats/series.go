package stats

import (
	"sync"
	"time"
)

// TimeSeries 有界的日期序列（线程安全），超出容量时丢弃最老的数据
type TimeSeries struct {
	Name      string
	MaxLength int

	values []float64
	dates  []time.Time
	mu     sync.RWMutex
}

// NewTimeSeries 创建新的时间序列
func NewTimeSeries(name string, maxLength int) *TimeSeries {
	if maxLength <= 0 {
		maxLength = 1
	}
	return &TimeSeries{
		Name:      name,
		MaxLength: maxLength,
		values:    make([]float64, 0, maxLength),
		dates:     make([]time.Time, 0, maxLength),
	}
}

// Append 添加新数据点
func (ts *TimeSeries) Append(value float64, date time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.values = append(ts.values, value)
	ts.dates = append(ts.dates, date)

	if len(ts.values) > ts.MaxLength {
		drop := len(ts.values) - ts.MaxLength
		ts.values = append(ts.values[:0], ts.values[drop:]...)
		ts.dates = append(ts.dates[:0], ts.dates[drop:]...)
	}
}

// GetLast 获取最近 n 个数据点（副本）
func (ts *TimeSeries) GetLast(n int) []float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if n <= 0 || n > len(ts.values) {
		n = len(ts.values)
	}

	result := make([]float64, n)
	copy(result, ts.values[len(ts.values)-n:])
	return result
}

// GetAll 获取所有数据点（副本）
func (ts *TimeSeries) GetAll() []float64 {
	return ts.GetLast(0)
}

// Dates 获取所有日期（副本）
func (ts *TimeSeries) Dates() []time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	result := make([]time.Time, len(ts.dates))
	copy(result, ts.dates)
	return result
}

// Len 返回当前数据点数量
func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.values)
}

// Last 获取最新的数据点
func (ts *TimeSeries) Last() (float64, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if len(ts.values) == 0 {
		return 0, false
	}
	return ts.values[len(ts.values)-1], true
}

// Stats 计算最近 period 个点的窗口统计（样本标准差）
func (ts *TimeSeries) Stats(period int) WindowStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return CalculateWindowStats(ts.values, period)
}

// Clear 清空时间序列
func (ts *TimeSeries) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.values = ts.values[:0]
	ts.dates = ts.dates[:0]
}
