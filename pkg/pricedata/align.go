package pricedata

import (
	"math"
	"sort"
	"time"
)

// ToMap 把价格序列转换为 日期 -> 收盘价，日期截断到 UTC 自然日
// 同一日期出现多次时保留最后一次
func ToMap(points []PricePoint) map[time.Time]float64 {
	m := make(map[time.Time]float64, len(points))
	for _, p := range points {
		m[TruncateDay(p.Date)] = p.Close
	}
	return m
}

// TruncateDay 把时间截断到 UTC 自然日
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Align 取两个价格映射的日期交集，按日期升序输出
// 非有限或非正的收盘价在求交集之前丢弃
// 对齐后长度小于 minLength 时返回 *InsufficientDataError
func Align(a, b map[time.Time]float64, minLength int) (*AlignedSeries, error) {
	normA := normalize(a)
	normB := normalize(b)

	dates := make([]time.Time, 0, len(normA))
	for d := range normA {
		if _, ok := normB[d]; ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	if len(dates) < minLength {
		return nil, &InsufficientDataError{Required: minLength, Got: len(dates)}
	}

	series := &AlignedSeries{
		Dates:   dates,
		PricesA: make([]float64, len(dates)),
		PricesB: make([]float64, len(dates)),
	}
	for i, d := range dates {
		series.PricesA[i] = normA[d]
		series.PricesB[i] = normB[d]
	}
	return series, nil
}

// AlignPoints 是 Align 的切片版本，并记录两条腿的代码
func AlignPoints(symbolA string, a []PricePoint, symbolB string, b []PricePoint, minLength int) (*AlignedSeries, error) {
	series, err := Align(ToMap(a), ToMap(b), minLength)
	if err != nil {
		return nil, err
	}
	series.SymbolA = symbolA
	series.SymbolB = symbolB
	return series, nil
}

func normalize(in map[time.Time]float64) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(in))
	for d, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		out[TruncateDay(d)] = v
	}
	return out
}
