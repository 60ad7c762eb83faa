package analyzer

import (
	"math"
	"sort"
)

// median 中位数（偶数个时取中间两数均值）
// 输入会被排序。
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 0 {
		return (v[mid-1] + v[mid]) / 2
	}
	return v[mid]
}

// movingAverage 简单移动平均
// 长度小于窗口时返回空。
func movingAverage(v []float64, window int) []float64 {
	if window <= 0 || len(v) < window {
		return nil
	}
	out := make([]float64, 0, len(v)-window+1)
	for end := window; end <= len(v); end++ {
		var sum float64
		for _, x := range v[end-window : end] {
			sum += x
		}
		out = append(out, sum/float64(window))
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stdDev 总体标准差
func stdDev(v []float64, m float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var ss float64
	for _, x := range v {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(v)))
}

// percentile 已排序序列在 q×(n-1) 位置的线性插值
func percentile(sorted []float64, q float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	idx := q * float64(n-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo < 0 || hi >= n {
		return 0, false
	}
	if lo == hi {
		return sorted[lo], true
	}
	frac := idx - float64(lo)
	return (1-frac)*sorted[lo] + frac*sorted[hi], true
}
