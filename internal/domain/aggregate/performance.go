package aggregate

import (
	"math"

	"github.com/okian/sitestats/internal/domain/model"
)

// Performance averages every sample field. All means are 0 without samples.
func Performance(samples []model.PerformanceSample) model.PerformanceStats {
	var sum struct {
		load, fcp, lcp, cls, fid, count, size, cache float64
	}
	for _, s := range samples {
		sum.load += s.LoadTime
		sum.fcp += s.FirstContentfulPaint
		sum.lcp += s.LargestContentfulPaint
		sum.cls += s.CumulativeLayoutShift
		sum.fid += s.FirstInputDelay
		sum.count += float64(s.ResourceCount)
		sum.size += float64(s.ResourceSize)
		sum.cache += s.CacheHitRate
	}
	n := len(samples)
	return model.PerformanceStats{
		Samples:                   n,
		AvgLoadTime:               mean(sum.load, n),
		AvgFirstContentfulPaint:   mean(sum.fcp, n),
		AvgLargestContentfulPaint: mean(sum.lcp, n),
		AvgCumulativeLayoutShift:  mean4(sum.cls, n),
		AvgFirstInputDelay:        mean(sum.fid, n),
		AvgResourceCount:          mean(sum.count, n),
		AvgResourceSize:           mean(sum.size, n),
		AvgCacheHitRate:           mean(sum.cache, n),
	}
}

// mean4 keeps four decimals; layout shift scores are small fractions.
func mean4(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10000) / 10000
}
