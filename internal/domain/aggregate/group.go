// Package aggregate derives statistics from event slices. Every function is
// pure and returns zero values, never NaN, for empty input.
package aggregate

import (
	"math"
	"sort"

	"github.com/okian/sitestats/internal/domain/model"
)

// Row caps.
const (
	TopLocations = 10
	TopPagesN    = 10
	TopReferrers = 10
	TopFlows     = 10
	TopExits     = 10
	TopLivePages = 5
	RecentEvents = 20
)

// Unknown replaces empty grouping keys.
const Unknown = "Unknown"

// GroupByAndPercent counts items by key and reports each row's share as
// round(count/total*100). Rows are rounded independently, so they need not
// sum to 100. Rows are ordered by count descending, then name.
func GroupByAndPercent[T any](items []T, key func(T) string) []model.Breakdown {
	counts := make(map[string]int)
	for _, it := range items {
		k := key(it)
		if k == "" {
			k = Unknown
		}
		counts[k]++
	}
	out := make([]model.Breakdown, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.Breakdown{Name: name, Count: n, Percentage: Percent(n, len(items))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Top returns at most the first n elements of list.
func Top[T any](list []T, n int) []T {
	if n >= 0 && len(list) > n {
		return list[:n]
	}
	return list
}

// Percent is round(part/total*100), or 0 when total is 0.
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// Rate is part/total*100 rounded to two decimals, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
