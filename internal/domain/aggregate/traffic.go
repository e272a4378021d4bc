package aggregate

import (
	"sort"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
)

// Period key layouts.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Traffic computes every time bucket view in loc.
func Traffic(pvs []model.PageViewEvent, loc *time.Location) model.Traffic {
	return model.Traffic{
		Hourly:  Hourly(pvs, loc),
		Daily:   Daily(pvs, loc),
		Weekly:  Weekly(pvs, loc),
		Monthly: Monthly(pvs, loc),
	}
}

// Hourly groups page views by hour of day. It always returns 24 buckets.
func Hourly(pvs []model.PageViewEvent, loc *time.Location) []model.HourlyBucket {
	loc = orUTC(loc)
	var (
		views    [24]int
		visitors [24]map[string]struct{}
	)
	for _, pv := range pvs {
		h := pv.Timestamp.In(loc).Hour()
		views[h]++
		if visitors[h] == nil {
			visitors[h] = make(map[string]struct{})
		}
		visitors[h][pv.SessionID] = struct{}{}
	}
	out := make([]model.HourlyBucket, 24)
	for h := range out {
		out[h] = model.HourlyBucket{Hour: h, Views: views[h], Visitors: len(visitors[h])}
	}
	return out
}

// Daily groups page views by calendar day. Only days with views appear.
func Daily(pvs []model.PageViewEvent, loc *time.Location) []model.PeriodBucket {
	return periods(pvs, loc, func(t time.Time) string { return t.Format(DayLayout) })
}

// Weekly groups page views by week, keyed by the Sunday that starts it.
func Weekly(pvs []model.PageViewEvent, loc *time.Location) []model.PeriodBucket {
	return periods(pvs, loc, func(t time.Time) string {
		y, m, d := t.Date()
		return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location()).Format(DayLayout)
	})
}

// Monthly groups page views by calendar month.
func Monthly(pvs []model.PageViewEvent, loc *time.Location) []model.PeriodBucket {
	return periods(pvs, loc, func(t time.Time) string { return t.Format(MonthLayout) })
}

func periods(pvs []model.PageViewEvent, loc *time.Location, key func(time.Time) string) []model.PeriodBucket {
	loc = orUTC(loc)
	type acc struct {
		views    int
		visitors map[string]struct{}
	}
	buckets := make(map[string]*acc)
	for _, pv := range pvs {
		k := key(pv.Timestamp.In(loc))
		b, ok := buckets[k]
		if !ok {
			b = &acc{visitors: make(map[string]struct{})}
			buckets[k] = b
		}
		b.views++
		b.visitors[pv.SessionID] = struct{}{}
	}
	out := make([]model.PeriodBucket, 0, len(buckets))
	for k, b := range buckets {
		out = append(out, model.PeriodBucket{Period: k, Views: b.views, Visitors: len(b.visitors)})
	}
	// Keys are zero-padded, so lexical order is chronological.
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
