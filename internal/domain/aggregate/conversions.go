package aggregate

import (
	"sort"

	"github.com/okian/sitestats/internal/domain/model"
)

// Converted returns the ids of sessions with at least one conversion, either
// embedded in the session or recorded as a conversion event.
func Converted(sessions []model.VisitorSession, convs []model.ConversionEvent) map[string]struct{} {
	withEvent := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		withEvent[c.SessionID] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, s := range sessions {
		if _, ok := withEvent[s.ID]; ok || len(s.Conversions) > 0 {
			out[s.ID] = struct{}{}
		}
	}
	return out
}

// Conversions reports per-goal totals and the Visitors, Engaged, Converted
// funnel. Stage rates are relative to all visitors.
func Conversions(sessions []model.VisitorSession, convs []model.ConversionEvent) model.ConversionStats {
	type acc struct {
		count int
		value float64
	}
	types := make(map[string]*acc)
	var total float64
	for _, c := range convs {
		a, ok := types[c.Type]
		if !ok {
			a = &acc{}
			types[c.Type] = a
		}
		a.count++
		a.value += c.Value
		total += c.Value
	}
	byType := make([]model.ConversionTypeStat, 0, len(types))
	for t, a := range types {
		byType = append(byType, model.ConversionTypeStat{Type: t, Count: a.count, Value: round2(a.value)})
	}
	sort.Slice(byType, func(i, j int) bool {
		if byType[i].Count != byType[j].Count {
			return byType[i].Count > byType[j].Count
		}
		return byType[i].Type < byType[j].Type
	})

	visitors := len(sessions)
	engaged := 0
	for _, s := range sessions {
		if !s.Bounced {
			engaged++
		}
	}
	converted := len(Converted(sessions, convs))

	return model.ConversionStats{
		Total:      len(convs),
		TotalValue: round2(total),
		ByType:     byType,
		Funnel: []model.FunnelStage{
			{Stage: model.StageVisitors, Count: visitors, Rate: 100},
			{Stage: model.StageEngaged, Count: engaged, Rate: Percent(engaged, visitors)},
			{Stage: model.StageConverted, Count: converted, Rate: Percent(converted, visitors)},
		},
	}
}

// Overview computes the headline figures.
func Overview(sessions []model.VisitorSession, pvs []model.PageViewEvent, convs []model.ConversionEvent) model.Overview {
	ids := make(map[string]struct{}, len(sessions))
	var (
		duration float64
		bounced  int
	)
	for _, s := range sessions {
		ids[s.ID] = struct{}{}
		duration += float64(s.Duration)
		if s.Bounced {
			bounced++
		}
	}
	total := len(sessions)
	return model.Overview{
		TotalVisitors:          total,
		UniqueVisitors:         len(ids),
		TotalPageViews:         len(pvs),
		AverageSessionDuration: mean(duration, total),
		BounceRate:             Rate(bounced, total),
		ConversionRate:         Rate(len(Converted(sessions, convs)), total),
	}
}
