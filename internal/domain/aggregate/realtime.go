package aggregate

import (
	"sort"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
)

// RealTimeWindow is the trailing slice used for live figures.
const RealTimeWindow = 5 * time.Minute

// RealTime summarizes [now-5m, now]. Inputs may span any range; everything
// outside the window is ignored.
//
// A session is active when it started or produced an event inside the
// window and has not ended before the window start.
func RealTime(now time.Time, sessions []model.VisitorSession, pvs []model.PageViewEvent,
	interactions []model.InteractionEvent, convs []model.ConversionEvent,
) model.RealTime {
	start := now.Add(-RealTimeWindow)
	in := func(t time.Time) bool { return !t.Before(start) && !t.After(now) }

	seen := make(map[string]struct{})
	var recent []model.RecentEvent
	pages := make(map[string]int)

	for _, pv := range pvs {
		if !in(pv.Timestamp) {
			continue
		}
		seen[pv.SessionID] = struct{}{}
		pages[pv.Page]++
		recent = append(recent, model.RecentEvent{Kind: model.KindPageView, ID: pv.ID,
			SessionID: pv.SessionID, Timestamp: pv.Timestamp, Detail: pv.Page})
	}
	for _, i := range interactions {
		if !in(i.Timestamp) {
			continue
		}
		seen[i.SessionID] = struct{}{}
		recent = append(recent, model.RecentEvent{Kind: model.KindInteraction, ID: i.ID,
			SessionID: i.SessionID, Timestamp: i.Timestamp, Detail: string(i.Type)})
	}
	for _, c := range convs {
		if !in(c.Timestamp) {
			continue
		}
		seen[c.SessionID] = struct{}{}
		recent = append(recent, model.RecentEvent{Kind: model.KindConversion, ID: c.ID,
			SessionID: c.SessionID, Timestamp: c.Timestamp, Detail: c.Type})
	}

	active := 0
	for _, s := range sessions {
		if s.EndTime != nil && s.EndTime.Before(start) {
			continue
		}
		if _, ok := seen[s.ID]; ok || in(s.StartTime) {
			active++
		}
	}

	current := make([]model.PageCount, 0, len(pages))
	for p, n := range pages {
		current = append(current, model.PageCount{Page: p, Views: n})
	}
	sort.Slice(current, func(i, j int) bool {
		if current[i].Views != current[j].Views {
			return current[i].Views > current[j].Views
		}
		return current[i].Page < current[j].Page
	})

	sort.Slice(recent, func(i, j int) bool {
		if !recent[i].Timestamp.Equal(recent[j].Timestamp) {
			return recent[i].Timestamp.After(recent[j].Timestamp)
		}
		return recent[i].ID < recent[j].ID
	})
	if recent == nil {
		recent = []model.RecentEvent{}
	}

	return model.RealTime{
		WindowStart:      start,
		WindowEnd:        now,
		ActiveVisitors:   active,
		CurrentPageViews: Top(current, TopLivePages),
		RecentEvents:     Top(recent, RecentEvents),
	}
}
