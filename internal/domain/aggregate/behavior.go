package aggregate

import (
	"sort"

	"github.com/okian/sitestats/internal/domain/model"
)

// Direct names visits without a referrer.
const Direct = "Direct"

// Behavior computes the navigation views.
func Behavior(sessions []model.VisitorSession, pvs []model.PageViewEvent) model.Behavior {
	return model.Behavior{
		TopPages:  TopPages(pvs),
		Referrers: Referrers(sessions),
		UserFlow:  UserFlow(pvs),
		ExitPages: ExitPages(pvs),
	}
}

// TopPages ranks pages by views and reports the mean time on page over all
// of the page's views.
func TopPages(pvs []model.PageViewEvent) []model.PageStat {
	type acc struct {
		views int
		time  float64
	}
	pages := make(map[string]*acc)
	for _, pv := range pvs {
		a, ok := pages[pv.Page]
		if !ok {
			a = &acc{}
			pages[pv.Page] = a
		}
		a.views++
		a.time += pv.TimeOnPage
	}
	out := make([]model.PageStat, 0, len(pages))
	for p, a := range pages {
		out = append(out, model.PageStat{Page: p, Views: a.views, AvgTimeOnPage: mean(a.time, a.views)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Page < out[j].Page
	})
	return Top(out, TopPagesN)
}

// Referrers groups sessions by referrer, counting an empty one as Direct.
func Referrers(sessions []model.VisitorSession) []model.Breakdown {
	return Top(GroupByAndPercent(sessions, func(s model.VisitorSession) string {
		if s.Referrer == "" {
			return Direct
		}
		return s.Referrer
	}), TopReferrers)
}

// UserFlow counts transitions between consecutive page views of a session.
func UserFlow(pvs []model.PageViewEvent) []model.FlowEdge {
	type edge struct{ from, to string }
	counts := make(map[edge]int)
	for _, path := range bySession(pvs) {
		for i := 1; i < len(path); i++ {
			counts[edge{path[i-1].Page, path[i].Page}]++
		}
	}
	out := make([]model.FlowEdge, 0, len(counts))
	for e, n := range counts {
		out = append(out, model.FlowEdge{From: e.from, To: e.to, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return Top(out, TopFlows)
}

// ExitPages reports, for each page that was the last one viewed in some
// session, how many sessions ended there relative to its views.
func ExitPages(pvs []model.PageViewEvent) []model.ExitPage {
	views := make(map[string]int)
	for _, pv := range pvs {
		views[pv.Page]++
	}
	exits := make(map[string]int)
	for _, path := range bySession(pvs) {
		exits[path[len(path)-1].Page]++
	}
	out := make([]model.ExitPage, 0, len(exits))
	for p, n := range exits {
		out = append(out, model.ExitPage{Page: p, Exits: n, Views: views[p], ExitRate: Percent(n, views[p])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exits != out[j].Exits {
			return out[i].Exits > out[j].Exits
		}
		return out[i].Page < out[j].Page
	})
	return Top(out, TopExits)
}

// bySession splits page views per session, each ordered by time.
func bySession(pvs []model.PageViewEvent) map[string][]model.PageViewEvent {
	out := make(map[string][]model.PageViewEvent)
	for _, pv := range pvs {
		out[pv.SessionID] = append(out[pv.SessionID], pv)
	}
	for _, path := range out {
		sort.SliceStable(path, func(i, j int) bool { return path[i].Timestamp.Before(path[j].Timestamp) })
	}
	return out
}
