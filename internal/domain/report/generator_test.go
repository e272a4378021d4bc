package report_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/coder/quartz"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitestats/internal/adapters/kv"
	"github.com/okian/sitestats/internal/adapters/repository"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/internal/domain/report"
	"github.com/okian/sitestats/internal/domain/session"
	"github.com/okian/sitestats/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var start = time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)

// countingReader records how often each collection is read.
type countingReader struct {
	*repository.Store
	reads map[string]int
}

func (c *countingReader) Sessions(ctx context.Context, p string, r *model.DateRange) []model.VisitorSession {
	c.reads[repository.CollectionSessions]++
	return c.Store.Sessions(ctx, p, r)
}

func (c *countingReader) PageViews(ctx context.Context, p string, r *model.DateRange) []model.PageViewEvent {
	c.reads[repository.CollectionPageViews]++
	return c.Store.PageViews(ctx, p, r)
}

func (c *countingReader) Interactions(ctx context.Context, p string, r *model.DateRange) []model.InteractionEvent {
	c.reads[repository.CollectionInteractions]++
	return c.Store.Interactions(ctx, p, r)
}

func (c *countingReader) Conversions(ctx context.Context, p string, r *model.DateRange) []model.ConversionEvent {
	c.reads[repository.CollectionConversions]++
	return c.Store.Conversions(ctx, p, r)
}

func (c *countingReader) PerformanceSamples(ctx context.Context, p string, r *model.DateRange) []model.PerformanceSample {
	c.reads[repository.CollectionPerformance]++
	return c.Store.PerformanceSamples(ctx, p, r)
}

func ids(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestSummaryJourney(t *testing.T) {
	Convey("Given two visitors of project P", t, func() {
		ctx := context.Background()
		clock := quartz.NewMock(t)
		clock.Set(start)
		store := repository.New(kv.NewMemory())
		reader := &countingReader{Store: store, reads: map[string]int{}}
		gen := report.New(reader, report.WithClock(clock), report.WithLogger(logger.Named("report")))

		newManager := func(visitor string) *session.Manager {
			return session.New(model.Visitor{ID: visitor, UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0"}, store,
				session.WithClock(clock), session.WithIDGenerator(ids(visitor)))
		}

		a := newManager("a")
		_, err := a.TrackPageView(ctx, "P", "/", "Home")
		So(err, ShouldBeNil)
		clock.Advance(10 * time.Second)
		So(a.EndSession(ctx), ShouldBeNil)

		b := newManager("b")
		_, err = b.TrackPageView(ctx, "P", "/", "")
		So(err, ShouldBeNil)
		clock.Advance(60 * time.Second)
		_, err = b.TrackPageView(ctx, "P", "/pricing", "")
		So(err, ShouldBeNil)
		clock.Advance(30 * time.Second)
		_, err = b.TrackConversion(ctx, "P", "signup", 49, nil)
		So(err, ShouldBeNil)
		clock.Advance(30 * time.Second)
		_, err = b.TrackPageView(ctx, "P", "/signup", "")
		So(err, ShouldBeNil)
		So(b.EndSession(ctx), ShouldBeNil)

		Convey("When the summary is generated", func() {
			s, err := gen.Summary(ctx, "P", nil)
			So(err, ShouldBeNil)

			Convey("Then the short session bounced and the long one did not", func() {
				sessions := store.Sessions(ctx, "P", nil)
				So(sessions, ShouldHaveLength, 2)
				So(sessions[0].VisitorID, ShouldEqual, "a")
				So(sessions[0].Bounced, ShouldBeTrue)
				So(sessions[0].Duration, ShouldEqual, 10)
				So(sessions[1].Bounced, ShouldBeFalse)
				So(sessions[1].Duration, ShouldEqual, 120)
			})

			Convey("Then the funnel is 2, 1 (50%), 1 (50%)", func() {
				So(s.Conversions.Funnel, ShouldResemble, []model.FunnelStage{
					{Stage: model.StageVisitors, Count: 2, Rate: 100},
					{Stage: model.StageEngaged, Count: 1, Rate: 50},
					{Stage: model.StageConverted, Count: 1, Rate: 50},
				})
				So(s.Conversions.TotalValue, ShouldEqual, 49)
			})

			Convey("Then the overview reflects both sessions", func() {
				So(s.Overview.TotalVisitors, ShouldEqual, 2)
				So(s.Overview.TotalPageViews, ShouldEqual, 4)
				So(s.Overview.AverageSessionDuration, ShouldEqual, 65)
				So(s.Overview.BounceRate, ShouldEqual, 50)
				So(s.Overview.ConversionRate, ShouldEqual, 50)
				So(s.Behavior.TopPages[0].Page, ShouldEqual, "/")
				So(s.Traffic.Hourly[14].Views, ShouldEqual, 4)
				So(s.Traffic.Hourly[14].Visitors, ShouldEqual, 2)
			})

			Convey("Then the live view sees both recent sessions", func() {
				So(s.RealTime.ActiveVisitors, ShouldEqual, 2)
				So(s.RealTime.RecentEvents, ShouldHaveLength, 5)
				So(s.RealTime.RecentEvents[0].Kind, ShouldEqual, model.KindPageView)
				So(s.RealTime.RecentEvents[0].Detail, ShouldEqual, "/signup")
				So(s.RealTime.RecentEvents[1].Kind, ShouldEqual, model.KindConversion)
			})

			Convey("Then every collection was read exactly once", func() {
				for _, c := range repository.Collections {
					So(reader.reads[c], ShouldEqual, 1)
				}
			})
		})

		Convey("When the range excludes every event", func() {
			r, err := model.NewDateRange(start.Add(-48*time.Hour), start.Add(-24*time.Hour))
			So(err, ShouldBeNil)
			s, err := gen.Summary(ctx, "P", &r)
			So(err, ShouldBeNil)

			Convey("Then the historical views are empty but the live view is not", func() {
				So(s.Overview, ShouldResemble, model.Overview{})
				So(s.Traffic.Hourly, ShouldHaveLength, 24)
				So(s.RealTime.ActiveVisitors, ShouldEqual, 2)
				So(*s.DateRange, ShouldResemble, r)
			})
		})

		Convey("When ten minutes pass", func() {
			clock.Advance(10 * time.Minute)
			rt, err := gen.RealTime(ctx, "P")
			So(err, ShouldBeNil)

			Convey("Then nothing is live any more", func() {
				So(rt.ActiveVisitors, ShouldEqual, 0)
				So(rt.RecentEvents, ShouldBeEmpty)
				So(rt.CurrentPageViews, ShouldBeEmpty)
			})
		})

		Convey("When another project is queried", func() {
			s, err := gen.Summary(ctx, "other", nil)
			So(err, ShouldBeNil)
			So(s.Overview.TotalVisitors, ShouldEqual, 0)
		})
	})
}

func TestSummaryEdges(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		gen := report.New(repository.New(kv.NewMemory()))

		Convey("When summarizing", func() {
			s, err := gen.Summary(ctx, "P", nil)
			So(err, ShouldBeNil)

			Convey("Then every overview figure is zero and finite", func() {
				So(s.Overview, ShouldResemble, model.Overview{})
				for _, v := range []float64{s.Overview.AverageSessionDuration, s.Overview.BounceRate, s.Overview.ConversionRate,
					s.Performance.AvgLoadTime, s.Performance.AvgCacheHitRate} {
					So(math.IsNaN(v) || math.IsInf(v, 0), ShouldBeFalse)
				}
				So(s.Conversions.Funnel[0].Count, ShouldEqual, 0)
			})
		})

		Convey("When the range is inverted", func() {
			_, err := gen.Summary(ctx, "P", &model.DateRange{Start: start, End: start.Add(-time.Second)})
			So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := gen.Summary(cctx, "P", nil)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			_, err = gen.RealTime(cctx, "P")
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
