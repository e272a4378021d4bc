package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitestats/internal/adapters/enricher"
	"github.com/okian/sitestats/internal/adapters/kv"
	"github.com/okian/sitestats/internal/adapters/repository"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/internal/domain/session"
	"github.com/okian/sitestats/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type fixture struct {
	clock *quartz.Mock
	store *repository.Store
	mgr   *session.Manager
}

func newFixture(t *testing.T, visitorID string) fixture {
	clock := quartz.NewMock(t)
	clock.Set(start)
	store := repository.New(kv.NewMemory())
	mgr := session.New(
		model.Visitor{ID: visitorID, UserAgent: uaChrome, IP: "198.51.100.7", Referrer: "https://news.example"},
		store,
		session.WithClock(clock),
		session.WithIDGenerator(sequentialIDs()),
		session.WithLocationResolver(enricher.NewStaticResolver(model.Location{Country: "Canada", City: "Toronto"})),
		session.WithLogger(logger.Named("session")),
	)
	return fixture{clock: clock, store: store, mgr: mgr}
}

func TestStartSession(t *testing.T) {
	Convey("Given a visitor manager", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")

		Convey("When a session is started", func() {
			s, err := f.mgr.StartSession(ctx, "p1")
			So(err, ShouldBeNil)

			Convey("Then it should start bounced with no page views", func() {
				So(s.Bounced, ShouldBeTrue)
				So(s.PageViews, ShouldEqual, 0)
				So(s.Interactions, ShouldEqual, 0)
				So(s.EndTime, ShouldBeNil)
				So(s.StartTime, ShouldEqual, start)
			})

			Convey("Then it should carry the visitor classification", func() {
				So(s.Device.Type, ShouldEqual, enricher.DeviceDesktop)
				So(s.Browser, ShouldEqual, "Chrome")
				So(s.OS, ShouldEqual, "Windows")
				So(s.Country, ShouldEqual, "Canada")
				So(s.City, ShouldEqual, "Toronto")
				So(s.Referrer, ShouldEqual, "https://news.example")
				So(s.IsReturning, ShouldBeFalse)
			})

			Convey("Then it should be persisted and current", func() {
				stored := f.store.Sessions(ctx, "p1", nil)
				So(stored, ShouldHaveLength, 1)
				So(stored[0].Bounced, ShouldBeTrue)
				So(f.mgr.Current().ID, ShouldEqual, s.ID)
			})

			Convey("Then the next session should be marked returning", func() {
				So(f.mgr.EndSession(ctx), ShouldBeNil)
				again, err := f.mgr.StartSession(ctx, "p1")
				So(err, ShouldBeNil)
				So(again.IsReturning, ShouldBeTrue)
			})
		})
	})
}

func TestBounceIsDecidedTwice(t *testing.T) {
	Convey("Given a session with two page views", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")

		_, err := f.mgr.TrackPageView(ctx, "p1", "/", "Home")
		So(err, ShouldBeNil)
		f.clock.Advance(5 * time.Second)
		_, err = f.mgr.TrackPageView(ctx, "p1", "/pricing", "Pricing")
		So(err, ShouldBeNil)

		Convey("Then it should not be bounced while open", func() {
			So(f.mgr.Current().Bounced, ShouldBeFalse)
			So(f.store.Sessions(ctx, "p1", nil)[0].Bounced, ShouldBeFalse)
		})

		Convey("When it ends after 10 seconds", func() {
			f.clock.Advance(5 * time.Second)
			So(f.mgr.EndSession(ctx), ShouldBeNil)

			Convey("Then it should be bounced because it was shorter than 30s", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.Bounced, ShouldBeTrue)
				So(s.Duration, ShouldEqual, 10)
				So(s.PageViews, ShouldEqual, 2)
				So(s.EndTime.Equal(start.Add(10*time.Second)), ShouldBeTrue)
				So(f.mgr.Current(), ShouldBeNil)
			})
		})

		Convey("When it ends after two minutes", func() {
			f.clock.Advance(115 * time.Second)
			So(f.mgr.EndSession(ctx), ShouldBeNil)

			Convey("Then it should not be bounced", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.Bounced, ShouldBeFalse)
				So(s.Duration, ShouldEqual, 120)
			})
		})
	})

	Convey("Given a long session with a single page view", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")
		_, err := f.mgr.TrackPageView(ctx, "p1", "/", "Home")
		So(err, ShouldBeNil)
		_, err = f.mgr.TrackInteraction(ctx, "p1", model.InteractionClick, "button#cta", session.InteractionOptions{})
		So(err, ShouldBeNil)

		Convey("When it ends after five minutes", func() {
			f.clock.Advance(5 * time.Minute)
			So(f.mgr.EndSession(ctx), ShouldBeNil)

			Convey("Then it should be bounced because it had one page view", func() {
				So(f.store.Sessions(ctx, "p1", nil)[0].Bounced, ShouldBeTrue)
			})
		})
	})

	Convey("Given a manager without an active session", t, func() {
		f := newFixture(t, "v1")

		Convey("Then EndSession should do nothing", func() {
			So(f.mgr.EndSession(context.Background()), ShouldBeNil)
			So(f.store.Sessions(context.Background(), "", nil), ShouldBeEmpty)
		})
	})
}

func TestTrackCalls(t *testing.T) {
	Convey("Given a visitor manager", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")

		Convey("When tracking an interaction first", func() {
			ev, err := f.mgr.TrackInteraction(ctx, "p1", model.InteractionDownload, "a.pdf",
				session.InteractionOptions{Position: &model.Position{X: 10, Y: 20}, SectionID: "docs"})
			So(err, ShouldBeNil)

			Convey("Then a session should be started automatically", func() {
				s := f.mgr.Current()
				So(s, ShouldNotBeNil)
				So(ev.SessionID, ShouldEqual, s.ID)
				So(s.Interactions, ShouldEqual, 1)
				So(s.Bounced, ShouldBeFalse)
			})
		})

		Convey("When tracking an unknown interaction type", func() {
			_, err := f.mgr.TrackInteraction(ctx, "p1", "swipe", "", session.InteractionOptions{})

			Convey("Then it should be rejected without starting a session", func() {
				So(errors.Is(err, session.ErrInvalidInteraction), ShouldBeTrue)
				So(f.mgr.Current(), ShouldBeNil)
			})
		})

		Convey("When tracking a conversion", func() {
			ev, err := f.mgr.TrackConversion(ctx, "p1", "signup", 25, map[string]string{"plan": "pro"})
			So(err, ShouldBeNil)

			Convey("Then it should be stored and embedded in the session", func() {
				So(f.store.Conversions(ctx, "p1", nil), ShouldHaveLength, 1)
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.Conversions, ShouldHaveLength, 1)
				So(s.Conversions[0].ID, ShouldEqual, ev.ID)
				So(s.Conversions[0].Metadata["plan"], ShouldEqual, "pro")
				So(s.Bounced, ShouldBeFalse)
			})
		})

		Convey("When tracking page views, interactions and conversions", func() {
			for i := 0; i < 3; i++ {
				_, err := f.mgr.TrackPageView(ctx, "p1", fmt.Sprintf("/p%d", i), "", session.WithLoadTime(800))
				So(err, ShouldBeNil)
				_, err = f.mgr.TrackInteraction(ctx, "p1", model.InteractionClick, "a", session.InteractionOptions{})
				So(err, ShouldBeNil)
			}

			Convey("Then session counters should equal the stored event counts", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.PageViews, ShouldEqual, len(f.store.PageViews(ctx, "p1", nil)))
				So(s.Interactions, ShouldEqual, len(f.store.Interactions(ctx, "p1", nil)))
				So(f.store.PageViews(ctx, "p1", nil)[0].LoadTime, ShouldEqual, 800)
			})

			Convey("Then interactions should reference the page they happened on", func() {
				So(f.store.Interactions(ctx, "p1", nil)[2].Page, ShouldEqual, "/p2")
			})

			Convey("Then page views should snapshot the session classification", func() {
				pv := f.store.PageViews(ctx, "p1", nil)[0]
				So(pv.Browser, ShouldEqual, "Chrome")
				So(pv.Country, ShouldEqual, "Canada")
			})
		})

		Convey("When the visitor moves to another project", func() {
			first, err := f.mgr.StartSession(ctx, "p1")
			So(err, ShouldBeNil)
			_, err = f.mgr.TrackPageView(ctx, "p2", "/", "")
			So(err, ShouldBeNil)

			Convey("Then the first session should be finalized and a new one opened", func() {
				So(f.store.Sessions(ctx, "p1", nil)[0].EndTime, ShouldNotBeNil)
				So(f.mgr.Current().ProjectID, ShouldEqual, "p2")
				So(f.mgr.Current().ID, ShouldNotEqual, first.ID)
			})
		})

		Convey("When tracking performance without a session", func() {
			sample, err := f.mgr.TrackPerformance(ctx, "p1", model.PerformanceSample{LoadTime: 950, CacheHitRate: 80})
			So(err, ShouldBeNil)

			Convey("Then the sample should be stored without starting a session", func() {
				So(sample.SessionID, ShouldBeEmpty)
				So(sample.Timestamp, ShouldEqual, start)
				So(f.mgr.Current(), ShouldBeNil)
				So(f.store.PerformanceSamples(ctx, "p1", nil), ShouldHaveLength, 1)
			})
		})
	})
}

func TestPageEngagement(t *testing.T) {
	Convey("Given a visitor reading a page", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")
		first, err := f.mgr.TrackPageView(ctx, "p1", "/article", "Article")
		So(err, ShouldBeNil)

		f.mgr.RecordScroll(40)
		f.mgr.RecordScroll(85)
		f.mgr.RecordScroll(20)
		f.clock.Advance(45 * time.Second)

		Convey("When the tab is hidden", func() {
			So(f.mgr.FlushPageEngagement(ctx), ShouldBeNil)

			Convey("Then time on page and the deepest scroll should be stored", func() {
				pv := f.store.PageViews(ctx, "p1", nil)[0]
				So(pv.ID, ShouldEqual, first.ID)
				So(pv.TimeOnPage, ShouldEqual, 45)
				So(pv.ScrollDepth, ShouldEqual, 85)
			})
		})

		Convey("When navigating to the next page", func() {
			_, err := f.mgr.TrackPageView(ctx, "p1", "/next", "Next")
			So(err, ShouldBeNil)
			f.clock.Advance(10 * time.Second)
			So(f.mgr.EndSession(ctx), ShouldBeNil)

			Convey("Then each page should carry its own engagement", func() {
				pvs := f.store.PageViews(ctx, "p1", nil)
				So(pvs[0].TimeOnPage, ShouldEqual, 45)
				So(pvs[0].ScrollDepth, ShouldEqual, 85)
				So(pvs[1].TimeOnPage, ShouldEqual, 10)
				So(pvs[1].ScrollDepth, ShouldEqual, 0)
			})
		})

		Convey("When the session is ended at the last activity", func() {
			last := f.mgr.LastActivity()
			f.clock.Advance(30 * time.Minute)
			So(f.mgr.EndSessionAt(ctx, last), ShouldBeNil)

			Convey("Then the idle gap should not count as engagement", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.EndTime.Equal(last), ShouldBeTrue)
				So(s.Duration, ShouldEqual, 0)
				So(f.store.PageViews(ctx, "p1", nil)[0].TimeOnPage, ShouldEqual, 0)
				So(f.mgr.LastActivity().Equal(last), ShouldBeTrue)
			})
		})

		Convey("When the end time precedes the session start", func() {
			So(f.mgr.EndSessionAt(ctx, start.Add(-time.Hour)), ShouldBeNil)

			Convey("Then it should be clamped to the start", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.EndTime.Equal(start), ShouldBeTrue)
				So(s.Duration, ShouldEqual, 0)
				So(s.Bounced, ShouldBeTrue)
			})
		})

		Convey("When scroll depth is out of range", func() {
			f.mgr.RecordScroll(250)
			So(f.mgr.FlushPageEngagement(ctx), ShouldBeNil)

			Convey("Then it should be clamped to 100", func() {
				So(f.store.PageViews(ctx, "p1", nil)[0].ScrollDepth, ShouldEqual, 100)
			})
		})
	})
}

// failingStore fails appends so write errors can be observed.
type failingStore struct {
	*repository.Store
	failPageViews bool
	failSessions  bool
}

var errDisk = errors.New("quota exceeded")

func (f *failingStore) AppendSession(ctx context.Context, s model.VisitorSession) error {
	if f.failSessions {
		return errDisk
	}
	return f.Store.AppendSession(ctx, s)
}

func (f *failingStore) AppendPageView(ctx context.Context, pv model.PageViewEvent) error {
	if f.failPageViews {
		return errDisk
	}
	return f.Store.AppendPageView(ctx, pv)
}

func TestWriteFailures(t *testing.T) {
	Convey("Given a store that rejects writes", t, func() {
		ctx := context.Background()
		clock := quartz.NewMock(t)
		clock.Set(start)
		fs := &failingStore{Store: repository.New(kv.NewMemory())}
		mgr := session.New(model.Visitor{ID: "v1"}, fs, session.WithClock(clock))

		Convey("When the session cannot be persisted", func() {
			fs.failSessions = true
			_, err := mgr.TrackPageView(ctx, "p1", "/", "")

			Convey("Then the error should surface and no session should be current", func() {
				So(errors.Is(err, errDisk), ShouldBeTrue)
				So(mgr.Current(), ShouldBeNil)
			})
		})

		Convey("When the page view cannot be persisted", func() {
			fs.failPageViews = true
			_, err := mgr.TrackPageView(ctx, "p1", "/", "")

			Convey("Then the error should surface and counters stay consistent", func() {
				So(errors.Is(err, errDisk), ShouldBeTrue)
				So(mgr.Current().PageViews, ShouldEqual, 0)
				So(mgr.Current().Bounced, ShouldBeTrue)
			})
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given track commands for one visitor", t, func() {
		ctx := context.Background()
		f := newFixture(t, "v1")
		cmd := func(typ model.CommandType, mut func(*model.TrackCommand)) model.TrackCommand {
			c := model.TrackCommand{ProjectID: "p1", Visitor: f.mgr.Visitor(), Type: typ}
			if mut != nil {
				mut(&c)
			}
			return c
		}

		Convey("When a full journey is applied", func() {
			So(f.mgr.Apply(ctx, cmd(model.CommandPageView, func(c *model.TrackCommand) { c.Page = "/" })), ShouldBeNil)
			So(f.mgr.Apply(ctx, cmd(model.CommandScroll, func(c *model.TrackCommand) { c.ScrollDepth = 60 })), ShouldBeNil)
			So(f.mgr.Apply(ctx, cmd(model.CommandPerformance, func(c *model.TrackCommand) {
				c.Performance = model.PerformanceSample{LoadTime: 700}
			})), ShouldBeNil)
			So(f.mgr.Apply(ctx, cmd(model.CommandInteraction, func(c *model.TrackCommand) {
				c.Interaction = model.InteractionHover
			})), ShouldBeNil)
			f.clock.Advance(20 * time.Second)
			So(f.mgr.Apply(ctx, cmd(model.CommandEngagement, nil)), ShouldBeNil)
			So(f.mgr.Apply(ctx, cmd(model.CommandPageView, func(c *model.TrackCommand) { c.Page = "/contact" })), ShouldBeNil)
			So(f.mgr.Apply(ctx, cmd(model.CommandConversion, func(c *model.TrackCommand) { c.Goal = "form_submit" })), ShouldBeNil)
			f.clock.Advance(40 * time.Second)
			So(f.mgr.Apply(ctx, cmd(model.CommandEnd, nil)), ShouldBeNil)

			Convey("Then the stored history should reflect every command", func() {
				s := f.store.Sessions(ctx, "p1", nil)[0]
				So(s.PageViews, ShouldEqual, 2)
				So(s.Interactions, ShouldEqual, 1)
				So(s.Conversions, ShouldHaveLength, 1)
				So(s.Duration, ShouldEqual, 60)
				So(s.Bounced, ShouldBeFalse)

				pvs := f.store.PageViews(ctx, "p1", nil)
				So(pvs[0].ScrollDepth, ShouldEqual, 60)
				So(pvs[0].TimeOnPage, ShouldEqual, 20)
				So(f.store.PerformanceSamples(ctx, "p1", nil)[0].SessionID, ShouldEqual, s.ID)
			})
		})

		Convey("When an unknown command is applied", func() {
			err := f.mgr.Apply(ctx, cmd("ping", nil))

			Convey("Then ErrUnknownCommand should be returned", func() {
				So(errors.Is(err, session.ErrUnknownCommand), ShouldBeTrue)
			})
		})
	})
}
