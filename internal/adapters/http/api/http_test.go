package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitestats/internal/adapters/http/api"
	"github.com/okian/sitestats/internal/adapters/mq/queue"
	service "github.com/okian/sitestats/internal/app"
	"github.com/okian/sitestats/internal/domain/dedupe"
	"github.com/okian/sitestats/internal/domain/model"
)

type fakeDeps struct {
	ingested  []model.TrackCommand
	ingestErr error

	summary      model.AnalyticsSummary
	summaryErr   error
	summaryRange *model.DateRange
	project      string

	realTime    model.RealTime
	realTimeErr error

	cleared  int
	clearErr error
}

func (f *fakeDeps) Ingest(_ context.Context, cmd model.TrackCommand) error { //nolint:gocritic // hugeParam: matches the service
	if f.ingestErr != nil {
		return f.ingestErr
	}
	f.ingested = append(f.ingested, cmd)
	return nil
}

func (f *fakeDeps) GenerateAnalyticsSummary(_ context.Context, projectID string, r *model.DateRange) (model.AnalyticsSummary, error) {
	f.project = projectID
	f.summaryRange = r
	return f.summary, f.summaryErr
}

func (f *fakeDeps) RealTime(_ context.Context, projectID string) (model.RealTime, error) {
	f.project = projectID
	return f.realTime, f.realTimeErr
}

func (f *fakeDeps) ClearAll(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared++
	return nil
}

type fakeStats map[string]any

func (f fakeStats) GetStats() map[string]any { return f }

func (f fakeStats) CollectionCounts(context.Context) map[string]int {
	return map[string]int{"sessions": 2}
}

func newRouter(deps *fakeDeps) chi.Router {
	r := api.NewRouter()
	api.NewServer(deps, fakeStats{"workerCount": 4}).Register(context.Background(), r)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a router with the API registered", t, func() {
		deps := &fakeDeps{}
		r := newRouter(deps)

		Convey("Then the metrics endpoint should be served at /healthz", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "sitestats_analytics_")
		})

		Convey("Then /stats should return the provider's map with collection counts", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["workerCount"], ShouldEqual, float64(4))
			So(body["collections"], ShouldResemble, map[string]any{"sessions": float64(2)})
		})

		Convey("Then unknown routes and methods should be rejected", func() {
			So(do(r, httptest.NewRequest(http.MethodGet, "/leaderboard", http.NoBody)).Code, ShouldEqual, http.StatusNotFound)
			So(do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/p1/track", http.NoBody)).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then a nil router should panic", func() {
			So(func() {
				api.NewServer(deps, fakeStats{}).Register(context.Background(), nil)
			}, ShouldPanic)
		})
	})
}

func TestEventsHandler_HandleTrack(t *testing.T) {
	Convey("Given the track endpoint", t, func() {
		deps := &fakeDeps{}
		r := newRouter(deps)

		track := func(body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/v1/projects/shop/track", strings.NewReader(body))
			req.Header.Set("User-Agent", "Mozilla/5.0 test")
			req.Header.Set("Referer", "https://news.example/")
			req.Header.Set("X-Real-IP", "198.51.100.7")
			return do(r, req)
		}

		Convey("When a valid page view is posted", func() {
			w := track(`{"event_id":"e1","visitor_id":"v1","type":"pageview","page":"/","title":"Home",
				"project_id":"other","user_agent":"spoofed","ip":"10.0.0.1"}`)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var ack map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &ack), ShouldBeNil)
				So(ack["status"], ShouldEqual, "accepted")
				So(ack["duplicate"], ShouldEqual, false)
			})

			Convey("Then the visitor should be taken from the request", func() {
				So(deps.ingested, ShouldHaveLength, 1)
				cmd := deps.ingested[0]
				So(cmd.ProjectID, ShouldEqual, "shop")
				So(cmd.Visitor.ID, ShouldEqual, "v1")
				So(cmd.Visitor.UserAgent, ShouldEqual, "Mozilla/5.0 test")
				So(cmd.Visitor.IP, ShouldEqual, "198.51.100.7")
				So(cmd.Visitor.Referrer, ShouldEqual, "https://news.example/")
				So(cmd.Page, ShouldEqual, "/")
				So(cmd.ReceivedAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the body names its own referrer", func() {
			track(`{"event_id":"e2","visitor_id":"v1","type":"pageview","page":"/","referrer":"https://ads.example/"}`)

			Convey("Then it should win over the header", func() {
				So(deps.ingested[0].Visitor.Referrer, ShouldEqual, "https://ads.example/")
			})
		})

		Convey("When the body is not JSON", func() {
			w := track(`{not json`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
				So(deps.ingested, ShouldBeEmpty)
			})
		})

		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"duplicate", fmt.Errorf("%w: e1", dedupe.ErrDuplicate), http.StatusOK, "duplicate"},
			{"invalid", fmt.Errorf("%w: page is required", model.ErrInvalidCommand), http.StatusBadRequest, "bad_request"},
			{"backpressure", fmt.Errorf("enqueue e1: %w", queue.ErrFull), http.StatusTooManyRequests, "backpressure"},
			{"closed queue", fmt.Errorf("enqueue e1: %w", queue.ErrClosed), http.StatusServiceUnavailable, "unavailable"},
			{"not started", service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
		}
		for _, tc := range cases {
			Convey("When ingest reports "+tc.name, func() {
				deps.ingestErr = tc.err
				w := track(`{"event_id":"e1","visitor_id":"v1","type":"pageview","page":"/"}`)

				Convey("Then the status should reflect it", func() {
					So(w.Code, ShouldEqual, tc.status)
					So(w.Body.String(), ShouldContainSubstring, tc.code)
				})
			})
		}
	})
}

func TestEventsHandler_HandleClear(t *testing.T) {
	Convey("Given the clear endpoint", t, func() {
		deps := &fakeDeps{}
		r := newRouter(deps)

		Convey("When history is cleared", func() {
			w := do(r, httptest.NewRequest(http.MethodDelete, "/v1/events", http.NoBody))

			Convey("Then it should return no content", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(deps.cleared, ShouldEqual, 1)
			})
		})

		Convey("When clearing fails", func() {
			deps.clearErr = errors.New("disk gone")
			w := do(r, httptest.NewRequest(http.MethodDelete, "/v1/events", http.NoBody))

			Convey("Then it should be an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestSummaryHandler(t *testing.T) {
	Convey("Given the summary endpoints", t, func() {
		deps := &fakeDeps{}
		deps.summary.Overview.TotalVisitors = 3
		deps.realTime.ActiveVisitors = 2
		r := newRouter(deps)

		Convey("When no range is given", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/summary", http.NoBody))

			Convey("Then all history should be requested", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.project, ShouldEqual, "shop")
				So(deps.summaryRange, ShouldBeNil)

				var body model.AnalyticsSummary
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Overview.TotalVisitors, ShouldEqual, 3)
			})
		})

		Convey("When both bounds are given", func() {
			w := do(r, httptest.NewRequest(http.MethodGet,
				"/v1/projects/shop/summary?start=2026-03-01T00:00:00Z&end=2026-03-31T23:59:59Z", http.NoBody))

			Convey("Then the range should be passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.summaryRange, ShouldNotBeNil)
				So(deps.summaryRange.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.summaryRange.End.Equal(time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When only a start is given", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/summary?start=2026-03-01T00:00:00Z", http.NoBody))

			Convey("Then the end should be open", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.summaryRange.End.After(time.Now()), ShouldBeTrue)
			})
		})

		Convey("When a bound is malformed", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/summary?start=yesterday", http.NoBody))

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.project, ShouldBeEmpty)
			})
		})

		Convey("When the end precedes the start", func() {
			w := do(r, httptest.NewRequest(http.MethodGet,
				"/v1/projects/shop/summary?start=2026-03-31T00:00:00Z&end=2026-03-01T00:00:00Z", http.NoBody))

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "invalid date range")
			})
		})

		Convey("When the service is not started", func() {
			deps.summaryErr = service.ErrNotStarted
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/summary", http.NoBody))

			Convey("Then it should be unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When the real-time view is requested", func() {
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/realtime", http.NoBody))

			Convey("Then it should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.project, ShouldEqual, "shop")
				var body model.RealTime
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.ActiveVisitors, ShouldEqual, 2)
			})
		})

		Convey("When the real-time view fails", func() {
			deps.realTimeErr = context.Canceled
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/projects/shop/realtime", http.NoBody))

			Convey("Then it should be an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given the kind helpers", t, func() {
		Convey("Then wrapped errors should match both kind and cause", func() {
			cause := errors.New("cause")
			err := api.WrapKind("api.track", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.track: bad request: cause")
		})

		Convey("Then a nil cause should degrade to the bare kind", func() {
			err := api.WrapKind("api.track", api.ErrBackpressure, nil)
			So(err.Error(), ShouldEqual, "api.track: backpressure")
		})
	})
}
