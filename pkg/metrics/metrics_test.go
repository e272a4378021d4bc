package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the sitestats namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "sitestats")
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("prefix_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the collectors should use them", func() {
				manager.eventsDuplicate.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_prefix_events_duplicate_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
			})

			Convey("And a disabled manager should not run the system collector", func() {
				done := make(chan struct{})
				go func() {
					manager.collectSystem(context.Background())
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("collector kept running while disabled")
				}
			})
		})

		Convey("When options receive zero values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "sitestats")
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording tracking metrics", func() {
			before := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("pageview"))
			RecordEventTracked("pageview")
			RecordEventTracked("pageview")

			Convey("Then the per-kind counter should advance", func() {
				So(testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("pageview")), ShouldEqual, before+2)
			})
		})

		Convey("When recording applied commands", func() {
			scroll := testutil.ToFloat64(globalManager.commandsApplied.WithLabelValues("scroll"))
			tracked := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("scroll"))
			RecordCommandApplied("scroll")

			Convey("Then only the per-type command counter should advance", func() {
				So(testutil.ToFloat64(globalManager.commandsApplied.WithLabelValues("scroll")), ShouldEqual, scroll+1)
				So(testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("scroll")), ShouldEqual, tracked)
			})
		})

		Convey("When ending sessions", func() {
			ended := testutil.ToFloat64(globalManager.sessionsEnded)
			bounced := testutil.ToFloat64(globalManager.sessionsBounced)
			RecordSessionEnded(true)
			RecordSessionEnded(false)

			Convey("Then only bounced sessions should count as bounces", func() {
				So(testutil.ToFloat64(globalManager.sessionsEnded), ShouldEqual, ended+2)
				So(testutil.ToFloat64(globalManager.sessionsBounced), ShouldEqual, bounced+1)
			})
		})

		Convey("When recording store metrics", func() {
			before := testutil.ToFloat64(globalManager.storeCorruptRecords.WithLabelValues("sessions"))
			RecordStoreCorruptRecord("sessions")

			Convey("Then the corrupt record counter should advance", func() {
				So(testutil.ToFloat64(globalManager.storeCorruptRecords.WithLabelValues("sessions")), ShouldEqual, before+1)
			})

			Convey("And the remaining store recorders should not panic", func() {
				So(func() {
					RecordStoreReadFallback("pageViews")
					RecordStoreWriteError("events")
					RecordStoreWriteLatency(2.5)
					RecordStoreReadLatency(1.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When updating gauges", func() {
			UpdateActiveTrackers(7)
			UpdateQueueSize(12)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.12)
			UpdateWorkerCount(4)

			Convey("Then they should report the latest value", func() {
				So(testutil.ToFloat64(globalManager.activeTrackers), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.12)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When recording the rest of the recorders", func() {
			So(func() {
				RecordEventDuplicate()
				RecordSessionStarted()
				RecordSummaryLatency("summary", 3.2)
				RecordSummaryLatency("realtime", 0.4)
				RecordSummarySnapshotSize(1200)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected("full")
				RecordWorkerProcessingLatency(1.2)
				RecordWorkerError()
				RecordHTTPRequest("/v1/projects/{projectID}/track", "POST", "202")
				RecordHTTPRequestDuration("/v1/projects/{projectID}/track", "POST", "202", 0.8)
				RecordErrorByComponent("repository", "write")
				RecordErrorByEndpoint("/v1/projects/{projectID}/summary", "GET", "bad_request")
				UpdateSystemMemoryUsage(1024 * 1024)
				UpdateSystemGoroutineCount(42)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestSystemCollector(t *testing.T) {
	Convey("Given an enabled manager with a short refresh interval", t, func() {
		manager := NewManager(
			WithPrometheusRegistry(prometheus.NewRegistry()),
			WithRefreshInterval(10*time.Millisecond),
		)

		Convey("When the collector runs until cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			manager.collectSystem(ctx)

			Convey("Then goroutine and memory gauges should be populated", func() {
				So(testutil.ToFloat64(manager.systemGoroutineCount), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(manager.systemMemoryUsage), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the private registry", t, func() {
		RecordEventTracked("conversion")

		Convey("When gathering it", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)

			Convey("Then every family should carry the sitestats namespace", func() {
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "sitestats_analytics_"), ShouldBeTrue)
				}
			})
		})
	})
}
