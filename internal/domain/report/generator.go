// Package report composes aggregation views into analytics summaries.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/sitestats/internal/domain/aggregate"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

// Reader is the event history a Generator reads from.
type Reader interface {
	Sessions(ctx context.Context, projectID string, r *model.DateRange) []model.VisitorSession
	PageViews(ctx context.Context, projectID string, r *model.DateRange) []model.PageViewEvent
	Interactions(ctx context.Context, projectID string, r *model.DateRange) []model.InteractionEvent
	Conversions(ctx context.Context, projectID string, r *model.DateRange) []model.ConversionEvent
	PerformanceSamples(ctx context.Context, projectID string, r *model.DateRange) []model.PerformanceSample
}

// Generator builds summaries. It holds no state between calls.
type Generator struct {
	reader Reader
	clock  quartz.Clock
	loc    *time.Location
	log    logger.Logger
}

// New creates a Generator over reader.
func New(reader Reader, opts ...Option) *Generator {
	g := &Generator{
		reader: reader,
		clock:  quartz.NewReal(),
		loc:    time.UTC,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// snapshot is every event of one project, read once.
type snapshot struct {
	sessions     []model.VisitorSession
	pageViews    []model.PageViewEvent
	interactions []model.InteractionEvent
	conversions  []model.ConversionEvent
	performance  []model.PerformanceSample
}

func (g *Generator) read(ctx context.Context, projectID string) snapshot {
	return snapshot{
		sessions:     g.reader.Sessions(ctx, projectID, nil),
		pageViews:    g.reader.PageViews(ctx, projectID, nil),
		interactions: g.reader.Interactions(ctx, projectID, nil),
		conversions:  g.reader.Conversions(ctx, projectID, nil),
		performance:  g.reader.PerformanceSamples(ctx, projectID, nil),
	}
}

// within keeps the part of the snapshot inside r. Sessions are selected by
// start time.
func (s snapshot) within(r *model.DateRange) snapshot {
	if r == nil {
		return s
	}
	return snapshot{
		sessions:     filter(s.sessions, func(v model.VisitorSession) time.Time { return v.StartTime }, r),
		pageViews:    filter(s.pageViews, func(v model.PageViewEvent) time.Time { return v.Timestamp }, r),
		interactions: filter(s.interactions, func(v model.InteractionEvent) time.Time { return v.Timestamp }, r),
		conversions:  filter(s.conversions, func(v model.ConversionEvent) time.Time { return v.Timestamp }, r),
		performance:  filter(s.performance, func(v model.PerformanceSample) time.Time { return v.Timestamp }, r),
	}
}

func filter[T any](items []T, at func(T) time.Time, r *model.DateRange) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if r.Contains(at(it)) {
			out = append(out, it)
		}
	}
	return out
}

// Summary computes every view of projectID. The historical views cover r
// (all history when nil); the real-time view always covers the trailing
// window ending now. Every view is derived from one read of the store.
func (g *Generator) Summary(ctx context.Context, projectID string, r *model.DateRange) (model.AnalyticsSummary, error) {
	if r != nil && r.End.Before(r.Start) {
		return model.AnalyticsSummary{}, fmt.Errorf("%w: end before start", model.ErrInvalidRange)
	}
	if err := ctx.Err(); err != nil {
		return model.AnalyticsSummary{}, err
	}
	began := time.Now()
	now := g.clock.Now()

	all := g.read(ctx, projectID)
	in := all.within(r)

	summary := model.AnalyticsSummary{
		ProjectID:    projectID,
		DateRange:    r,
		GeneratedAt:  now.UTC(),
		Overview:     aggregate.Overview(in.sessions, in.pageViews, in.conversions),
		Traffic:      aggregate.Traffic(in.pageViews, g.loc),
		Demographics: aggregate.Demographics(in.sessions),
		Behavior:     aggregate.Behavior(in.sessions, in.pageViews),
		Performance:  aggregate.Performance(in.performance),
		Conversions:  aggregate.Conversions(in.sessions, in.conversions),
		RealTime:     aggregate.RealTime(now, all.sessions, all.pageViews, all.interactions, all.conversions),
	}

	events := len(all.sessions) + len(all.pageViews) + len(all.interactions) + len(all.conversions) + len(all.performance)
	metrics.RecordSummarySnapshotSize(events)
	metrics.RecordSummaryLatency("summary", float64(time.Since(began).Microseconds())/1000)
	g.log.Debug(ctx, "summary generated",
		logger.String("project_id", projectID),
		logger.Int("snapshot_events", events),
		logger.Duration("took", time.Since(began)),
	)
	return summary, nil
}

// RealTime computes only the live view of projectID.
func (g *Generator) RealTime(ctx context.Context, projectID string) (model.RealTime, error) {
	if err := ctx.Err(); err != nil {
		return model.RealTime{}, err
	}
	began := time.Now()
	now := g.clock.Now()
	all := g.read(ctx, projectID)
	rt := aggregate.RealTime(now, all.sessions, all.pageViews, all.interactions, all.conversions)
	metrics.RecordSummaryLatency("realtime", float64(time.Since(began).Microseconds())/1000)
	return rt, nil
}
