// Package repository is the typed, append-oriented event store.
//
// One logical collection per event kind spans every project; each event is
// its own record keyed by id. Project and date range filtering happen at read
// time. Reads never return errors: backend failures degrade to an empty
// result and corrupt records are skipped, both logged and counted.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/sitestats/internal/adapters/kv"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

// Collection names.
const (
	CollectionSessions     = "sessions"
	CollectionPageViews    = "pageviews"
	CollectionInteractions = "interactions"
	CollectionConversions  = "conversions"
	CollectionPerformance  = "performance"
)

// Collections lists every event collection.
var Collections = []string{ //nolint:gochecknoglobals // fixed layout
	CollectionSessions,
	CollectionPageViews,
	CollectionInteractions,
	CollectionConversions,
	CollectionPerformance,
}

// Store persists and reads analytics events.
type Store struct {
	kv  kv.Store
	log logger.Logger
}

// New creates a Store over a key-value backend.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{kv: backend, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions.

// AppendSession persists a newly started session.
func (s *Store) AppendSession(ctx context.Context, v model.VisitorSession) error {
	if err := put(ctx, s, CollectionSessions, v.ID, v); err != nil {
		return err
	}
	metrics.RecordEventTracked("session")
	return nil
}

// SaveSession replaces a session record with its latest state.
func (s *Store) SaveSession(ctx context.Context, v model.VisitorSession) error {
	return put(ctx, s, CollectionSessions, v.ID, v)
}

// Sessions returns the project's sessions started within r, oldest first.
func (s *Store) Sessions(ctx context.Context, projectID string, r *model.DateRange) []model.VisitorSession {
	out := scan(ctx, s, CollectionSessions, func(v *model.VisitorSession) bool {
		return matchProject(projectID, v.ProjectID) && r.Contains(v.StartTime)
	})
	sort.Slice(out, func(i, j int) bool { return before(out[i].StartTime, out[i].ID, out[j].StartTime, out[j].ID) })
	return out
}

// Page views.

// AppendPageView persists a page view.
func (s *Store) AppendPageView(ctx context.Context, v model.PageViewEvent) error {
	if err := put(ctx, s, CollectionPageViews, v.ID, v); err != nil {
		return err
	}
	metrics.RecordEventTracked(model.KindPageView)
	return nil
}

// UpdatePageView applies patch to a stored page view atomically. Only
// TimeOnPage and ScrollDepth can change.
func (s *Store) UpdatePageView(ctx context.Context, id string, patch model.PageViewPatch) error {
	err := s.kv.Update(ctx, CollectionPageViews, id, func(cur []byte) ([]byte, error) {
		pv, err := decode[model.PageViewEvent](cur)
		if err != nil {
			return nil, fmt.Errorf("decode page view %s: %w", id, err)
		}
		patch.Apply(&pv)
		return encode(pv)
	})
	if errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("%w: page view %s", ErrNotFound, id)
	}
	if err != nil {
		metrics.RecordStoreWriteError(CollectionPageViews)
		return fmt.Errorf("%w: update page view %s: %w", ErrWrite, id, err)
	}
	return nil
}

// PageViews returns the project's page views within r, oldest first.
func (s *Store) PageViews(ctx context.Context, projectID string, r *model.DateRange) []model.PageViewEvent {
	out := scan(ctx, s, CollectionPageViews, func(v *model.PageViewEvent) bool {
		return matchProject(projectID, v.ProjectID) && r.Contains(v.Timestamp)
	})
	sort.Slice(out, func(i, j int) bool { return before(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID) })
	return out
}

// Interactions.

// AppendInteraction persists an interaction.
func (s *Store) AppendInteraction(ctx context.Context, v model.InteractionEvent) error {
	if err := put(ctx, s, CollectionInteractions, v.ID, v); err != nil {
		return err
	}
	metrics.RecordEventTracked(model.KindInteraction)
	return nil
}

// Interactions returns the project's interactions within r, oldest first.
func (s *Store) Interactions(ctx context.Context, projectID string, r *model.DateRange) []model.InteractionEvent {
	out := scan(ctx, s, CollectionInteractions, func(v *model.InteractionEvent) bool {
		return matchProject(projectID, v.ProjectID) && r.Contains(v.Timestamp)
	})
	sort.Slice(out, func(i, j int) bool { return before(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID) })
	return out
}

// Conversions.

// AppendConversion persists a conversion.
func (s *Store) AppendConversion(ctx context.Context, v model.ConversionEvent) error {
	if err := put(ctx, s, CollectionConversions, v.ID, v); err != nil {
		return err
	}
	metrics.RecordEventTracked(model.KindConversion)
	return nil
}

// Conversions returns the project's conversions within r, oldest first.
func (s *Store) Conversions(ctx context.Context, projectID string, r *model.DateRange) []model.ConversionEvent {
	out := scan(ctx, s, CollectionConversions, func(v *model.ConversionEvent) bool {
		return matchProject(projectID, v.ProjectID) && r.Contains(v.Timestamp)
	})
	sort.Slice(out, func(i, j int) bool { return before(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID) })
	return out
}

// Performance samples.

// AppendPerformance persists a performance sample.
func (s *Store) AppendPerformance(ctx context.Context, v model.PerformanceSample) error {
	if err := put(ctx, s, CollectionPerformance, v.ID, v); err != nil {
		return err
	}
	metrics.RecordEventTracked("performance")
	return nil
}

// PerformanceSamples returns the project's samples within r, oldest first.
func (s *Store) PerformanceSamples(ctx context.Context, projectID string, r *model.DateRange) []model.PerformanceSample {
	out := scan(ctx, s, CollectionPerformance, func(v *model.PerformanceSample) bool {
		return matchProject(projectID, v.ProjectID) && r.Contains(v.Timestamp)
	})
	sort.Slice(out, func(i, j int) bool { return before(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID) })
	return out
}

// Returning visitors.

func visitedKey(projectID, visitorID string) string {
	return "visited:" + projectID + ":" + visitorID
}

// HasVisited reports whether the visitor was seen on the project before.
// Backend failures are logged and read as "not visited".
func (s *Store) HasVisited(ctx context.Context, projectID, visitorID string) bool {
	_, err := s.kv.Get(ctx, visitedKey(projectID, visitorID))
	if err == nil {
		return true
	}
	if !errors.Is(err, kv.ErrNotFound) {
		metrics.RecordStoreReadFallback("visited")
		s.log.Warn(ctx, "visited marker read failed",
			logger.String("project_id", projectID),
			logger.String("visitor_id", visitorID),
			logger.Error(err))
	}
	return false
}

// MarkVisited records that the visitor has been seen on the project.
func (s *Store) MarkVisited(ctx context.Context, projectID, visitorID string) error {
	if err := s.kv.Set(ctx, visitedKey(projectID, visitorID), []byte("1")); err != nil {
		metrics.RecordStoreWriteError("visited")
		return fmt.Errorf("%w: visited marker: %w", ErrWrite, err)
	}
	return nil
}

// Maintenance.

// ClearAll removes every event of every project. Returning-visitor markers
// are kept.
func (s *Store) ClearAll(ctx context.Context) error {
	var errs []error
	for _, c := range Collections {
		if err := s.kv.Drop(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: clear: %w", ErrWrite, errors.Join(errs...))
	}
	s.log.Info(ctx, "event history cleared")
	return nil
}

// Counts returns the number of stored records per collection.
func (s *Store) Counts(ctx context.Context) map[string]int {
	out := make(map[string]int, len(Collections))
	for _, c := range Collections {
		n := 0
		if err := s.kv.Scan(ctx, c, func(string, []byte) error { n++; return nil }); err != nil {
			s.log.Warn(ctx, "count failed", logger.String("collection", c), logger.Error(err))
		}
		out[c] = n
	}
	return out
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func put[T utcNormalizer[T]](ctx context.Context, s *Store, collection, id string, v T) error {
	start := time.Now()
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s/%s: %w", ErrWrite, collection, id, err)
	}
	if err := s.kv.Put(ctx, collection, id, raw); err != nil {
		metrics.RecordStoreWriteError(collection)
		metrics.RecordErrorByComponent("repository", "write")
		return fmt.Errorf("%w: %s/%s: %w", ErrWrite, collection, id, err)
	}
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

func scan[T any](ctx context.Context, s *Store, collection string, keep func(*T) bool) []T {
	start := time.Now()
	var (
		out     []T
		corrupt int
	)
	err := s.kv.Scan(ctx, collection, func(id string, raw []byte) error {
		v, err := decode[T](raw)
		if err != nil {
			corrupt++
			metrics.RecordStoreCorruptRecord(collection)
			s.log.Warn(ctx, "skipping corrupt record",
				logger.String("collection", collection),
				logger.String("id", id),
				logger.Error(err))
			return nil
		}
		if keep(&v) {
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		metrics.RecordStoreReadFallback(collection)
		metrics.RecordErrorByComponent("repository", "read")
		s.log.Error(ctx, "collection read failed, using empty result",
			logger.String("collection", collection),
			logger.Error(err))
		return nil
	}
	metrics.RecordStoreReadLatency(float64(time.Since(start).Microseconds()) / 1000)
	if corrupt > 0 {
		s.log.Debug(ctx, "scan finished with skipped records",
			logger.String("collection", collection),
			logger.Int("corrupt", corrupt),
			logger.Int("kept", len(out)))
	}
	return out
}

func matchProject(want, got string) bool {
	return want == "" || want == got
}

func before(a time.Time, aID string, b time.Time, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}
