// Package service wires storage, session tracking, the command queue and
// reporting into the process-wide analytics service.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/sitestats/internal/adapters/enricher"
	"github.com/okian/sitestats/internal/adapters/kv"
	"github.com/okian/sitestats/internal/adapters/mq/queue"
	"github.com/okian/sitestats/internal/adapters/mq/worker"
	"github.com/okian/sitestats/internal/adapters/repository"
	"github.com/okian/sitestats/internal/config"
	"github.com/okian/sitestats/internal/domain/dedupe"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/internal/domain/report"
	"github.com/okian/sitestats/internal/domain/session"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// tracker is the session Manager of one visitor of one project. The Manager
// is only touched by the worker owning the visitor's shard.
type tracker struct {
	mgr          *session.Manager
	projectID    string
	visitor      model.Visitor
	lastActivity time.Time
}

// Service implements the dependencies of the HTTP API and stream ingest.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	clock    quartz.Clock
	newID    func() string
	resolver enricher.LocationResolver
	logger   logger.Logger

	backend   kv.Store
	geoip     io.Closer
	repo      *repository.Store
	deduper   dedupe.Deduper
	queue     *queue.Queue
	pool      *worker.Pool
	generator *report.Generator

	trackersMu sync.Mutex
	trackers   map[string]*tracker

	started     bool
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(),
		clock:    quartz.NewReal(),
		trackers: make(map[string]*tracker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage and starts the workers and the idle sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	log := s.logger

	if s.backend == nil {
		backend, err := kv.Open(ctx, s.cfg, kv.WithLogger(log.Named("kv")))
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.cfg.StorageBackend, err)
		}
		s.backend = backend
	}
	if s.resolver == nil {
		s.resolver = enricher.NewStaticResolver(model.Location{})
		if s.cfg.GeoIPPath != "" {
			geo, err := enricher.OpenGeoIP(s.cfg.GeoIPPath, log.Named("geoip"))
			if err != nil {
				log.Warn(ctx, "geoip disabled", logger.Error(err))
			} else {
				s.resolver = geo
				s.geoip = geo
			}
		}
	}

	s.repo = repository.New(s.backend, repository.WithLogger(log.Named("repository")))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.New(
		queue.WithCapacity(s.cfg.EventQueueSize),
		queue.WithShards(s.cfg.WorkerCount),
	)
	s.pool = worker.NewPool(s.queue, worker.HandlerFunc(s.Apply), worker.WithLogger(log.Named("worker")))
	s.generator = report.New(s.repo,
		report.WithClock(s.clock),
		report.WithLocation(s.cfg.Location()),
		report.WithLogger(log.Named("report")),
	)
	s.pool.Start(context.WithoutCancel(ctx))

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopSweeper = cancel
	s.sweeperDone = make(chan struct{})
	go s.runSweeper(sweepCtx)

	s.started = true
	log.Info(ctx, "analytics service started",
		logger.String("storage", s.cfg.StorageBackend),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.EventQueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// Stop drains the queue, ends every open session and closes storage.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping analytics service")

	s.stopSweeper()
	<-s.sweeperDone

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.endAll(ctx)

	if err := s.repo.Close(); err != nil {
		s.logger.Error(ctx, "close store", logger.Error(err))
	}
	if s.geoip != nil {
		_ = s.geoip.Close()
	}
	s.backend = nil
	s.started = false
	s.logger.Info(ctx, "analytics service stopped")
}

// endAll finalizes every open session. Workers must be stopped.
func (s *Service) endAll(ctx context.Context) {
	s.trackersMu.Lock()
	defer s.trackersMu.Unlock()
	now := s.clock.Now()
	for key, t := range s.trackers {
		if err := t.mgr.EndSessionAt(ctx, s.endTime(t, now)); err != nil {
			s.logger.Error(ctx, "end session on shutdown", logger.String("key", key), logger.Error(err))
		}
		delete(s.trackers, key)
	}
	metrics.UpdateActiveTrackers(0)
}

// endTime is when a session closed at now actually ended: a visitor idle past
// the timeout left at their last activity.
func (s *Service) endTime(t *tracker, now time.Time) time.Time {
	if now.Sub(t.lastActivity) >= s.cfg.SessionIdleTimeout() {
		return t.lastActivity
	}
	return now
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Ingest validates, deduplicates and enqueues cmd. It returns an error
// wrapping model.ErrInvalidCommand, dedupe.ErrDuplicate, queue.ErrFull or
// queue.ErrClosed.
func (s *Service) Ingest(ctx context.Context, cmd model.TrackCommand) error { //nolint:gocritic // hugeParam: commands are values
	if !s.isStarted() {
		return ErrNotStarted
	}
	if cmd.EventID == "" {
		return fmt.Errorf("%w: event id is required", model.ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = s.clock.Now()
	}
	if s.deduper.SeenAndRecord(ctx, cmd.EventID) {
		metrics.RecordEventDuplicate()
		return fmt.Errorf("%w: %s", dedupe.ErrDuplicate, cmd.EventID)
	}
	if err := s.queue.TryEnqueue(ctx, cmd); err != nil {
		s.deduper.Unrecord(ctx, cmd.EventID)
		return fmt.Errorf("enqueue %s: %w", cmd.EventID, err)
	}
	return nil
}

// Enqueue is Ingest reporting only success.
func (s *Service) Enqueue(ctx context.Context, cmd model.TrackCommand) bool { //nolint:gocritic // hugeParam: commands are values
	return s.Ingest(ctx, cmd) == nil
}

// Apply runs cmd against the visitor's session Manager. It is the worker
// handler and must only be called from the worker owning cmd's shard.
func (s *Service) Apply(ctx context.Context, cmd model.TrackCommand) error { //nolint:gocritic // hugeParam: commands are values
	key := cmd.Key()
	now := s.clock.Now()

	s.trackersMu.Lock()
	t, ok := s.trackers[key]
	if cmd.Type == model.CommandEnd {
		if !ok {
			s.trackersMu.Unlock()
			return nil
		}
		// An idle end is stale once the visitor came back after the sweep.
		idle := cmd.EventID == ""
		if idle && t.lastActivity.After(cmd.ReceivedAt.Add(-s.cfg.SessionIdleTimeout())) {
			s.trackersMu.Unlock()
			return nil
		}
		endAt := now
		if idle {
			endAt = t.lastActivity
		}
		delete(s.trackers, key)
		metrics.UpdateActiveTrackers(len(s.trackers))
		s.trackersMu.Unlock()
		metrics.RecordCommandApplied(string(cmd.Type))
		return t.mgr.EndSessionAt(ctx, endAt)
	}
	if !ok {
		t = &tracker{mgr: s.newManager(cmd.Visitor), projectID: cmd.ProjectID, visitor: cmd.Visitor}
		s.trackers[key] = t
		metrics.UpdateActiveTrackers(len(s.trackers))
	}
	t.lastActivity = now
	s.trackersMu.Unlock()

	if err := t.mgr.Apply(ctx, cmd); err != nil {
		return err
	}
	metrics.RecordCommandApplied(string(cmd.Type))
	return nil
}

func (s *Service) newManager(v model.Visitor) *session.Manager {
	opts := []session.Option{
		session.WithClock(s.clock),
		session.WithLocationResolver(s.resolver),
		session.WithLogger(s.logger.Named("session")),
	}
	if s.newID != nil {
		opts = append(opts, session.WithIDGenerator(s.newID))
	}
	return session.New(v, s.repo, opts...)
}

// GenerateAnalyticsSummary returns every view of projectID over r, or over
// all history when r is nil.
func (s *Service) GenerateAnalyticsSummary(ctx context.Context, projectID string, r *model.DateRange) (model.AnalyticsSummary, error) {
	if !s.isStarted() {
		return model.AnalyticsSummary{}, ErrNotStarted
	}
	return s.generator.Summary(ctx, projectID, r)
}

// RealTime returns the live view of projectID.
func (s *Service) RealTime(ctx context.Context, projectID string) (model.RealTime, error) {
	if !s.isStarted() {
		return model.RealTime{}, ErrNotStarted
	}
	return s.generator.RealTime(ctx, projectID)
}

// ClearAll deletes the event history and forgets open sessions. Visited
// markers survive, so returning visitors stay recognized.
func (s *Service) ClearAll(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if err := s.repo.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.trackersMu.Lock()
	clear(s.trackers)
	s.trackersMu.Unlock()
	metrics.UpdateActiveTrackers(0)
	s.logger.Info(ctx, "event history cleared")
	return nil
}

// ActiveTrackers returns the number of visitors with a live Manager.
func (s *Service) ActiveTrackers() int {
	s.trackersMu.Lock()
	defer s.trackersMu.Unlock()
	return len(s.trackers)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"storageBackend": s.cfg.StorageBackend,
		"workerCount":    s.cfg.WorkerCount,
		"queueSize":      s.cfg.EventQueueSize,
		"dedupeSize":     s.cfg.DedupeSize,
	}
	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["activeTrackers"] = s.ActiveTrackers()
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// CollectionCounts returns the number of stored records per collection. It
// scans the whole history, so GetStats leaves it out.
func (s *Service) CollectionCounts(ctx context.Context) map[string]int {
	s.mu.RLock()
	repo, started := s.repo, s.started
	s.mu.RUnlock()
	if !started {
		return nil
	}
	return repo.Counts(ctx)
}
