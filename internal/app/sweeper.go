package service

import (
	"context"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
)

func (s *Service) runSweeper(ctx context.Context) {
	defer close(s.sweeperDone)
	ticker := s.clock.NewTicker(s.cfg.SweepInterval(), "sweeper")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(ctx); n > 0 {
				s.logger.Debug(ctx, "idle sessions queued for end", logger.Int("count", n))
			}
		}
	}
}

// SweepIdle queues an end command for every visitor idle longer than the
// session idle timeout and returns how many were queued. The end runs on the
// visitor's own worker; visitors that were refused by a full queue are
// retried on the next sweep.
func (s *Service) SweepIdle(ctx context.Context) int {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.SessionIdleTimeout())

	s.trackersMu.Lock()
	var idle []model.TrackCommand
	for _, t := range s.trackers {
		if t.lastActivity.Before(cutoff) {
			idle = append(idle, model.TrackCommand{
				ProjectID:  t.projectID,
				Visitor:    t.visitor,
				Type:       model.CommandEnd,
				ReceivedAt: now,
			})
		}
	}
	s.trackersMu.Unlock()

	queued := 0
	for _, cmd := range idle {
		if err := s.queue.TryEnqueue(ctx, cmd); err != nil {
			s.logger.Debug(ctx, "idle end deferred", logger.String("key", cmd.Key()), logger.Error(err))
			continue
		}
		queued++
	}
	return queued
}
