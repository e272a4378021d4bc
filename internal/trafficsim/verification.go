package trafficsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
)

// ErrMismatch is returned when the summary never reaches the expected totals.
var ErrMismatch = errors.New("summary does not match submitted traffic")

// observe reads the overview totals the service reports for the project.
func observe(ctx context.Context, client *HTTPClient, projectID string) (Expected, error) {
	var summary model.AnalyticsSummary
	status, err := client.Get(ctx, summaryPath(projectID), &summary)
	if err != nil {
		return Expected{}, err
	}
	if status != StatusOK {
		return Expected{}, fmt.Errorf("summary returned status %d", status)
	}
	return Expected{
		Visitors:    summary.Overview.TotalVisitors,
		PageViews:   summary.Overview.TotalPageViews,
		Conversions: summary.Conversions.Total,
	}, nil
}

// verifyResults polls the summary until it matches want or settle elapses.
// Processing is asynchronous, so early reads may trail the submissions.
func verifyResults(ctx context.Context, client *HTTPClient, cfg *Config, want Expected, stats *Stats) error {
	logger.Get().Info(ctx, "verifying summary",
		logger.Int("visitors", want.Visitors),
		logger.Int("pageViews", want.PageViews),
		logger.Int("conversions", want.Conversions))

	deadline := time.Now().Add(cfg.Settle)
	for {
		got, err := observe(ctx, client, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("fetch summary: %w", err)
		}
		stats.Observed = got
		if got == want {
			logger.Get().Info(ctx, "summary matches submitted traffic")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: want %+v, got %+v", ErrMismatch, want, got)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("verification cancelled: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
