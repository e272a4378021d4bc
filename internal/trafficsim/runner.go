package trafficsim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sitestats/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentMultiplier   = 100
)

// Run generates, submits and verifies one batch of synthetic traffic.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.ProjectID == "" {
		cfg.ProjectID = "sim-" + uuid.NewString()[:8]
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64() //nolint:gosec // synthetic traffic
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	log.Info(ctx, "starting traffic simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("projectID", cfg.ProjectID),
		logger.Int("visitors", cfg.Visitors),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate journeys
	journeys := generateJourneys(ctx, cfg)
	stats.JourneysGenerated = len(journeys)

	// Step 3: Submit journeys concurrently
	stats.Expected = submitJourneys(ctx, cfg, client, journeys, stats)

	// Step 4: Verify the summary converges on what was accepted
	verifyErr := verifyResults(ctx, client, cfg, stats.Expected, stats)

	// Step 5: Save journeys for replay
	if cfg.OutputFile != "" {
		if err := saveJourneys(ctx, cfg.OutputFile, journeys); err != nil {
			log.Warn(ctx, "failed to save journeys to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if status != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	return nil
}

// saveJourneys writes the generated journeys as indented JSON.
func saveJourneys(ctx context.Context, filename string, journeys []Journey) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(journeys, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journeys: %w", err)
	}
	if err := os.WriteFile(filename, raw, filePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	logger.Get().Info(ctx, "journeys saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, callsPerSecond float64
	if stats.CallsSubmitted > 0 {
		acceptRate = float64(stats.CallsAccepted) / float64(stats.CallsSubmitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		callsPerSecond = float64(stats.CallsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("journeysGenerated", stats.JourneysGenerated),
		logger.Int("callsSubmitted", stats.CallsSubmitted),
		logger.Int("callsAccepted", stats.CallsAccepted),
		logger.Int("callsDuplicate", stats.CallsDuplicate),
		logger.Int("callsFailed", stats.CallsFailed),
		logger.Int("retries", stats.Retries),
		logger.Int("observedVisitors", stats.Observed.Visitors),
		logger.Int("observedPageViews", stats.Observed.PageViews),
		logger.Int("observedConversions", stats.Observed.Conversions),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("callsPerSecond", callsPerSecond))
}
