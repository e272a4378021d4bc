package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/sitestats/internal/trafficsim"
	"github.com/okian/sitestats/pkg/logger"
)

// Default configuration constants.
const (
	defaultVisitors    = 1000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultConversion  = 0.2
	defaultDuplicates  = 0.05
	defaultSettle      = 30 * time.Second
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		projectID  = flag.String("project", "", "Project ID to record into (default: sim-<random>)")
		visitors   = flag.Int("visitors", defaultVisitors, "Number of visitor journeys")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of journeys submitted concurrently")
		conversion = flag.Float64("conversion", defaultConversion, "Share of journeys ending in a conversion")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Share of calls sent twice")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for the summary to converge")
		seed       = flag.Uint64("seed", 0, "Seed for journey generation (default: random)")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write the generated journeys to this JSON file")
		verbose    = flag.Bool("verbose", false, "Log every call")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		trafficsim.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &trafficsim.Config{
		BaseURL:        *baseURL,
		ProjectID:      *projectID,
		Visitors:       *visitors,
		Workers:        *workers,
		Timeout:        *timeout,
		ConversionRate: *conversion,
		DuplicateRate:  *duplicates,
		Settle:         *settle,
		Seed:           *seed,
		OutputFile:     *outputFile,
		Verbose:        *verbose,
	}

	if _, err := trafficsim.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: cancel is called above
	}
}
