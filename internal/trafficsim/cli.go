package trafficsim

import "os"

// ShowHelp prints usage information for the traffic simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`sitestats traffic simulator
===========================

Generates synthetic visitor journeys, submits them concurrently to the track
API and checks that the project summary reports the same totals.

Usage:
  go run ./cmd/simulate-traffic [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -project string
        Project ID to record into (default: sim-<random>)
  -visitors int
        Number of visitor journeys (default 1000)
  -workers int
        Number of journeys submitted concurrently (default CPU cores * 2)
  -conversion float
        Share of journeys ending in a conversion (default 0.2)
  -duplicates float
        Share of calls sent twice (default 0.05)
  -settle duration
        How long to wait for the summary to converge (default 30s)
  -seed uint
        Seed for journey generation (default: random)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Write the generated journeys to this JSON file
  -verbose
        Log every call
  -help
        Show this help message

Examples:
  go run ./cmd/simulate-traffic -visitors 5000 -workers 32
  go run ./cmd/simulate-traffic -seed 42 -output journeys.json
`)
}
