// Package trafficsim drives synthetic visitor journeys against a running
// sitestats instance and checks the resulting summary.
package trafficsim

import (
	"time"

	"github.com/okian/sitestats/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	ProjectID      string        // Project to record into; generated when empty
	Visitors       int           // Number of visitor journeys
	Workers        int           // Number of journeys submitted concurrently
	Timeout        time.Duration // HTTP request timeout
	ConversionRate float64       // Share of journeys ending in a conversion, 0..1
	DuplicateRate  float64       // Share of calls sent twice, 0..1
	Settle         time.Duration // How long to poll the summary for the expected totals
	Seed           uint64        // Seed for journey generation; 0 picks one
	OutputFile     string        // Optional JSON dump of the generated journeys
	Verbose        bool          // Log every call
}

// Journey is one visitor's ordered track calls.
type Journey struct {
	VisitorID string               `json:"visitor_id"`
	UserAgent string               `json:"user_agent"`
	Calls     []model.TrackRequest `json:"calls"`
	// Resend marks calls that are posted a second time to exercise deduplication.
	Resend []bool `json:"resend,omitempty"`
}

// Expected totals derived from the calls the service accepted.
type Expected struct {
	Visitors    int
	PageViews   int
	Conversions int
}

// Stats holds run statistics.
type Stats struct {
	JourneysGenerated int
	CallsSubmitted    int
	CallsAccepted     int
	CallsDuplicate    int
	CallsFailed       int
	Retries           int
	Expected          Expected
	Observed          Expected
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
