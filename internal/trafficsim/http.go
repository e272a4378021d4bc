package trafficsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
)

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// HTTPClient wraps http.Client with the service base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and decodes a JSON body into out when non-nil.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode != StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// Post sends body as JSON with the given user agent.
func (c *HTTPClient) Post(ctx context.Context, path, userAgent string, body any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r, ok := body.(model.TrackRequest); ok && r.Referrer != "" {
		req.Header.Set("Referer", r.Referrer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func trackPath(projectID string) string {
	return "/v1/projects/" + url.PathEscape(projectID) + "/track"
}

func summaryPath(projectID string) string {
	return "/v1/projects/" + url.PathEscape(projectID) + "/summary"
}

// tally accumulates outcomes across submission workers.
type tally struct {
	mu       sync.Mutex
	stats    *Stats
	expected Expected
}

func (t *tally) record(req model.TrackRequest, o outcome, retries int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CallsSubmitted++
	t.stats.Retries += retries
	switch o {
	case outcomeAccepted:
		t.stats.CallsAccepted++
		switch req.Type {
		case model.CommandPageView:
			t.expected.PageViews++
		case model.CommandConversion:
			t.expected.Conversions++
		default:
		}
	case outcomeDuplicate:
		t.stats.CallsDuplicate++
	case outcomeFailed:
		t.stats.CallsFailed++
	}
}

func (t *tally) visitor() {
	t.mu.Lock()
	t.expected.Visitors++
	t.mu.Unlock()
}

// submitJourneys posts journeys with cfg.Workers workers. Calls within one
// journey are sent in order since the service sequences them per visitor.
func submitJourneys(ctx context.Context, cfg *Config, client *HTTPClient, journeys []Journey, stats *Stats) Expected {
	logger.Get().Info(ctx, "submitting journeys",
		logger.Int("journeys", len(journeys)),
		logger.Int("workers", cfg.Workers))

	t := &tally{stats: stats}
	jobs := make(chan Journey, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				submitJourney(ctx, cfg, client, j, t)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, j := range journeys {
			select {
			case <-ctx.Done():
				return
			case jobs <- j:
			}
		}
	}()

	wg.Wait()

	logger.Get().Info(ctx, "submission completed",
		logger.Int("accepted", stats.CallsAccepted),
		logger.Int("duplicate", stats.CallsDuplicate),
		logger.Int("failed", stats.CallsFailed),
		logger.Int("retries", stats.Retries))
	return t.expected
}

func submitJourney(ctx context.Context, cfg *Config, client *HTTPClient, j Journey, t *tally) {
	started := false
	for i, req := range j.Calls {
		if ctx.Err() != nil {
			return
		}
		req.ProjectID = cfg.ProjectID
		o, retries := submitCall(ctx, cfg, client, j.UserAgent, req)
		t.record(req, o, retries)
		if o == outcomeAccepted && req.Type == model.CommandPageView && !started {
			started = true
			t.visitor()
		}
		if j.Resend[i] {
			o, retries = submitCall(ctx, cfg, client, j.UserAgent, req)
			t.record(req, o, retries)
		}
	}
}

// submitCall posts one call, retrying on backpressure.
func submitCall(ctx context.Context, cfg *Config, client *HTTPClient, userAgent string, req model.TrackRequest) (outcome, int) { //nolint:gocritic // hugeParam: requests are values
	path := trackPath(cfg.ProjectID)
	for attempt := range maxAttempts {
		status, err := client.Post(ctx, path, userAgent, req)
		if cfg.Verbose {
			logger.Get().Debug(ctx, "track call",
				logger.String("event_id", req.EventID),
				logger.String("type", string(req.Type)),
				logger.Int("status", status),
				logger.Error(err))
		}
		switch {
		case err != nil:
			return outcomeFailed, attempt
		case status == StatusAccepted:
			return outcomeAccepted, attempt
		case status == StatusOK:
			return outcomeDuplicate, attempt
		case status == StatusTooMany:
			select {
			case <-ctx.Done():
				return outcomeFailed, attempt
			case <-time.After(retryBackoff * time.Duration(attempt+1)):
			}
		default:
			return outcomeFailed, attempt
		}
	}
	return outcomeFailed, maxAttempts
}
