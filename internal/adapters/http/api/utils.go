package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
)

// maxBodyBytes bounds a single track request body.
const maxBodyBytes = 64 << 10

// Bounds used for an omitted start or end.
var (
	openStart = time.Unix(0, 0).UTC()
	openEnd   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from X-Forwarded-For or X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseRange reads the optional RFC3339 start and end query parameters.
// A missing bound is open; nil means all history.
func parseRange(r *http.Request) (*model.DateRange, error) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")
	if rawStart == "" && rawEnd == "" {
		return nil, nil //nolint:nilnil // no range requested
	}

	start, end := openStart, openEnd
	if rawStart != "" {
		t, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			return nil, fmt.Errorf("invalid start %q; must be RFC3339", rawStart)
		}
		start = t
	}
	if rawEnd != "" {
		t, err := time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid end %q; must be RFC3339", rawEnd)
		}
		end = t
	}
	dr, err := model.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return &dr, nil
}
