// Package model contains domain models passed between layers.
// JSON field names are the dashboard and storage wire contract.
package model

import "time"

// InteractionType enumerates the interactions the instrumentation reports.
type InteractionType string

const (
	InteractionClick        InteractionType = "click"
	InteractionScroll       InteractionType = "scroll"
	InteractionHover        InteractionType = "hover"
	InteractionFormSubmit   InteractionType = "form_submit"
	InteractionDownload     InteractionType = "download"
	InteractionExternalLink InteractionType = "external_link"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionClick, InteractionScroll, InteractionHover,
		InteractionFormSubmit, InteractionDownload, InteractionExternalLink:
		return true
	}
	return false
}

// Device is the user agent classification of a visitor.
type Device struct {
	Type    string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Location is the resolved geography of a visitor.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// VisitorSession is one visitor's continuous visit to a project's site.
// It is mutated by every track call and finalized once by EndTime being set.
type VisitorSession struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	VisitorID string     `json:"visitorId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	// Duration in whole seconds, set at finalization.
	Duration     int `json:"duration"`
	PageViews    int `json:"pageViews"`
	Interactions int `json:"interactions"`

	Device
	Location
	Referrer    string `json:"referrer"`
	IsReturning bool   `json:"isReturning"`
	Bounced     bool   `json:"bounced"`

	Conversions []ConversionEvent `json:"conversions"`
}

// Ended reports whether the session was finalized.
func (s *VisitorSession) Ended() bool { return s.EndTime != nil }

// UTC returns a copy with every timestamp in UTC.
func (s VisitorSession) UTC() VisitorSession {
	s.StartTime = s.StartTime.UTC()
	if s.EndTime != nil {
		end := s.EndTime.UTC()
		s.EndTime = &end
	}
	if s.Conversions != nil {
		convs := make([]ConversionEvent, len(s.Conversions))
		for i, c := range s.Conversions {
			convs[i] = c.UTC()
		}
		s.Conversions = convs
	}
	return s
}

// PageViewEvent records one page load. TimeOnPage and ScrollDepth are the
// only fields updated after creation.
type PageViewEvent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page"`
	Title     string    `json:"title"`

	// Seconds spent on the page.
	TimeOnPage float64 `json:"timeOnPage"`
	// Maximum scroll depth in percent.
	ScrollDepth float64 `json:"scrollDepth"`

	// Milliseconds until the load event.
	LoadTime float64 `json:"loadTime"`
	Device
	Location
	Referrer string `json:"referrer"`
}

// UTC returns a copy with the timestamp in UTC.
func (p PageViewEvent) UTC() PageViewEvent {
	p.Timestamp = p.Timestamp.UTC()
	return p
}

// PageViewPatch names the mutable page view fields. Nil leaves a field as is.
type PageViewPatch struct {
	TimeOnPage  *float64 `json:"timeOnPage,omitempty"`
	ScrollDepth *float64 `json:"scrollDepth,omitempty"`
}

// Apply writes the set fields onto p.
func (pp PageViewPatch) Apply(p *PageViewEvent) {
	if pp.TimeOnPage != nil {
		p.TimeOnPage = *pp.TimeOnPage
	}
	if pp.ScrollDepth != nil {
		p.ScrollDepth = *pp.ScrollDepth
	}
}

// Position is a viewport coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InteractionEvent is an append-only record of a user interaction.
type InteractionEvent struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Type      InteractionType `json:"type"`
	Page      string          `json:"page,omitempty"`
	Element   string          `json:"element,omitempty"`
	Position  *Position       `json:"position,omitempty"`
	SectionID string          `json:"sectionId,omitempty"`
	Value     string          `json:"value,omitempty"`
}

// UTC returns a copy with the timestamp in UTC.
func (i InteractionEvent) UTC() InteractionEvent {
	i.Timestamp = i.Timestamp.UTC()
	return i
}

// ConversionEvent is a goal completion attributable to a session.
type ConversionEvent struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	SessionID string            `json:"sessionId"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Value     float64           `json:"value,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// UTC returns a copy with the timestamp in UTC.
func (c ConversionEvent) UTC() ConversionEvent {
	c.Timestamp = c.Timestamp.UTC()
	return c
}

// PerformanceSample holds the timing figures of one page load.
// Times are milliseconds, ResourceSize is bytes and CacheHitRate is percent.
type PerformanceSample struct {
	ID                     string    `json:"id"`
	ProjectID              string    `json:"projectId"`
	SessionID              string    `json:"sessionId,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
	Page                   string    `json:"page,omitempty"`
	LoadTime               float64   `json:"loadTime"`
	FirstContentfulPaint   float64   `json:"firstContentfulPaint"`
	LargestContentfulPaint float64   `json:"largestContentfulPaint"`
	CumulativeLayoutShift  float64   `json:"cumulativeLayoutShift"`
	FirstInputDelay        float64   `json:"firstInputDelay"`
	ResourceCount          int       `json:"resourceCount"`
	ResourceSize           int64     `json:"resourceSize"`
	CacheHitRate           float64   `json:"cacheHitRate"`
}

// UTC returns a copy with the timestamp in UTC.
func (p PerformanceSample) UTC() PerformanceSample {
	p.Timestamp = p.Timestamp.UTC()
	return p
}
