// Package session owns the lifecycle of a visitor's current session.
//
// Bounce is decided twice. While the session is open any page view,
// interaction or conversion clears it. At EndSession it is recomputed from
// scratch as duration < 30s or pageViews <= 1, overriding the earlier value.
package session

import (
	"context"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/sitestats/internal/adapters/enricher"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

// BounceDuration is the minimum length of a non-bounced session.
const BounceDuration = 30 * time.Second

// Store is the persistence the Manager needs.
type Store interface {
	AppendSession(ctx context.Context, s model.VisitorSession) error
	SaveSession(ctx context.Context, s model.VisitorSession) error
	AppendPageView(ctx context.Context, pv model.PageViewEvent) error
	UpdatePageView(ctx context.Context, id string, patch model.PageViewPatch) error
	AppendInteraction(ctx context.Context, i model.InteractionEvent) error
	AppendConversion(ctx context.Context, c model.ConversionEvent) error
	AppendPerformance(ctx context.Context, p model.PerformanceSample) error
	HasVisited(ctx context.Context, projectID, visitorID string) bool
	MarkVisited(ctx context.Context, projectID, visitorID string) error
}

// page tracks engagement on the page currently displayed.
type page struct {
	id          string
	path        string
	enteredAt   time.Time
	scrollDepth float64
}

// Manager tracks one visitor. It is not safe for concurrent use; callers
// serialize all calls for a visitor.
type Manager struct {
	visitor    model.Visitor
	store      Store
	classifier enricher.Classifier
	resolver   enricher.LocationResolver
	clock      quartz.Clock
	newID      func() string
	log        logger.Logger

	current      *model.VisitorSession
	page         *page
	lastActivity time.Time
}

// New creates a Manager for visitor.
func New(visitor model.Visitor, store Store, opts ...Option) *Manager {
	m := &Manager{
		visitor:    visitor,
		store:      store,
		classifier: enricher.NewClassifier(),
		resolver:   enricher.NewStaticResolver(model.Location{}),
		clock:      quartz.NewReal(),
		newID:      newUUID,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Visitor returns the visitor this Manager tracks.
func (m *Manager) Visitor() model.Visitor { return m.visitor }

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *model.VisitorSession {
	if m.current == nil {
		return nil
	}
	s := *m.current
	s.Conversions = append([]model.ConversionEvent(nil), m.current.Conversions...)
	return &s
}

// LastActivity returns when the visitor was last seen.
func (m *Manager) LastActivity() time.Time { return m.lastActivity }

// StartSession opens a new session for projectID, finalizing any open one.
// The session starts bounced and is persisted before it becomes current.
func (m *Manager) StartSession(ctx context.Context, projectID string) (model.VisitorSession, error) {
	if m.current != nil {
		if err := m.EndSession(ctx); err != nil {
			m.log.Warn(ctx, "finalizing previous session failed", logger.Error(err))
		}
	}

	now := m.clock.Now()
	s := model.VisitorSession{
		ID:          m.newID(),
		ProjectID:   projectID,
		VisitorID:   m.visitor.ID,
		StartTime:   now,
		Device:      m.classifier.Classify(m.visitor.UserAgent),
		Location:    m.resolver.Resolve(ctx, m.visitor.IP),
		Referrer:    m.visitor.Referrer,
		IsReturning: m.store.HasVisited(ctx, projectID, m.visitor.ID),
		Bounced:     true,
		Conversions: []model.ConversionEvent{},
	}
	if err := m.store.AppendSession(ctx, s); err != nil {
		return s, err
	}
	// The marker only affects later sessions; a failed write is logged, not fatal.
	if err := m.store.MarkVisited(ctx, projectID, m.visitor.ID); err != nil {
		m.log.Warn(ctx, "marking visitor as returning failed",
			logger.String("project_id", projectID),
			logger.String("visitor_id", m.visitor.ID),
			logger.Error(err))
	}

	m.current = &s
	m.page = nil
	m.lastActivity = now
	metrics.RecordSessionStarted()
	m.log.Debug(ctx, "session started",
		logger.String("session_id", s.ID),
		logger.String("project_id", projectID),
		logger.Bool("returning", s.IsReturning))
	return s, nil
}

func (m *Manager) ensureSession(ctx context.Context, projectID string) (*model.VisitorSession, error) {
	if m.current != nil && m.current.ProjectID == projectID {
		return m.current, nil
	}
	if _, err := m.StartSession(ctx, projectID); err != nil {
		return nil, err
	}
	return m.current, nil
}

// PageViewOption sets optional page view fields.
type PageViewOption func(*model.PageViewEvent)

// WithLoadTime records the page load time in milliseconds.
func WithLoadTime(ms float64) PageViewOption {
	return func(pv *model.PageViewEvent) { pv.LoadTime = ms }
}

// TrackPageView records navigation to path. The previous page's engagement
// is flushed first and the scroll and time accumulators restart.
func (m *Manager) TrackPageView(ctx context.Context, projectID, path, title string, opts ...PageViewOption) (model.PageViewEvent, error) {
	s, err := m.ensureSession(ctx, projectID)
	if err != nil {
		return model.PageViewEvent{}, err
	}
	if err := m.FlushPageEngagement(ctx); err != nil {
		m.log.Warn(ctx, "flushing previous page failed", logger.Error(err))
	}

	now := m.clock.Now()
	pv := model.PageViewEvent{
		ID:        m.newID(),
		ProjectID: projectID,
		SessionID: s.ID,
		Timestamp: now,
		Page:      path,
		Title:     title,
		Device:    s.Device,
		Location:  s.Location,
		Referrer:  s.Referrer,
	}
	for _, opt := range opts {
		opt(&pv)
	}
	if err := m.store.AppendPageView(ctx, pv); err != nil {
		return pv, err
	}

	s.PageViews++
	s.Bounced = false
	m.page = &page{id: pv.ID, path: path, enteredAt: now}
	m.lastActivity = now
	return pv, m.store.SaveSession(ctx, *s)
}

// InteractionOptions carries the optional interaction descriptors.
type InteractionOptions struct {
	Position  *model.Position
	SectionID string
	Value     string
}

// TrackInteraction records an interaction on the current page.
func (m *Manager) TrackInteraction(ctx context.Context, projectID string, typ model.InteractionType, element string, opts InteractionOptions) (model.InteractionEvent, error) {
	if !typ.Valid() {
		return model.InteractionEvent{}, ErrInvalidInteraction
	}
	s, err := m.ensureSession(ctx, projectID)
	if err != nil {
		return model.InteractionEvent{}, err
	}

	now := m.clock.Now()
	ev := model.InteractionEvent{
		ID:        m.newID(),
		ProjectID: projectID,
		SessionID: s.ID,
		Timestamp: now,
		Type:      typ,
		Element:   element,
		Position:  opts.Position,
		SectionID: opts.SectionID,
		Value:     opts.Value,
	}
	if m.page != nil {
		ev.Page = m.page.path
	}
	if err := m.store.AppendInteraction(ctx, ev); err != nil {
		return ev, err
	}

	s.Interactions++
	s.Bounced = false
	m.lastActivity = now
	return ev, m.store.SaveSession(ctx, *s)
}

// TrackConversion records a goal completion. It is stored as its own event
// and embedded in the session's conversion list.
func (m *Manager) TrackConversion(ctx context.Context, projectID, goal string, value float64, metadata map[string]string) (model.ConversionEvent, error) {
	s, err := m.ensureSession(ctx, projectID)
	if err != nil {
		return model.ConversionEvent{}, err
	}

	now := m.clock.Now()
	ev := model.ConversionEvent{
		ID:        m.newID(),
		ProjectID: projectID,
		SessionID: s.ID,
		Timestamp: now,
		Type:      goal,
		Value:     value,
		Metadata:  metadata,
	}
	if err := m.store.AppendConversion(ctx, ev); err != nil {
		return ev, err
	}

	s.Conversions = append(s.Conversions, ev)
	s.Bounced = false
	m.lastActivity = now
	return ev, m.store.SaveSession(ctx, *s)
}

// TrackPerformance records one page load's timings. It does not start a
// session and does not count as engagement.
func (m *Manager) TrackPerformance(ctx context.Context, projectID string, sample model.PerformanceSample) (model.PerformanceSample, error) {
	now := m.clock.Now()
	sample.ID = m.newID()
	sample.ProjectID = projectID
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	if m.current != nil && m.current.ProjectID == projectID {
		sample.SessionID = m.current.ID
		m.lastActivity = now
	}
	if sample.Page == "" && m.page != nil {
		sample.Page = m.page.path
	}
	return sample, m.store.AppendPerformance(ctx, sample)
}

// RecordScroll keeps the deepest scroll position of the current page.
func (m *Manager) RecordScroll(depth float64) {
	if m.page == nil {
		return
	}
	depth = max(0, min(100, depth))
	if depth > m.page.scrollDepth {
		m.page.scrollDepth = depth
	}
	m.lastActivity = m.clock.Now()
}

// FlushPageEngagement writes time on page and scroll depth onto the current
// page view. Time on page counts from when the page was entered.
func (m *Manager) FlushPageEngagement(ctx context.Context) error {
	return m.flushPageAt(ctx, m.clock.Now())
}

func (m *Manager) flushPageAt(ctx context.Context, at time.Time) error {
	if m.page == nil {
		return nil
	}
	seconds := max(0, at.Sub(m.page.enteredAt).Seconds())
	depth := m.page.scrollDepth
	return m.store.UpdatePageView(ctx, m.page.id, model.PageViewPatch{
		TimeOnPage:  &seconds,
		ScrollDepth: &depth,
	})
}

// EndSession finalizes the active session now. Without an active session it
// does nothing.
func (m *Manager) EndSession(ctx context.Context) error {
	return m.EndSessionAt(ctx, m.clock.Now())
}

// EndSessionAt finalizes the active session as of at: duration in whole
// seconds and bounce recomputed from duration and page views only. Idle
// expiry passes LastActivity so the idle gap is not counted. An at before
// the session start is clamped to the start.
func (m *Manager) EndSessionAt(ctx context.Context, at time.Time) error {
	s := m.current
	if s == nil {
		return nil
	}
	if at.Before(s.StartTime) {
		at = s.StartTime
	}
	if err := m.flushPageAt(ctx, at); err != nil {
		m.log.Warn(ctx, "flushing last page failed", logger.Error(err))
	}

	elapsed := at.Sub(s.StartTime)
	s.EndTime = &at
	s.Duration = int(elapsed / time.Second)
	s.Bounced = elapsed < BounceDuration || s.PageViews <= 1

	m.current = nil
	m.page = nil
	m.lastActivity = at
	metrics.RecordSessionEnded(s.Bounced)
	m.log.Debug(ctx, "session ended",
		logger.String("session_id", s.ID),
		logger.Int("duration_s", s.Duration),
		logger.Int("page_views", s.PageViews),
		logger.Bool("bounced", s.Bounced))
	return m.store.SaveSession(ctx, *s)
}
