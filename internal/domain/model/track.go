package model

import (
	"fmt"
	"time"
)

// CommandType names the instrumentation hook a TrackCommand came from.
type CommandType string

const (
	CommandPageView    CommandType = "pageview"
	CommandInteraction CommandType = "interaction"
	CommandConversion  CommandType = "conversion"
	CommandPerformance CommandType = "performance"
	// CommandScroll reports the current page scroll depth.
	CommandScroll CommandType = "scroll"
	// CommandEngagement flushes time on page and scroll depth, e.g. on visibility hidden.
	CommandEngagement CommandType = "engagement"
	// CommandEnd finalizes the visitor's session, e.g. on page hide or unload.
	CommandEnd CommandType = "end"
)

// Visitor identifies the browser behind a stream of track calls.
type Visitor struct {
	ID        string `json:"id"`
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
	Referrer  string `json:"referrer"`
}

// TrackCommand is a transport-neutral instruction for the session manager.
// Only the fields relevant to Type are read.
type TrackCommand struct {
	EventID   string
	ProjectID string
	Visitor   Visitor
	Type      CommandType

	// pageview
	Page     string
	Title    string
	LoadTime float64

	// interaction
	Interaction InteractionType
	Element     string
	Position    *Position
	SectionID   string
	Value       string

	// conversion
	Goal      string
	GoalValue float64
	Metadata  map[string]string

	// performance
	Performance PerformanceSample

	// scroll
	ScrollDepth float64

	ReceivedAt time.Time
}

// Key groups commands that must be applied in order by one worker.
func (c TrackCommand) Key() string {
	return c.ProjectID + "/" + c.Visitor.ID
}

// Validate checks the fields required by Type.
func (c TrackCommand) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidCommand)
	}
	if c.Visitor.ID == "" {
		return fmt.Errorf("%w: visitor id is required", ErrInvalidCommand)
	}
	switch c.Type {
	case CommandPageView:
		if c.Page == "" {
			return fmt.Errorf("%w: page is required for %s", ErrInvalidCommand, c.Type)
		}
	case CommandInteraction:
		if !c.Interaction.Valid() {
			return fmt.Errorf("%w: unknown interaction type %q", ErrInvalidCommand, c.Interaction)
		}
	case CommandConversion:
		if c.Goal == "" {
			return fmt.Errorf("%w: goal is required for %s", ErrInvalidCommand, c.Type)
		}
	case CommandScroll:
		if c.ScrollDepth < 0 || c.ScrollDepth > 100 {
			return fmt.Errorf("%w: scroll depth %.1f outside 0..100", ErrInvalidCommand, c.ScrollDepth)
		}
	case CommandPerformance, CommandEngagement, CommandEnd:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
	return nil
}

// TrackRequest is the JSON body accepted by HTTP and stream ingest.
type TrackRequest struct {
	EventID   string      `json:"event_id"`
	ProjectID string      `json:"project_id,omitempty"`
	VisitorID string      `json:"visitor_id"`
	Type      CommandType `json:"type"`

	// Stream producers carry what HTTP takes from the request itself.
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	Page     string  `json:"page,omitempty"`
	Title    string  `json:"title,omitempty"`
	LoadTime float64 `json:"load_time,omitempty"`

	Interaction InteractionType `json:"interaction,omitempty"`
	Element     string          `json:"element,omitempty"`
	Position    *Position       `json:"position,omitempty"`
	SectionID   string          `json:"section_id,omitempty"`
	Value       string          `json:"value,omitempty"`

	Goal      string            `json:"goal,omitempty"`
	GoalValue float64           `json:"goal_value,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	Performance *PerformanceSample `json:"performance,omitempty"`
	ScrollDepth float64            `json:"scroll_depth,omitempty"`
}

// Command converts r into a TrackCommand. It does not validate.
func (r *TrackRequest) Command(receivedAt time.Time) TrackCommand {
	cmd := TrackCommand{
		EventID:   r.EventID,
		ProjectID: r.ProjectID,
		Visitor: Visitor{
			ID:        r.VisitorID,
			UserAgent: r.UserAgent,
			IP:        r.IP,
			Referrer:  r.Referrer,
		},
		Type:        r.Type,
		Page:        r.Page,
		Title:       r.Title,
		LoadTime:    r.LoadTime,
		Interaction: r.Interaction,
		Element:     r.Element,
		Position:    r.Position,
		SectionID:   r.SectionID,
		Value:       r.Value,
		Goal:        r.Goal,
		GoalValue:   r.GoalValue,
		Metadata:    r.Metadata,
		ScrollDepth: r.ScrollDepth,
		ReceivedAt:  receivedAt,
	}
	if r.Performance != nil {
		cmd.Performance = *r.Performance
	}
	return cmd
}
