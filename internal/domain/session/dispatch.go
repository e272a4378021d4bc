package session

import (
	"context"
	"fmt"

	"github.com/okian/sitestats/internal/domain/model"
)

// Apply routes a track command to the matching Manager call.
func (m *Manager) Apply(ctx context.Context, cmd model.TrackCommand) error {
	switch cmd.Type {
	case model.CommandPageView:
		_, err := m.TrackPageView(ctx, cmd.ProjectID, cmd.Page, cmd.Title, WithLoadTime(cmd.LoadTime))
		return err
	case model.CommandInteraction:
		_, err := m.TrackInteraction(ctx, cmd.ProjectID, cmd.Interaction, cmd.Element, InteractionOptions{
			Position:  cmd.Position,
			SectionID: cmd.SectionID,
			Value:     cmd.Value,
		})
		return err
	case model.CommandConversion:
		_, err := m.TrackConversion(ctx, cmd.ProjectID, cmd.Goal, cmd.GoalValue, cmd.Metadata)
		return err
	case model.CommandPerformance:
		_, err := m.TrackPerformance(ctx, cmd.ProjectID, cmd.Performance)
		return err
	case model.CommandScroll:
		m.RecordScroll(cmd.ScrollDepth)
		return nil
	case model.CommandEngagement:
		return m.FlushPageEngagement(ctx)
	case model.CommandEnd:
		return m.EndSession(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}
