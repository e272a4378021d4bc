package trafficsim

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
)

// generateJourneys builds cfg.Visitors journeys from a seeded source so a
// run can be replayed.
func generateJourneys(ctx context.Context, cfg *Config) []Journey {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic traffic

	journeys := make([]Journey, cfg.Visitors)
	for i := range journeys {
		journeys[i] = generateJourney(rng, cfg)
	}
	logger.Get().Info(ctx, "generated journeys",
		logger.Int("visitors", len(journeys)),
		logger.Int64("seed", int64(cfg.Seed))) //nolint:gosec // logged only
	return journeys
}

func generateJourney(rng *rand.Rand, cfg *Config) Journey {
	j := Journey{
		VisitorID: uuid.NewString(),
		UserAgent: userAgents[rng.IntN(len(userAgents))],
	}
	add := func(req model.TrackRequest) {
		req.EventID = uuid.NewString()
		req.VisitorID = j.VisitorID
		j.Calls = append(j.Calls, req)
		j.Resend = append(j.Resend, rng.Float64() < cfg.DuplicateRate)
	}

	views := 1 + rng.IntN(maxPageViews)
	for v := range views {
		page := pages[rng.IntN(len(pages))]
		req := model.TrackRequest{
			Type:     model.CommandPageView,
			Page:     page.path,
			Title:    page.title,
			LoadTime: float64(200 + rng.IntN(1800)),
		}
		if v == 0 {
			req.Referrer = referrers[rng.IntN(len(referrers))]
		}
		add(req)

		if v == 0 {
			add(model.TrackRequest{
				Type: model.CommandPerformance,
				Page: page.path,
				Performance: &model.PerformanceSample{
					LoadTime:               req.LoadTime,
					FirstContentfulPaint:   float64(100 + rng.IntN(900)),
					LargestContentfulPaint: float64(400 + rng.IntN(2000)),
					CumulativeLayoutShift:  rng.Float64() * 0.25,
					FirstInputDelay:        float64(rng.IntN(150)),
					ResourceCount:          10 + rng.IntN(60),
					ResourceSize:           int64(50_000 + rng.IntN(2_000_000)),
					CacheHitRate:           rng.Float64(),
				},
			})
		}
		if rng.Float64() < interactionChance {
			add(model.TrackRequest{
				Type:        model.CommandInteraction,
				Interaction: model.InteractionClick,
				Element:     "a.cta",
				Position:    &model.Position{X: float64(rng.IntN(1280)), Y: float64(rng.IntN(800))},
			})
		}
		if rng.Float64() < scrollChance {
			add(model.TrackRequest{
				Type:        model.CommandScroll,
				ScrollDepth: float64(rng.IntN(101)),
			})
		}
	}

	if rng.Float64() < cfg.ConversionRate {
		g := goals[rng.IntN(len(goals))]
		add(model.TrackRequest{
			Type:      model.CommandConversion,
			Goal:      g.name,
			GoalValue: g.value,
		})
	}
	add(model.TrackRequest{Type: model.CommandEnd})
	return j
}
