package ai

import (
	"context"
	"time"

	"telegram-study-planner/internal/domain/ports/adapter"
)

var _ adapter.PlanGeneratorAdapter = (*NoopGenerator)(nil)

// NoopGenerator implements adapter.PlanGeneratorAdapter for local/dev runs.
// It returns a canned one-week plan instead of calling a real provider.
type NoopGenerator struct{}

func NewNoopGenerator() *NoopGenerator {
	return &NoopGenerator{}
}

const cannedPlan = `{
  "plan_title": "Sample study plan",
  "estimated_duration_weeks": "1",
  "weekly_overview": [
    {
      "week_number": 1,
      "weekly_goal": "Getting started",
      "daily_tasks": [
        {
          "day_name": "Monday",
          "learning_activities": [
            {
              "suggested_slot": "18:00-19:30",
              "topic": "Introduction",
              "description": "Read the introductory chapter and take notes",
              "estimated_duration_minutes": 90
            }
          ]
        }
      ]
    }
  ],
  "general_recommendations": "Review your notes at the end of each week"
}`

// Generate simulates slight processing time and respects ctx.
func (g *NoopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return cannedPlan, nil
}
