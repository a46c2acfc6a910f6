package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StudyPlan is the structured payload the generator is asked to produce.
// JSON field names are the wire contract shared with the REST clients.
type StudyPlan struct {
	PlanTitle              string     `json:"plan_title"`
	EstimatedDurationWeeks string     `json:"estimated_duration_weeks"`
	WeeklyOverview         []PlanWeek `json:"weekly_overview"`
	GeneralRecommendations string     `json:"general_recommendations,omitempty"`
}

type PlanWeek struct {
	WeekNumber int       `json:"week_number"`
	WeeklyGoal string    `json:"weekly_goal"`
	DailyTasks []PlanDay `json:"daily_tasks"`
}

type PlanDay struct {
	DayName            string         `json:"day_name"`
	LearningActivities []PlanActivity `json:"learning_activities"`
}

type PlanActivity struct {
	SuggestedSlot            string   `json:"suggested_slot"`
	Topic                    string   `json:"topic"`
	Description              string   `json:"description"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	Resources                []string `json:"resources,omitempty"`
}

var errEmptyPlan = errors.New("plan has no title or no weeks")

// ParseStudyPlan decodes generator output (already stripped of code fences)
// into a StudyPlan. A decode failure or a structurally empty plan is a
// deterministic fault, never worth a retry.
func ParseStudyPlan(raw string) (*StudyPlan, error) {
	var p StudyPlan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.PlanTitle == "" || len(p.WeeklyOverview) == 0 {
		return nil, errEmptyPlan
	}
	return &p, nil
}
