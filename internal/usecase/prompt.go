// File: internal/usecase/prompt.go
package usecase

import (
	"fmt"
	"sort"
	"strings"

	"telegram-study-planner/internal/domain/ports/adapter"
)

// DefaultScheduleContext is the documented fallback used when no free-time
// information could be fetched at all.
const DefaultScheduleContext = "Detailed schedule information is unavailable. " +
	"The plan will be generic; set aside study time whenever possible."

const planJSONExample = `{
  "plan_title": "Study plan: [goal name]",
  "estimated_duration_weeks": "[rough duration, e.g. '2 weeks', '1 month']",
  "weekly_overview": [
    {
      "week_number": 1,
      "weekly_goal": "Week 1 goal: [short description]",
      "daily_tasks": [
        {
          "day_name": "Monday",
          "learning_activities": [
            {
              "suggested_slot": "18:00-20:00",
              "topic": "Topic/module: [name]",
              "description": "Activity: [what exactly to do]",
              "estimated_duration_minutes": 90,
              "resources": ["[resource 1 (article/video/chapter)]", "[resource 2]"]
            }
          ]
        }
      ]
    }
  ],
  "general_recommendations": "[overall study advice]"
}`

// BuildPrompt assembles the generation prompt from the goal and the rendered
// free-time context.
func BuildPrompt(goal, scheduleContext string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Please compose a step-by-step study plan for the goal: '%s'.\n\n", goal))
	sb.WriteString("My available study time:\n")
	sb.WriteString(scheduleContext)
	sb.WriteString("\n\n")
	sb.WriteString("The plan must be realistic and make maximal use of the listed free slots. ")
	sb.WriteString("Break it down by weeks and days. For every day name concrete study tasks, topics, ")
	sb.WriteString("an estimated duration in minutes within the available slots, and suggest resources ")
	sb.WriteString("(books, sites, videos) where possible. ")
	sb.WriteString("IMPORTANT: your reply must be STRICTLY a JSON object with no text before or after it. ")
	sb.WriteString("Use the following JSON structure:\n```json\n")
	sb.WriteString(planJSONExample)
	sb.WriteString("\n```\n")
	sb.WriteString("Fill every field with data relevant to the requested plan. ")
	sb.WriteString("In 'suggested_slot' use one of the free time ranges from the schedule information above.")
	return sb.String()
}

// RenderFreeTime turns the timetable into prompt text, keeping only slots for
// the current period label. Days are rendered in a stable order.
func RenderFreeTime(period string, timetable adapter.FreeTimetable) string {
	relevant := make(map[string][]adapter.TimeRange)
	for day, periods := range timetable {
		if slots := periods[period]; len(slots) > 0 {
			relevant[day] = slots
		}
	}

	if len(relevant) == 0 {
		if len(timetable) > 0 {
			return fmt.Sprintf("For the current week (period: %s) I have no exact free-time information. "+
				"Please suggest a flexible plan.", period)
		}
		return DefaultScheduleContext
	}

	days := make([]string, 0, len(relevant))
	for day := range relevant {
		days = append(days, day)
	}
	sort.Strings(days)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("My free study time this week (period: %s):\n", period))
	for _, day := range days {
		sb.WriteString(fmt.Sprintf("- %s:\n", day))
		for _, slot := range relevant[day] {
			sb.WriteString(fmt.Sprintf("  - from %s to %s\n", slot.From, slot.To))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
