package usecase

import (
	"strings"
	"testing"

	"telegram-study-planner/internal/domain/ports/adapter"
)

func TestRenderFreeTime(t *testing.T) {
	timetable := adapter.FreeTimetable{
		"Wednesday": {
			"numerator": {{From: "14:00", To: "16:00"}},
		},
		"Monday": {
			"numerator":   {{From: "18:00", To: "20:00"}, {From: "21:00", To: "22:00"}},
			"denominator": {{From: "08:00", To: "10:00"}},
		},
	}

	t.Run("filters by period and sorts days", func(t *testing.T) {
		got := RenderFreeTime("numerator", timetable)
		if !strings.Contains(got, "period: numerator") {
			t.Fatalf("missing period label:\n%s", got)
		}
		if strings.Contains(got, "08:00") {
			t.Fatalf("slot from another period leaked:\n%s", got)
		}
		if strings.Index(got, "Monday") > strings.Index(got, "Wednesday") {
			t.Fatalf("days not in stable order:\n%s", got)
		}
	})

	t.Run("known timetable but no slots for period", func(t *testing.T) {
		got := RenderFreeTime("holiday", timetable)
		if !strings.Contains(got, "no exact free-time") {
			t.Fatalf("expected the flexible-plan variant, got:\n%s", got)
		}
	})

	t.Run("empty timetable falls back to default", func(t *testing.T) {
		if got := RenderFreeTime("numerator", nil); got != DefaultScheduleContext {
			t.Fatalf("got %q", got)
		}
	})
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("learn german to B1", "- Monday: 18:00-20:00")
	for _, want := range []string{
		"learn german to B1",
		"- Monday: 18:00-20:00",
		"STRICTLY a JSON object",
		`"plan_title"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}
