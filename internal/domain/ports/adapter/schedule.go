package adapter

import "context"

// TimeRange is one free slot as reported by the schedule service.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FreeTimetable maps day name -> period label -> free slots.
type FreeTimetable map[string]map[string][]TimeRange

// ScheduleProvider supplies advisory free-time context for the generation
// prompt. Both calls are single best-effort attempts; callers degrade to
// defaults on error and never abort a job because of one.
type ScheduleProvider interface {
	CurrentPeriod(ctx context.Context) (string, error)
	FreeSlots(ctx context.Context, groupID string) (FreeTimetable, error)
}
