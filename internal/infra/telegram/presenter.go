package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/usecase"
)

// Compile-time assurance the presenter satisfies the port
var _ usecase.ResultPresenter = (*ResultPresenter)(nil)

// Telegram rejects messages longer than 4096 characters.
const messageRuneLimit = 4096

// ResultPresenter renders a finished plan into chat messages: one header,
// one message per week, one trailer with recommendations. A week that would
// not fit into a single Telegram message is replaced with a pointer notice
// instead of being truncated mid-sentence.
type ResultPresenter struct {
	bot adapter.TelegramBotAdapter
	log *zerolog.Logger
}

func NewResultPresenter(bot adapter.TelegramBotAdapter, logger *zerolog.Logger) *ResultPresenter {
	compLog := logger.With().Str("component", "ResultPresenter").Logger()
	return &ResultPresenter{bot: bot, log: &compLog}
}

func (p *ResultPresenter) DeliverResult(ctx context.Context, chatID int64, job *model.PlanJob) error {
	if job.Status == model.PlanJobStatusFailed {
		return p.send(ctx, chatID, failureMessage(job), "")
	}
	if job.Result == nil || job.Result.Plan == nil {
		// Completed without a payload should not happen; report rather than
		// silently dropping.
		return p.send(ctx, chatID, "Your plan finished but its content is unavailable. Please run /generateplan again.", "")
	}
	plan := job.Result.Plan

	if err := p.send(ctx, chatID, renderHeader(plan), "HTML"); err != nil {
		return err
	}
	for i := range plan.WeeklyOverview {
		msg := renderWeek(&plan.WeeklyOverview[i])
		if runeLen(msg) > messageRuneLimit {
			msg = fmt.Sprintf("Week %d is too large to display here. Fetch the full plan over the API with job id <code>%s</code>.",
				plan.WeeklyOverview[i].WeekNumber, html.EscapeString(job.ID))
		}
		if err := p.send(ctx, chatID, msg, "HTML"); err != nil {
			return err
		}
	}
	if plan.GeneralRecommendations != "" {
		return p.send(ctx, chatID, "<b>Recommendations</b>\n"+html.EscapeString(plan.GeneralRecommendations), "HTML")
	}
	return nil
}

func (p *ResultPresenter) DeliverTimeout(ctx context.Context, chatID int64, jobID string) error {
	return p.send(ctx, chatID,
		"Generation is taking longer than expected. It is still running; send /getplan in a few minutes to pick it up.", "")
}

func (p *ResultPresenter) send(ctx context.Context, chatID int64, text, parseMode string) error {
	err := p.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: text, ParseMode: parseMode})
	if err != nil {
		p.log.Error().Err(err).Int64("chat_id", chatID).Msg("chat delivery failed")
	}
	return err
}

func renderHeader(plan *model.StudyPlan) string {
	sb := strings.Builder{}
	sb.WriteString("📚 <b>" + html.EscapeString(plan.PlanTitle) + "</b>\n")
	if plan.EstimatedDurationWeeks != "" {
		sb.WriteString(fmt.Sprintf("Estimated duration: %s weeks\n", html.EscapeString(plan.EstimatedDurationWeeks)))
	}
	sb.WriteString(fmt.Sprintf("Weeks in plan: %d", len(plan.WeeklyOverview)))
	return sb.String()
}

func renderWeek(week *model.PlanWeek) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("<b>Week %d</b>", week.WeekNumber))
	if week.WeeklyGoal != "" {
		sb.WriteString(": " + html.EscapeString(week.WeeklyGoal))
	}
	sb.WriteString("\n")
	for _, day := range week.DailyTasks {
		sb.WriteString("\n<b>" + html.EscapeString(day.DayName) + "</b>\n")
		for _, act := range day.LearningActivities {
			sb.WriteString("• ")
			if act.SuggestedSlot != "" {
				sb.WriteString(html.EscapeString(act.SuggestedSlot) + " ")
			}
			sb.WriteString("<i>" + html.EscapeString(act.Topic) + "</i>")
			if act.EstimatedDurationMinutes > 0 {
				sb.WriteString(fmt.Sprintf(" (%d min)", act.EstimatedDurationMinutes))
			}
			sb.WriteString("\n")
			if act.Description != "" {
				sb.WriteString("  " + html.EscapeString(act.Description) + "\n")
			}
			for _, res := range act.Resources {
				sb.WriteString("  – " + html.EscapeString(res) + "\n")
			}
		}
	}
	return sb.String()
}

// failureMessage maps a failure class to a user-facing explanation. Internal
// details stay in the stored descriptor.
func failureMessage(job *model.PlanJob) string {
	class := model.FailureClass("")
	if job.Result != nil && job.Result.Error != nil {
		class = job.Result.Error.Class
	}
	switch class {
	case model.FailureAdmissionConflict:
		return "This generation was superseded by a newer one. Use /getplan for the current plan."
	case model.FailureUpstreamTimeout:
		return "The plan generator took too long and the attempt was aborted. Please try /generateplan again."
	case model.FailureMalformedOutput:
		return "The generator returned something I could not read. Please try /generateplan again."
	case model.FailureMissingCredentials, model.FailureAuth:
		return "The plan generator is temporarily unavailable. Please try again later."
	default:
		return "Plan generation failed. Please try /generateplan again later."
	}
}

func runeLen(s string) int { return len([]rune(s)) }
