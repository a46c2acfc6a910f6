package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/usecase"
)

// Conversation steps stored in redis between updates.
const (
	stepAwaitGroup = "await_group"
	stepAwaitGoal  = "await_goal"
)

const actionGenerate = "generate"

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just
// forwards them to the chat. Terminal plan delivery goes through the
// presenter because a full plan spans several messages.
type BotFacade struct {
	PlanUC    usecase.PlanUseCase
	Poller    *usecase.Poller
	States    repository.StateRepository
	Prefs     repository.PrefsRepository
	Presenter usecase.ResultPresenter

	// pollCtx outlives a single update handler; poll loops attach to it so
	// they survive until shutdown.
	pollCtx context.Context
}

func NewBotFacade(
	pollCtx context.Context,
	planUC usecase.PlanUseCase,
	poller *usecase.Poller,
	states repository.StateRepository,
	prefs repository.PrefsRepository,
	presenter usecase.ResultPresenter,
) *BotFacade {
	return &BotFacade{
		PlanUC:    planUC,
		Poller:    poller,
		States:    states,
		Prefs:     prefs,
		Presenter: presenter,
		pollCtx:   pollCtx,
	}
}

func (b *BotFacade) HandleStart(ctx context.Context, requesterID int64, username string) (string, error) {
	_ = b.States.ClearState(ctx, requesterID)
	name := username
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello %s!\nI build personalized study plans around your class schedule.\n\nStart with /entergroup and /entergoal, then run /generateplan.\nSend /help for the full command list.", name), nil
}

func (b *BotFacade) HandleHelp(ctx context.Context) (string, error) {
	return "Available commands:\n" +
		"/start - introduction\n" +
		"/plan - show your saved group and goal\n" +
		"/entergroup - set your study group\n" +
		"/entergoal - set your learning goal\n" +
		"/generateplan - generate a study plan\n" +
		"/getplan - show the latest plan or its status\n" +
		"/cancel - stop waiting for a running generation", nil
}

// HandlePlan shows the saved profile.
func (b *BotFacade) HandlePlan(ctx context.Context, requesterID int64) (string, error) {
	prefs, err := b.Prefs.GetPrefs(ctx, requesterID)
	if err != nil {
		return "", fmt.Errorf("get prefs: %w", err)
	}
	sb := strings.Builder{}
	sb.WriteString("Your study profile:\n")
	if prefs.Group != "" {
		sb.WriteString(fmt.Sprintf("Group: %s\n", prefs.Group))
	} else {
		sb.WriteString("Group: not set (/entergroup)\n")
	}
	if prefs.Goal != "" {
		sb.WriteString(fmt.Sprintf("Goal: %s\n", prefs.Goal))
	} else {
		sb.WriteString("Goal: not set (/entergoal)\n")
	}
	sb.WriteString("\nRun /generateplan when both are set.")
	return sb.String(), nil
}

func (b *BotFacade) HandleEnterGroup(ctx context.Context, requesterID int64) (string, error) {
	state := &repository.ConversationState{Step: stepAwaitGroup, IssuedAt: time.Now().Unix()}
	if err := b.States.SetState(ctx, requesterID, state); err != nil {
		return "", fmt.Errorf("set state: %w", err)
	}
	return "Send me your group number (for example: IS-21).", nil
}

func (b *BotFacade) HandleEnterGoal(ctx context.Context, requesterID int64) (string, error) {
	state := &repository.ConversationState{Step: stepAwaitGoal, IssuedAt: time.Now().Unix()}
	if err := b.States.SetState(ctx, requesterID, state); err != nil {
		return "", fmt.Errorf("set state: %w", err)
	}
	return "Describe what you want to learn and by when.", nil
}

// HandleGeneratePlan submits a generation job when the profile is complete,
// otherwise starts the missing-data dialogue.
func (b *BotFacade) HandleGeneratePlan(ctx context.Context, requesterID, chatID int64) (string, error) {
	prefs, err := b.Prefs.GetPrefs(ctx, requesterID)
	if err != nil {
		return "", fmt.Errorf("get prefs: %w", err)
	}

	var missing []string
	if prefs.Group == "" {
		missing = append(missing, "group")
	}
	if prefs.Goal == "" {
		missing = append(missing, "goal")
	}
	if len(missing) > 0 {
		state := &repository.ConversationState{
			PendingAction: actionGenerate,
			MissingData:   missing,
			CurrentStep:   0,
			IssuedAt:      time.Now().Unix(),
		}
		if err := b.States.SetState(ctx, requesterID, state); err != nil {
			return "", fmt.Errorf("set state: %w", err)
		}
		return askForMissing(missing[0]), nil
	}

	return b.submitAndPoll(ctx, requesterID, chatID, prefs)
}

// HandleGetPlan replays the last known job. A terminal job is delivered in
// full through the presenter; an in-flight one gets a short status line.
func (b *BotFacade) HandleGetPlan(ctx context.Context, requesterID, chatID int64) (string, error) {
	jobID, err := b.Prefs.GetLastJob(ctx, requesterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "You have no plan yet. Run /generateplan first.", nil
		}
		return "", fmt.Errorf("get last job: %w", err)
	}

	job, err := b.PlanUC.GetStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Drop the dangling link so the next /getplan answers directly.
			_ = b.Prefs.ClearLastJob(ctx, requesterID)
			return "Your last plan is no longer available. Run /generateplan to create a new one.", nil
		}
		return "", fmt.Errorf("get job status: %w", err)
	}
	if !job.Status.Terminal() {
		return fmt.Sprintf("Your plan is still being generated (status: %s). I will send it as soon as it is ready.", job.Status), nil
	}
	if err := b.Presenter.DeliverResult(ctx, chatID, job); err != nil {
		return "", fmt.Errorf("deliver result: %w", err)
	}
	return "", nil
}

// HandleCancel stops the requester's poll session and any in-flight
// generation, and drops a pending dialogue.
func (b *BotFacade) HandleCancel(ctx context.Context, requesterID int64) (string, error) {
	_ = b.States.ClearState(ctx, requesterID)
	if _, active := b.Poller.Active(requesterID); !active {
		return "Nothing to cancel.", nil
	}
	b.Poller.Cancel(ctx, requesterID)
	return "Cancelled. You can start a new generation with /generateplan.", nil
}

// HandleText routes a non-command message through the conversation state
// machine. sentAt is the Telegram message timestamp; messages older than the
// prompt that asked for them are ignored.
func (b *BotFacade) HandleText(ctx context.Context, requesterID, chatID int64, text string, sentAt time.Time) (string, error) {
	state, err := b.States.GetState(ctx, requesterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "Sorry, I didn't understand that. Send /help for commands.", nil
		}
		return "", fmt.Errorf("get state: %w", err)
	}
	if sentAt.Unix() < state.IssuedAt {
		// Stale message queued before the prompt; answering it would bind
		// old input to the new question.
		return "", nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "Please send a text answer.", nil
	}

	switch {
	case state.Step == stepAwaitGroup:
		return b.saveField(ctx, requesterID, "group", text)
	case state.Step == stepAwaitGoal:
		return b.saveField(ctx, requesterID, "goal", text)
	case state.PendingAction == actionGenerate:
		return b.collectMissing(ctx, requesterID, chatID, state, text)
	}
	return "Sorry, I didn't understand that. Send /help for commands.", nil
}

func (b *BotFacade) saveField(ctx context.Context, requesterID int64, field, value string) (string, error) {
	prefs, err := b.Prefs.GetPrefs(ctx, requesterID)
	if err != nil {
		return "", fmt.Errorf("get prefs: %w", err)
	}
	if msg := validateField(field, value); msg != "" {
		return msg, nil
	}
	switch field {
	case "group":
		prefs.Group = value
	case "goal":
		prefs.Goal = value
	}
	if err := b.Prefs.SavePrefs(ctx, requesterID, prefs); err != nil {
		return "", fmt.Errorf("save prefs: %w", err)
	}
	if err := b.States.ClearState(ctx, requesterID); err != nil {
		return "", fmt.Errorf("clear state: %w", err)
	}
	return fmt.Sprintf("Saved your %s. Run /generateplan when you are ready.", field), nil
}

// collectMissing fills the next missing profile field and either asks for the
// following one or submits the generation.
func (b *BotFacade) collectMissing(ctx context.Context, requesterID, chatID int64, state *repository.ConversationState, text string) (string, error) {
	if state.CurrentStep >= len(state.MissingData) {
		_ = b.States.ClearState(ctx, requesterID)
		return "Sorry, I lost track of that. Run /generateplan again.", nil
	}
	field := state.MissingData[state.CurrentStep]
	if msg := validateField(field, text); msg != "" {
		return msg, nil
	}

	prefs, err := b.Prefs.GetPrefs(ctx, requesterID)
	if err != nil {
		return "", fmt.Errorf("get prefs: %w", err)
	}
	switch field {
	case "group":
		prefs.Group = text
	case "goal":
		prefs.Goal = text
	}
	if err := b.Prefs.SavePrefs(ctx, requesterID, prefs); err != nil {
		return "", fmt.Errorf("save prefs: %w", err)
	}

	state.CurrentStep++
	if state.CurrentStep < len(state.MissingData) {
		state.IssuedAt = time.Now().Unix()
		if err := b.States.SetState(ctx, requesterID, state); err != nil {
			return "", fmt.Errorf("set state: %w", err)
		}
		return askForMissing(state.MissingData[state.CurrentStep]), nil
	}

	if err := b.States.ClearState(ctx, requesterID); err != nil {
		return "", fmt.Errorf("clear state: %w", err)
	}
	return b.submitAndPoll(ctx, requesterID, chatID, prefs)
}

func (b *BotFacade) submitAndPoll(ctx context.Context, requesterID, chatID int64, prefs *repository.UserPrefs) (string, error) {
	jobID, err := b.PlanUC.Submit(ctx, requesterID, prefs.Goal, prefs.Group)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobAlreadyActive):
			return "A plan is already being generated for you. Wait for it to finish or send /cancel.", nil
		case errors.Is(err, domain.ErrInvalidArgument):
			return "Your goal should be between 5 and 1000 characters and the group must be set. Check /plan.", nil
		}
		return "", fmt.Errorf("submit plan job: %w", err)
	}

	if err := b.Prefs.SetLastJob(ctx, requesterID, jobID); err != nil {
		return "", fmt.Errorf("link last job: %w", err)
	}

	if err := b.Poller.StartPolling(b.pollCtx, requesterID, jobID, chatID); err != nil {
		// The job keeps running either way; /getplan still finds it.
		if errors.Is(err, domain.ErrAlreadyPolling) {
			return "Generation started. I am already watching a job for you; use /getplan to check this one.", nil
		}
		return "", fmt.Errorf("start polling: %w", err)
	}
	return "Generation started! This usually takes a minute or two. I will send the plan here as soon as it is ready.", nil
}

func askForMissing(field string) string {
	switch field {
	case "group":
		return "I need your group first. Send me your group number (for example: IS-21)."
	case "goal":
		return "Now describe what you want to learn and by when."
	}
	return "Send the missing detail."
}

// validateField returns a user-facing correction message, or "" when valid.
// Bounds mirror the ones enforced at submission.
func validateField(field, value string) string {
	switch field {
	case "group":
		if len(value) == 0 || len(value) > 50 {
			return "That does not look like a group number. Keep it under 50 characters."
		}
	case "goal":
		if len(value) < 5 {
			return "Please describe your goal in a bit more detail (at least 5 characters)."
		}
		if len(value) > 1000 {
			return "That goal is too long. Keep it under 1000 characters."
		}
	}
	return ""
}
