package repository

import "context"

// ConversationState tracks a multi-step bot dialogue (entering a group,
// a goal, or collecting missing data before a generation). It expires on
// its own; IssuedAt lets handlers reject messages older than the prompt.
type ConversationState struct {
	Step          string   `json:"step,omitempty"`
	PendingAction string   `json:"pending_action,omitempty"`
	MissingData   []string `json:"missing_data,omitempty"`
	CurrentStep   int      `json:"current_step,omitempty"`
	IssuedAt      int64    `json:"issued_at"`
}

// StateRepository manages per-requester conversational state.
type StateRepository interface {
	SetState(ctx context.Context, requesterID int64, state *ConversationState) error
	// GetState returns domain.ErrNotFound when no state is stored.
	GetState(ctx context.Context, requesterID int64) (*ConversationState, error)
	ClearState(ctx context.Context, requesterID int64) error
}

// UserPrefs is the per-requester study profile the bot collects.
type UserPrefs struct {
	Group string `json:"group,omitempty"`
	Goal  string `json:"goal,omitempty"`
}

// PrefsRepository persists the study profile and the requester's last job
// linkage (so /getplan works after the poll session is gone).
type PrefsRepository interface {
	SavePrefs(ctx context.Context, requesterID int64, prefs *UserPrefs) error
	// GetPrefs returns an empty UserPrefs when nothing is stored yet.
	GetPrefs(ctx context.Context, requesterID int64) (*UserPrefs, error)

	SetLastJob(ctx context.Context, requesterID int64, jobID string) error
	// GetLastJob returns domain.ErrNotFound when no job is linked.
	GetLastJob(ctx context.Context, requesterID int64) (string, error)
	ClearLastJob(ctx context.Context, requesterID int64) error
}
