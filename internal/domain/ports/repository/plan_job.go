package repository

import (
	"context"

	"telegram-study-planner/internal/domain/model"
)

// PlanJobRepository is the durable record of what happened to every
// generation job. UpdateStatus must write status, result and updated_at in
// one atomic statement so a reader never observes a terminal status without
// its result (or vice versa).
type PlanJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.PlanJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PlanJob, error)

	// FindActiveByRequester returns the requester's non-terminal job, or
	// domain.ErrNotFound when there is none.
	FindActiveByRequester(ctx context.Context, tx Tx, requesterID int64) (*model.PlanJob, error)

	// FetchAndMarkProcessing atomically claims the oldest pending job and
	// moves it to 'processing' so no other worker picks it up.
	FetchAndMarkProcessing(ctx context.Context) (*model.PlanJob, error)

	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PlanJobStatus, result *model.JobResult) error

	// CountByStatus powers the admin summary endpoint.
	CountByStatus(ctx context.Context, tx Tx) (map[model.PlanJobStatus]int, error)
}
