package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/usecase"
)

// PlanJobProcessor drains pending jobs from the store and drives each one
// through the orchestrator on the shared pool. Claiming uses row locks, so
// multiple instances can run side by side without double-processing.
type PlanJobProcessor struct {
	jobsRepo repository.PlanJobRepository
	planUC   usecase.PlanUseCase
	log      *zerolog.Logger
}

func NewPlanJobProcessor(jobsRepo repository.PlanJobRepository, planUC usecase.PlanUseCase, logger *zerolog.Logger) *PlanJobProcessor {
	compLog := logger.With().Str("component", "PlanJobProcessor").Logger()
	return &PlanJobProcessor{jobsRepo: jobsRepo, planUC: planUC, log: &compLog}
}

// Start runs a loop to fetch and process jobs.
// This should be run in a goroutine.
func (p *PlanJobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("plan job processor started")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("plan job processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *PlanJobProcessor) processOne(ctx context.Context) {
	job, err := p.jobsRepo.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim plan job")
		}
		return
	}
	// Execute owns the job from here: retries, timeout and the terminal
	// write all happen inside.
	p.planUC.Execute(ctx, job)
}
