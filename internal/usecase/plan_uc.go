// File: internal/usecase/plan_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/infra/logging"
	"telegram-study-planner/internal/infra/metrics"
)

// AdmissionLocker serializes admission per requester key. Satisfied by the
// Redis locker; unrelated requesters proceed concurrently.
type AdmissionLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase owns the job state machine: admission, execution with
// retry/timeout against the external generator, and the terminal write.
type PlanUseCase interface {
	Submit(ctx context.Context, requesterID int64, goal, groupID string) (string, error)
	GetStatus(ctx context.Context, jobID string) (*model.PlanJob, error)
	// Execute drives one claimed job to a terminal status. Not reentrant for
	// the same job.
	Execute(ctx context.Context, job *model.PlanJob)
	// Cancel best-effort aborts the requester's in-flight execution. Always
	// succeeds locally; a cancelled job may still complete in the store.
	Cancel(ctx context.Context, requesterID int64)
}

type planUC struct {
	jobs      repository.PlanJobRepository
	locker    AdmissionLocker
	generator adapter.PlanGeneratorAdapter
	schedule  adapter.ScheduleProvider
	genCfg    config.GeneratorConfig
	schedCfg  config.ScheduleConfig
	log       *zerolog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

func NewPlanUseCase(
	jobs repository.PlanJobRepository,
	locker AdmissionLocker,
	generator adapter.PlanGeneratorAdapter,
	schedule adapter.ScheduleProvider,
	genCfg config.GeneratorConfig,
	schedCfg config.ScheduleConfig,
	logger *zerolog.Logger,
) *planUC {
	compLog := logger.With().Str("component", "PlanUC").Logger()
	return &planUC{
		jobs:      jobs,
		locker:    locker,
		generator: generator,
		schedule:  schedule,
		genCfg:    genCfg,
		schedCfg:  schedCfg,
		log:       &compLog,
		running:   make(map[int64]context.CancelFunc),
	}
}

func admissionKey(requesterID int64) string {
	return fmt.Sprintf("plan_admission:%d", requesterID)
}

func (u *planUC) Submit(ctx context.Context, requesterID int64, goal, groupID string) (string, error) {
	defer logging.TraceDuration(u.log, "PlanUC.Submit")()
	goal = strings.TrimSpace(goal)
	groupID = strings.TrimSpace(groupID)
	if requesterID <= 0 || len(goal) < 5 || len(goal) > 1000 || groupID == "" || len(groupID) > 50 {
		return "", domain.ErrInvalidArgument
	}

	// Admission is serialized per requester, not globally.
	token, err := u.locker.TryLock(ctx, admissionKey(requesterID), 10*time.Second)
	if err != nil {
		return "", domain.ErrJobAlreadyActive
	}
	defer func() { _ = u.locker.Unlock(ctx, admissionKey(requesterID), token) }()

	if _, err := u.jobs.FindActiveByRequester(ctx, nil, requesterID); err == nil {
		return "", domain.ErrJobAlreadyActive
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("check active job: %w", err)
	}

	job := model.NewPlanJob(uuid.NewString(), requesterID, goal, groupID)
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	metrics.IncJobSubmitted()
	u.log.Info().Str("job_id", job.ID).Int64("requester_id", requesterID).Msg("plan job accepted")
	return job.ID, nil
}

func (u *planUC) GetStatus(ctx context.Context, jobID string) (*model.PlanJob, error) {
	return u.jobs.FindByID(ctx, nil, jobID)
}

func (u *planUC) Execute(ctx context.Context, job *model.PlanJob) {
	log := u.log.With().Str("job_id", job.ID).Int64("requester_id", job.RequesterID).Logger()
	defer logging.TraceDuration(&log, "PlanUC.Execute")()
	log.Info().Str("goal", job.Goal).Str("group_id", job.GroupID).Msg("executing plan job")
	start := time.Now()

	// Re-validate exclusivity: a second submission for the same requester may
	// have been admitted before this job left 'pending'. The oldest job wins;
	// this one is closed without touching the upstream.
	if active, err := u.jobs.FindActiveByRequester(ctx, nil, job.RequesterID); err == nil && active.ID != job.ID {
		u.finish(&log, job, &model.JobResult{Error: &model.ErrorDescriptor{
			Class:   model.FailureAdmissionConflict,
			Message: "another generation job is active for this requester",
		}}, start)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, u.genCfg.JobTimeout)
	defer cancel()
	u.track(job.RequesterID, cancel)
	defer u.untrack(job.RequesterID)

	prompt := BuildPrompt(job.Goal, u.scheduleContext(jobCtx, &log, job.GroupID))

	var desc *model.ErrorDescriptor
	for attempt := 1; attempt <= u.genCfg.Attempts; attempt++ {
		raw, err := u.generateOnce(jobCtx, prompt)
		if err == nil {
			plan, perr := model.ParseStudyPlan(raw)
			if perr != nil {
				// Deterministic fault: re-sending the same prompt would yield
				// the same garbage, so no retry.
				desc = &model.ErrorDescriptor{
					Class:   model.FailureMalformedOutput,
					Message: perr.Error(),
					Preview: model.BoundPreview(raw),
				}
				break
			}
			u.finish(&log, job, &model.JobResult{Plan: plan}, start)
			return
		}

		desc = classifyFailure(err)
		if !retryable(desc.Class) || attempt == u.genCfg.Attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", u.genCfg.Backoff).
			Msg("generator attempt failed, backing off")
		select {
		case <-jobCtx.Done():
			desc = &model.ErrorDescriptor{
				Class:   model.FailureUpstreamTimeout,
				Message: "job deadline exceeded during backoff",
			}
			attempt = u.genCfg.Attempts
		case <-time.After(u.genCfg.Backoff):
		}
	}

	u.finish(&log, job, &model.JobResult{Error: desc}, start)
}

func (u *planUC) Cancel(ctx context.Context, requesterID int64) {
	u.mu.Lock()
	cancel, ok := u.running[requesterID]
	u.mu.Unlock()
	if !ok {
		u.log.Debug().Int64("requester_id", requesterID).Msg("cancel: no in-flight execution")
		return
	}
	cancel()
	u.log.Info().Int64("requester_id", requesterID).Msg("in-flight execution cancelled")
}

func (u *planUC) generateOnce(ctx context.Context, prompt string) (string, error) {
	// Per-call budget is strictly smaller than the job budget so a backoff
	// and one retry still fit.
	callCtx, cancel := context.WithTimeout(ctx, u.genCfg.CallTimeout)
	defer cancel()
	return u.generator.Generate(callCtx, prompt)
}

// scheduleContext fetches advisory free-time data. Each call is a single
// best-effort attempt; failures only make the prompt less specific.
func (u *planUC) scheduleContext(ctx context.Context, log *zerolog.Logger, groupID string) string {
	period, err := u.schedule.CurrentPeriod(ctx)
	if err != nil || period == "" {
		metrics.IncScheduleDegraded("current_period")
		log.Warn().Err(err).Str("default", u.schedCfg.DefaultPeriod).Msg("current period unavailable, using default")
		period = u.schedCfg.DefaultPeriod
	}

	slots, err := u.schedule.FreeSlots(ctx, groupID)
	if err != nil {
		metrics.IncScheduleDegraded("free_slots")
		log.Warn().Err(err).Str("group_id", groupID).Msg("free slots unavailable, prompt will be generic")
		slots = nil
	}

	return RenderFreeTime(period, slots)
}

// finish writes the terminal status and result atomically. The store update
// uses a background context so a cancelled job still records its outcome.
func (u *planUC) finish(log *zerolog.Logger, job *model.PlanJob, result *model.JobResult, start time.Time) {
	status := model.PlanJobStatusCompleted
	class := ""
	if result.Error != nil {
		status = model.PlanJobStatusFailed
		class = string(result.Error.Class)
		log.Error().Str("class", class).Str("reason", result.Error.Message).Msg("plan job failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := u.jobs.UpdateStatus(ctx, nil, job.ID, status, result); err != nil {
		log.Error().Err(err).Msg("failed to persist terminal job status")
	}

	elapsed := time.Since(start)
	metrics.IncJobProcessed(string(status), class)
	metrics.ObserveJobDuration(elapsed.Seconds())
	log.Info().Str("status", string(status)).Dur("duration", elapsed).Msg("plan job finished")
}

func (u *planUC) track(requesterID int64, cancel context.CancelFunc) {
	u.mu.Lock()
	u.running[requesterID] = cancel
	u.mu.Unlock()
}

func (u *planUC) untrack(requesterID int64) {
	u.mu.Lock()
	delete(u.running, requesterID)
	u.mu.Unlock()
}

func classifyFailure(err error) *model.ErrorDescriptor {
	var authErr *adapter.AuthError
	var upErr *adapter.UpstreamError
	switch {
	case errors.Is(err, domain.ErrMissingCredentials):
		return &model.ErrorDescriptor{Class: model.FailureMissingCredentials, Message: err.Error()}
	case errors.As(err, &authErr):
		return &model.ErrorDescriptor{Class: model.FailureAuth, Message: authErr.Error()}
	case errors.As(err, &upErr):
		return &model.ErrorDescriptor{
			Class:      model.FailureUpstreamHTTP,
			Message:    "generator returned an error response",
			StatusCode: upErr.StatusCode,
			Preview:    model.BoundPreview(upErr.Body),
		}
	case errors.Is(err, adapter.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return &model.ErrorDescriptor{Class: model.FailureUpstreamTimeout, Message: "generator call exceeded its budget"}
	case errors.Is(err, context.Canceled):
		return &model.ErrorDescriptor{Class: model.FailureUpstreamTimeout, Message: "generation cancelled"}
	case errors.Is(err, adapter.ErrEmptyContent):
		return &model.ErrorDescriptor{Class: model.FailureMalformedOutput, Message: err.Error()}
	default:
		return &model.ErrorDescriptor{Class: model.FailureUpstreamHTTP, Message: err.Error()}
	}
}

// retryable: transient upstream faults get one more attempt at the job
// level; deterministic faults never do.
func retryable(c model.FailureClass) bool {
	switch c {
	case model.FailureAuth, model.FailureUpstreamHTTP, model.FailureUpstreamTimeout:
		return true
	}
	return false
}
