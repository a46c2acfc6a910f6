// File: internal/usecase/poller.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/infra/metrics"
)

// ResultPresenter formats and delivers a terminal job outcome (or a timeout
// notice) to the requester's chat. The Telegram adapter implements it.
type ResultPresenter interface {
	DeliverResult(ctx context.Context, chatID int64, job *model.PlanJob) error
	DeliverTimeout(ctx context.Context, chatID int64, jobID string) error
}

// ExecutionCanceller is the slice of the orchestrator the poller needs for
// best-effort cancellation propagation.
type ExecutionCanceller interface {
	Cancel(ctx context.Context, requesterID int64)
}

type pollSession struct {
	jobID     string
	chatID    int64
	startedAt time.Time
	stop      chan struct{} // closed exactly once, under the registry lock
}

// Poller tracks at most one poll session per requester and pushes the result
// to the chat once the job is terminal. Sessions are process-local; they are
// lost on restart and the requester falls back to direct status queries.
type Poller struct {
	jobs      repository.PlanJobRepository
	presenter ResultPresenter
	canceller ExecutionCanceller
	cfg       config.PollConfig
	log       *zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*pollSession
}

func NewPoller(
	jobs repository.PlanJobRepository,
	presenter ResultPresenter,
	canceller ExecutionCanceller,
	cfg config.PollConfig,
	logger *zerolog.Logger,
) *Poller {
	compLog := logger.With().Str("component", "Poller").Logger()
	return &Poller{
		jobs:      jobs,
		presenter: presenter,
		canceller: canceller,
		cfg:       cfg,
		log:       &compLog,
		sessions:  make(map[int64]*pollSession),
	}
}

// StartPolling registers a session and launches its poll loop. Fails with
// domain.ErrAlreadyPolling when the requester already has one; this check is
// independent of the orchestrator's admission exclusivity and both must hold.
func (p *Poller) StartPolling(ctx context.Context, requesterID int64, jobID string, chatID int64) error {
	p.mu.Lock()
	if _, ok := p.sessions[requesterID]; ok {
		p.mu.Unlock()
		return domain.ErrAlreadyPolling
	}
	s := &pollSession{
		jobID:     jobID,
		chatID:    chatID,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
	p.sessions[requesterID] = s
	p.mu.Unlock()

	metrics.IncPollSession()
	p.log.Info().Int64("requester_id", requesterID).Str("job_id", jobID).Int64("chat_id", chatID).
		Msg("poll session started")
	go p.run(ctx, requesterID, s)
	return nil
}

// Active reports the job id of the requester's running session, if any.
func (p *Poller) Active(requesterID int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[requesterID]; ok {
		return s.jobID, true
	}
	return "", false
}

// Cancel destroys the requester's session if present and best-effort asks the
// orchestrator to abort the in-flight execution. Idempotent: cancelling with
// no active session is a no-op, not an error.
func (p *Poller) Cancel(ctx context.Context, requesterID int64) {
	p.mu.Lock()
	s, ok := p.sessions[requesterID]
	if ok {
		delete(p.sessions, requesterID)
		close(s.stop)
	}
	p.mu.Unlock()

	if !ok {
		p.log.Debug().Int64("requester_id", requesterID).Msg("cancel: no active poll session")
		return
	}

	metrics.DecPollSession()
	metrics.IncPollFinished("cancelled")
	p.log.Info().Int64("requester_id", requesterID).Str("job_id", s.jobID).Msg("poll session cancelled")

	// Fire-and-forget toward the orchestrator; failure to propagate is
	// logged there, never surfaced here.
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.canceller.Cancel(cctx, requesterID)
	}()
}

// run is the cooperative poll loop. Delivery happens only from inside this
// loop, so a session destroyed by Cancel can never receive a late result.
func (p *Poller) run(ctx context.Context, requesterID int64, s *pollSession) {
	log := p.log.With().Int64("requester_id", requesterID).Str("job_id", s.jobID).Logger()
	deadline := s.startedAt.Add(p.cfg.MaxWait)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.destroy(requesterID, s) {
				metrics.IncPollFinished("cancelled")
				log.Info().Msg("poll session stopped: shutting down")
			}
			return
		case <-s.stop:
			// Cancel already removed the session; nothing to deliver.
			return
		case <-ticker.C:
		}

		job, err := p.jobs.FindByID(ctx, nil, s.jobID)
		if err != nil {
			// Transient store trouble is not a reason to drop the session;
			// the max-wait clock keeps it bounded.
			log.Warn().Err(err).Msg("status query failed")
		} else if job.Status.Terminal() {
			if !p.destroy(requesterID, s) {
				return
			}
			if derr := p.presenter.DeliverResult(ctx, s.chatID, job); derr != nil {
				log.Error().Err(derr).Msg("result delivery failed")
			}
			metrics.IncPollFinished("delivered")
			log.Info().Str("status", string(job.Status)).Msg("poll session delivered")
			return
		}

		if time.Now().After(deadline) {
			if !p.destroy(requesterID, s) {
				return
			}
			// The job keeps running; only the notification session expires.
			if derr := p.presenter.DeliverTimeout(ctx, s.chatID, s.jobID); derr != nil {
				log.Error().Err(derr).Msg("timeout notice delivery failed")
			}
			metrics.IncPollFinished("expired")
			log.Info().Msg("poll session expired, job left running")
			return
		}
	}
}

// destroy removes the session unless Cancel won the race. Returns true when
// this caller owned the removal.
func (p *Poller) destroy(requesterID int64, s *pollSession) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.sessions[requesterID]; !ok || cur != s {
		return false
	}
	delete(p.sessions, requesterID)
	close(s.stop)
	metrics.DecPollSession()
	return true
}
