package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/infra/logging"
)

// A struct to define the expected JSON request body for submitting a plan.
type planSubmitRequest struct {
	RequesterID int64  `json:"requester_id"`
	Goal        string `json:"goal"`
	Group       string `json:"group"`
}

type jobStatusResponse struct {
	JobID     string                 `json:"job_id"`
	Status    model.PlanJobStatus    `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Plan      *model.StudyPlan       `json:"plan,omitempty"`
	Error     *model.ErrorDescriptor `json:"error,omitempty"`
}

// submitHandler accepts a generation request. Acceptance means queued, not
// done, so the success status is 202.
func (s *Server) submitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		ctx = logging.WithRequesterID(ctx, req.RequesterID)
		jobID, err := s.planUC.Submit(ctx, req.RequesterID, req.Goal, req.Group)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrJobAlreadyActive):
				http.Error(w, "a generation job is already active for this requester", http.StatusConflict)
			default:
				logging.With(ctx, s.log).Error().Err(err).Msg("submit failed")
				http.Error(w, "Failed to submit plan job", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusAccepted, struct {
			JobID string `json:"job_id"`
		}{JobID: jobID})
	}
}

// statusHandler returns the job with its result when terminal, or 202 with
// the live status while the job is still in flight.
func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID := chi.URLParam(r, "jobID")
		if _, err := uuid.Parse(jobID); err != nil {
			http.Error(w, "job id must be a UUID", http.StatusBadRequest)
			return
		}

		ctx = logging.WithJobID(ctx, jobID)
		job, err := s.planUC.GetStatus(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logging.With(ctx, s.log).Error().Err(err).Msg("status query failed")
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}

		resp := jobStatusResponse{
			JobID:     job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		}
		code := http.StatusAccepted
		if job.Status.Terminal() {
			code = http.StatusOK
			if job.Result != nil {
				resp.Plan = job.Result.Plan
				resp.Error = job.Result.Error
			}
		}
		writeJSON(w, code, resp)
	}
}

// cancelHandler stops waiting for a job and best-effort aborts its execution.
// Cancelling an already-terminal job is a no-op.
func (s *Server) cancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID := chi.URLParam(r, "jobID")
		if _, err := uuid.Parse(jobID); err != nil {
			http.Error(w, "job id must be a UUID", http.StatusBadRequest)
			return
		}

		ctx = logging.WithJobID(ctx, jobID)
		job, err := s.planUC.GetStatus(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logging.With(ctx, s.log).Error().Err(err).Msg("cancel lookup failed")
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}

		if !job.Status.Terminal() {
			s.poller.Cancel(ctx, job.RequesterID)
		}
		writeJSON(w, http.StatusOK, struct {
			JobID  string              `json:"job_id"`
			Status model.PlanJobStatus `json:"status"`
		}{JobID: job.ID, Status: job.Status})
	}
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("X-Api-Key") != s.apiKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.Mint(w); err != nil {
			s.log.Error().Err(err).Msg("session mint failed")
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// adminJobsHandler reports job counts per status plus the live poll sessions.
func (s *Server) adminJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := s.jobs.CountByStatus(ctx, nil)
		if err != nil {
			s.log.Error().Err(err).Msg("count by status failed")
			http.Error(w, "Failed to count jobs", http.StatusInternalServerError)
			return
		}

		byStatus := make(map[string]int, len(counts))
		for st, n := range counts {
			byStatus[string(st)] = n
		}
		writeJSON(w, http.StatusOK, struct {
			JobsByStatus map[string]int `json:"jobs_by_status"`
		}{JobsByStatus: byStatus})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
