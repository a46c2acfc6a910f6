package model

import "time"

type PlanJobStatus string

const (
	PlanJobStatusPending    PlanJobStatus = "pending"
	PlanJobStatusProcessing PlanJobStatus = "processing"
	PlanJobStatusCompleted  PlanJobStatus = "completed"
	PlanJobStatusFailed     PlanJobStatus = "failed"
)

// Terminal reports whether no further status transitions may occur.
func (s PlanJobStatus) Terminal() bool {
	return s == PlanJobStatusCompleted || s == PlanJobStatusFailed
}

// FailureClass names why a job ended up failed.
type FailureClass string

const (
	FailureAdmissionConflict  FailureClass = "admission_conflict"
	FailureAuth               FailureClass = "auth_failure"
	FailureUpstreamHTTP       FailureClass = "upstream_http_error"
	FailureUpstreamTimeout    FailureClass = "upstream_timeout"
	FailureMalformedOutput    FailureClass = "malformed_output"
	FailureMissingCredentials FailureClass = "missing_credentials"
)

// PreviewLimit bounds how much upstream text an ErrorDescriptor may carry.
const PreviewLimit = 500

// ErrorDescriptor is the stored failure payload. Preview holds at most
// PreviewLimit runes of the offending upstream text, never the full payload.
type ErrorDescriptor struct {
	Class      FailureClass `json:"class"`
	Message    string       `json:"message"`
	StatusCode int          `json:"status_code,omitempty"`
	Preview    string       `json:"preview,omitempty"`
}

// BoundPreview truncates s to PreviewLimit runes.
func BoundPreview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return string(r[:PreviewLimit])
}

// JobResult carries exactly one of Plan or Error. It is present on a job
// iff the job reached a terminal status.
type JobResult struct {
	Plan  *StudyPlan       `json:"plan,omitempty"`
	Error *ErrorDescriptor `json:"error,omitempty"`
}

// PlanJob is one request to generate a study plan, tracked from submission
// to terminal outcome. ID is the only external handle; RequesterID is used
// for the one-active-job-per-requester invariant.
type PlanJob struct {
	ID          string
	RequesterID int64
	Goal        string
	GroupID     string
	Status      PlanJobStatus
	Result      *JobResult
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPlanJob(id string, requesterID int64, goal, groupID string) *PlanJob {
	now := time.Now()
	return &PlanJob{
		ID:          id,
		RequesterID: requesterID,
		Goal:        goal,
		GroupID:     groupID,
		Status:      PlanJobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
