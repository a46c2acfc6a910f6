package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.PlanJobRepository = (*planJobRepo)(nil)

type planJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewPlanJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *planJobRepo {
	return &planJobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, requester_id, goal, group_id, status, result, created_at, updated_at`

func (r *planJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.PlanJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO plan_generation_jobs (id, requester_id, goal, group_id, status, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.RequesterID, job.Goal, job.GroupID, string(job.Status), resultJSON, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *planJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanJob, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM plan_generation_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *planJobRepo) FindActiveByRequester(ctx context.Context, tx repository.Tx, requesterID int64) (*model.PlanJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT `+jobColumns+`
FROM plan_generation_jobs
WHERE requester_id = $1 AND status IN ('pending', 'processing')
ORDER BY created_at
LIMIT 1;`, requesterID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *planJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.PlanJob, error) {
	var job *model.PlanJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM plan_generation_jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		// Claim the job inside the same transaction so no other worker can.
		fetched.Status = model.PlanJobStatusProcessing
		fetched.UpdatedAt = time.Now()
		const claimQuery = `
UPDATE plan_generation_jobs SET status = $2, updated_at = $3 WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, claimQuery, fetched.ID, string(fetched.Status), fetched.UpdatedAt); err != nil {
			return err
		}

		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateStatus writes status, result and updated_at in one statement so a
// reader never sees a terminal status without its result. Terminal rows are
// left untouched: terminal states are final.
func (r *planJobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PlanJobStatus, result *model.JobResult) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}
	const q = `
UPDATE plan_generation_jobs
SET status = $2, result = $3, updated_at = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed');`
	_, err = execSQL(ctx, r.pool, tx, q, id, string(status), resultJSON, time.Now())
	return err
}

func (r *planJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PlanJobStatus]int, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT status, COUNT(*) FROM plan_generation_jobs GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.PlanJobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.PlanJobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanJob(row pgx.Row) (*model.PlanJob, error) {
	var job model.PlanJob
	var statusStr string
	var resultJSON []byte
	err := row.Scan(
		&job.ID, &job.RequesterID, &job.Goal, &job.GroupID,
		&statusStr, &resultJSON, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.PlanJobStatus(statusStr)
	if len(resultJSON) > 0 {
		var result model.JobResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		job.Result = &result
	}
	return &job, nil
}

// marshalResult encodes the result for the jsonb column. An encode failure
// degrades to an error descriptor rather than losing the terminal status.
func marshalResult(result *model.JobResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		fallback := model.JobResult{Error: &model.ErrorDescriptor{
			Class:   model.FailureMalformedOutput,
			Message: "stored result was not serializable: " + err.Error(),
		}}
		return json.Marshal(fallback)
	}
	return data, nil
}
