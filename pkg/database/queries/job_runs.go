package queries

import (
	"context"
	"database/sql"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type JobRunRepository struct {
	db *sql.DB
}

var _ store.JobRunStore = (*JobRunRepository)(nil)

func NewJobRunRepository(db *sql.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

func (r *JobRunRepository) Record(ctx context.Context, run *models.JobRun) error {
	query := `
		INSERT INTO job_runs (job, started_at, finished_at, processed, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		run.Job, run.StartedAt, run.FinishedAt, run.Processed, run.Failed, run.Error,
	).Scan(&run.ID)
	return store.WrapWrite("insert", "job_run", run.Job, err)
}

func (r *JobRunRepository) Recent(ctx context.Context, job string, limit int) ([]*models.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job, started_at, finished_at, processed, failed, error
		FROM job_runs
		WHERE job = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, job, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.JobRun
	for rows.Next() {
		var run models.JobRun
		if err := rows.Scan(&run.ID, &run.Job, &run.StartedAt, &run.FinishedAt, &run.Processed, &run.Failed, &run.Error); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
