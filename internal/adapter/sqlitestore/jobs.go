package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"affiliatescout/internal/domain"
)

// Jobs implements domain.JobRepository.
type Jobs struct{ *DB }

func (j *Jobs) Create(ctx context.Context, job *domain.SearchJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	topics, _ := marshalList(job.Topics)
	competitors, _ := marshalList(job.Competitors)
	platforms, _ := marshalList(job.Platforms)
	queries, _ := marshalList(job.Queries)
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return err
	}
	now := j.millis()
	_, err = j.db.ExecContext(ctx, `
	INSERT INTO search_jobs (id, owner_id, topics, competitors, platforms, queries, settings, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, topics, competitors, platforms, queries, string(settings), string(job.Status), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: insert search job: %w", err)
	}
	job.CreatedAt = fromMillis(now)
	job.UpdatedAt = job.CreatedAt
	return nil
}

func (j *Jobs) GetByID(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	row := j.db.QueryRowContext(ctx, `
	SELECT id, owner_id, topics, competitors, platforms, queries, settings, run_id, dataset_id, status,
		error_message, results_count, result_json, created_at, updated_at, processing_started_at, completed_at
	FROM search_jobs WHERE id = ?`, jobID)

	var (
		job                                             domain.SearchJob
		topics, competitors, platforms, queries, config string
		status                                          string
		result                                          sql.NullString
		created, updated                                int64
		started, completed                              sql.NullInt64
	)
	if err := row.Scan(&job.ID, &job.OwnerID, &topics, &competitors, &platforms, &queries, &config,
		&job.RunID, &job.DatasetID, &status, &job.ErrorMessage, &job.ResultsCount, &result,
		&created, &updated, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	for _, field := range []struct {
		raw  string
		dest any
	}{
		{topics, &job.Topics},
		{competitors, &job.Competitors},
		{platforms, &job.Platforms},
		{queries, &job.Queries},
		{config, &job.Settings},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("sqlite: decode search job %s: %w", jobID, err)
		}
	}
	job.Status = domain.JobStatus(status)
	if result.Valid {
		job.ResultJSON = []byte(result.String)
	}
	job.CreatedAt = fromMillis(created)
	job.UpdatedAt = fromMillis(updated)
	job.ProcessingStartedAt = fromNullMillis(started)
	job.CompletedAt = fromNullMillis(completed)
	return &job, nil
}

// Transition mirrors the PostgreSQL conditional update.
func (j *Jobs) Transition(ctx context.Context, jobID string, t domain.Transition) (bool, error) {
	now := j.millis()
	to := string(t.To)
	var processingAt, completedAt any
	if t.To == domain.JobStatusProcessing {
		processingAt = now
	}
	if t.To.Terminal() {
		completedAt = now
	}

	guard := "0"
	args := []any{to, t.RunID, t.DatasetID, t.ErrorMessage, t.ResultsCount, nullableText(t.ResultJSON), processingAt, completedAt, now, jobID}
	if from := t.FromStrings(); len(from) > 0 {
		guard = "status IN (" + placeholders(len(from)) + ")"
		for _, s := range from {
			args = append(args, s)
		}
	}
	if t.StaleBefore != nil {
		guard += " OR (status = 'processing' AND processing_started_at < ?)"
		args = append(args, t.StaleBefore.UnixMilli())
	}

	res, err := j.db.ExecContext(ctx, `
	UPDATE search_jobs SET
		status = ?,
		run_id = COALESCE(NULLIF(?, ''), run_id),
		dataset_id = COALESCE(NULLIF(?, ''), dataset_id),
		error_message = COALESCE(NULLIF(?, ''), error_message),
		results_count = COALESCE(?, results_count),
		result_json = COALESCE(?, result_json),
		processing_started_at = COALESCE(?, processing_started_at),
		completed_at = COALESCE(?, completed_at),
		updated_at = ?
	WHERE id = ? AND (`+guard+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: transition search job %s to %s: %w", jobID, t.To, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	return string(raw), err
}
