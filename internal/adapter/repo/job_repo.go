package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record. An empty ID is assigned.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.SearchJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertSearchJob,
		job.ID,
		job.OwnerID,
		payload.topics,
		payload.competitors,
		payload.platforms,
		payload.queries,
		payload.settings,
		string(job.Status),
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert search job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectSearchJobByID, jobID)
	var (
		job     domain.SearchJob
		payload jobPayload
		status  string
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&payload.topics,
		&payload.competitors,
		&payload.platforms,
		&payload.queries,
		&payload.settings,
		&job.RunID,
		&job.DatasetID,
		&status,
		&job.ErrorMessage,
		&job.ResultsCount,
		&job.ResultJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ProcessingStartedAt,
		&job.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := payload.decode(&job); err != nil {
		return nil, fmt.Errorf("decode search job %s: %w", jobID, err)
	}
	return &job, nil
}

// Transition applies t with a single conditional update.
func (r *JobRepositoryPG) Transition(ctx context.Context, jobID string, t domain.Transition) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QTransitionSearchJob,
		jobID,
		string(t.To),
		t.RunID,
		t.DatasetID,
		t.ErrorMessage,
		t.ResultsCount,
		nullableBytes(t.ResultJSON),
		t.FromStrings(),
		t.StaleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("transition search job %s to %s: %w", jobID, t.To, err)
	}
	return tag.RowsAffected() == 1, nil
}

type jobPayload struct {
	topics      []byte
	competitors []byte
	platforms   []byte
	queries     []byte
	settings    []byte
}

func encodeJob(job *domain.SearchJob) (jobPayload, error) {
	var (
		p   jobPayload
		err error
	)
	if p.topics, err = marshalList(job.Topics); err != nil {
		return p, err
	}
	if p.competitors, err = marshalList(job.Competitors); err != nil {
		return p, err
	}
	if p.platforms, err = marshalList(job.Platforms); err != nil {
		return p, err
	}
	if p.queries, err = marshalList(job.Queries); err != nil {
		return p, err
	}
	if p.settings, err = json.Marshal(job.Settings); err != nil {
		return p, err
	}
	return p, nil
}

func (p jobPayload) decode(job *domain.SearchJob) error {
	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{p.topics, &job.Topics},
		{p.competitors, &job.Competitors},
		{p.platforms, &job.Platforms},
		{p.queries, &job.Queries},
		{p.settings, &job.Settings},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return err
		}
	}
	return nil
}

// marshalList encodes a nil slice as [] rather than null.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
