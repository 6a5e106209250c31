package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for search jobs.
type JobRepository interface {
	Create(ctx context.Context, job *SearchJob) error
	GetByID(ctx context.Context, jobID string) (*SearchJob, error)
	// Transition applies t atomically and reports whether this caller won it.
	Transition(ctx context.Context, jobID string, t Transition) (bool, error)
}

// AffiliateRepository persists discovered affiliates.
type AffiliateRepository interface {
	// Insert returns false without error when (owner, link) was already
	// stored by another job. A row stored earlier by a.JobID reports true.
	Insert(ctx context.Context, a *Affiliate) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Affiliate, error)
}

// SettingsRepository loads owner settings.
type SettingsRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
}

// CreditLedger tracks usage credits per owner and credit type.
type CreditLedger interface {
	Balance(ctx context.Context, ownerID, creditType string) (int, error)
	// Consume debits one credit for (refType, refID). A repeated reference is
	// a no-op that returns false.
	Consume(ctx context.Context, ownerID, creditType, refType, refID string) (bool, error)
	Grant(ctx context.Context, ownerID, creditType string, amount int) (int, error)
}

// ScheduleRepository lists and advances unattended discovery schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, s *Schedule) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
	Reschedule(ctx context.Context, scheduleID string, next time.Time) error
}
