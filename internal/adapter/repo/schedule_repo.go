package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/sqlinline"
)

// ScheduleRepositoryPG implements domain.ScheduleRepository.
type ScheduleRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewScheduleRepository(sql infra.SQLExecutor) *ScheduleRepositoryPG {
	return &ScheduleRepositoryPG{sql: sql}
}

func (r *ScheduleRepositoryPG) Create(ctx context.Context, s *domain.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	topics, err := marshalList(s.Topics)
	if err != nil {
		return err
	}
	competitors, err := marshalList(s.Competitors)
	if err != nil {
		return err
	}
	platforms, err := marshalList(s.Platforms)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertSchedule,
		s.ID, s.OwnerID, topics, competitors, platforms, s.AffiliateSignals, s.IntervalHours, s.NextRunAt, s.Enabled)
	return err
}

func (r *ScheduleRepositoryPG) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListDueSchedules, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		var (
			s                              domain.Schedule
			topics, competitors, platforms []byte
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &topics, &competitors, &platforms,
			&s.AffiliateSignals, &s.IntervalHours, &s.NextRunAt, &s.Enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(topics, &s.Topics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(competitors, &s.Competitors); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(platforms, &s.Platforms); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepositoryPG) Reschedule(ctx context.Context, scheduleID string, next time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QRescheduleSchedule, scheduleID, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
