package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"affiliatescout/internal/domain"
)

// Affiliates implements domain.AffiliateRepository.
type Affiliates struct{ *DB }

func (a *Affiliates) Insert(ctx context.Context, aff *domain.Affiliate) (bool, error) {
	if aff.ID == "" {
		aff.ID = uuid.NewString()
	}
	var meta any
	if aff.Metadata != nil {
		raw, err := json.Marshal(aff.Metadata)
		if err != nil {
			return false, err
		}
		meta = string(raw)
	}
	res, err := a.db.ExecContext(ctx, `
	INSERT INTO discovered_affiliates (id, owner_id, job_id, link, domain, platform, title, snippet,
		source_type, source_value, affiliate_score, host_country, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, link) DO NOTHING`,
		aff.ID, aff.OwnerID, aff.JobID, aff.Link, aff.Domain, string(aff.Platform), aff.Title, aff.Snippet,
		string(aff.SourceType), aff.SourceValue, aff.AffiliateScore, aff.HostCountry, meta, a.millis())
	if err != nil && !isUniqueViolation(err) {
		return false, fmt.Errorf("sqlite: insert affiliate: %w", err)
	}
	if err == nil {
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 1 {
			return true, nil
		}
	}
	if aff.JobID == "" {
		return false, nil
	}
	var id string
	err = a.db.QueryRowContext(ctx,
		`SELECT id FROM discovered_affiliates WHERE owner_id = ? AND link = ? AND job_id = ?`,
		aff.OwnerID, aff.Link, aff.JobID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: lookup affiliate: %w", err)
	}
	aff.ID = id
	return true, nil
}

func (a *Affiliates) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Affiliate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := a.db.QueryContext(ctx, `
	SELECT id, owner_id, job_id, link, domain, platform, title, snippet, source_type, source_value,
		affiliate_score, host_country, metadata, created_at
	FROM discovered_affiliates WHERE owner_id = ?
	ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Affiliate
	for rows.Next() {
		var (
			aff                  domain.Affiliate
			platform, sourceType string
			meta                 sql.NullString
			created              int64
		)
		if err := rows.Scan(&aff.ID, &aff.OwnerID, &aff.JobID, &aff.Link, &aff.Domain, &platform, &aff.Title,
			&aff.Snippet, &sourceType, &aff.SourceValue, &aff.AffiliateScore, &aff.HostCountry, &meta, &created); err != nil {
			return nil, err
		}
		aff.Platform = domain.Platform(platform)
		aff.SourceType = domain.SourceType(sourceType)
		aff.CreatedAt = fromMillis(created)
		if meta.Valid && meta.String != "" {
			aff.Metadata = &domain.ProfileMetadata{}
			if err := json.Unmarshal([]byte(meta.String), aff.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, aff)
	}
	return out, rows.Err()
}

// Settings implements domain.SettingsRepository.
type Settings struct{ *DB }

func (s *Settings) GetByOwner(ctx context.Context, ownerID string) (*domain.Settings, error) {
	var (
		out         domain.Settings
		competitors string
		updated     int64
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT owner_id, target_country, target_language, own_brand, competitors, updated_at
	FROM affiliate_settings WHERE owner_id = ?`, ownerID).
		Scan(&out.OwnerID, &out.TargetCountry, &out.TargetLanguage, &out.OwnBrand, &competitors, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(competitors), &out.Competitors); err != nil {
		return nil, err
	}
	out.UpdatedAt = fromMillis(updated)
	return &out, nil
}

func (s *Settings) Upsert(ctx context.Context, in *domain.Settings) error {
	competitors, err := marshalList(in.Competitors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO affiliate_settings (owner_id, target_country, target_language, own_brand, competitors, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id) DO UPDATE SET
		target_country = excluded.target_country,
		target_language = excluded.target_language,
		own_brand = excluded.own_brand,
		competitors = excluded.competitors,
		updated_at = excluded.updated_at`,
		in.OwnerID,
		strings.ToUpper(strings.TrimSpace(in.TargetCountry)),
		strings.TrimSpace(in.TargetLanguage),
		strings.TrimSpace(in.OwnBrand),
		competitors,
		s.millis())
	return err
}

// Credits implements domain.CreditLedger.
type Credits struct{ *DB }

func (c *Credits) Balance(ctx context.Context, ownerID, creditType string) (int, error) {
	var balance int
	err := c.db.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE owner_id = ? AND credit_type = ?`,
		ownerID, creditType).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// Consume runs inside an immediate transaction so the reference check, the
// balance check and the debit cannot interleave with another writer.
func (c *Credits) Consume(ctx context.Context, ownerID, creditType, refType, refID string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var seen int
	if err := tx.QueryRowContext(ctx, `
	SELECT COUNT(1) FROM credit_transactions WHERE ref_type = ? AND ref_id = ? AND credit_type = ?`,
		refType, refID, creditType).Scan(&seen); err != nil {
		return false, err
	}
	if seen > 0 {
		return false, nil
	}

	now := c.millis()
	res, err := tx.ExecContext(ctx, `
	UPDATE credit_balances SET balance = balance - 1, updated_at = ?
	WHERE owner_id = ? AND credit_type = ? AND balance > 0`, now, ownerID, creditType)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, domain.ErrQuotaExceeded
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO credit_transactions (owner_id, credit_type, amount, ref_type, ref_id, created_at)
	VALUES (?, ?, -1, ?, ?, ?)`, ownerID, creditType, refType, refID, now); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, tx.Commit()
}

func (c *Credits) Grant(ctx context.Context, ownerID, creditType string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive: %w", domain.ErrValidation)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := c.millis()
	var balance int
	if err := tx.QueryRowContext(ctx, `
	INSERT INTO credit_balances (owner_id, credit_type, balance, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (owner_id, credit_type) DO UPDATE SET
		balance = credit_balances.balance + excluded.balance,
		updated_at = excluded.updated_at
	RETURNING balance`, ownerID, creditType, amount, now).Scan(&balance); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO credit_transactions (owner_id, credit_type, amount, ref_type, ref_id, created_at)
	VALUES (?, ?, ?, 'grant', ?, ?)`, ownerID, creditType, amount, uuid.NewString(), now); err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

// Schedules implements domain.ScheduleRepository.
type Schedules struct{ *DB }

func (s *Schedules) Create(ctx context.Context, in *domain.Schedule) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	topics, _ := marshalList(in.Topics)
	competitors, _ := marshalList(in.Competitors)
	platforms, _ := marshalList(in.Platforms)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO discovery_schedules (id, owner_id, topics, competitors, platforms, affiliate_signals, interval_hours, next_run_at, enabled)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.OwnerID, topics, competitors, platforms, in.AffiliateSignals, in.IntervalHours, in.NextRunAt.UnixMilli(), in.Enabled)
	return err
}

func (s *Schedules) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, owner_id, topics, competitors, platforms, affiliate_signals, interval_hours, next_run_at, enabled
	FROM discovery_schedules
	WHERE enabled AND next_run_at <= ?
	ORDER BY next_run_at ASC LIMIT ?`, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		var (
			sch                            domain.Schedule
			topics, competitors, platforms string
			next                           int64
		)
		if err := rows.Scan(&sch.ID, &sch.OwnerID, &topics, &competitors, &platforms,
			&sch.AffiliateSignals, &sch.IntervalHours, &next, &sch.Enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topics), &sch.Topics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(competitors), &sch.Competitors); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(platforms), &sch.Platforms); err != nil {
			return nil, err
		}
		sch.NextRunAt = fromMillis(next)
		out = append(out, sch)
	}
	return out, rows.Err()
}

func (s *Schedules) Reschedule(ctx context.Context, scheduleID string, next time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE discovery_schedules SET next_run_at = ?, last_run_at = ? WHERE id = ?`,
		next.UnixMilli(), s.millis(), scheduleID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Tokens stores provider tokens, mirroring credentials.Store.
type Tokens struct{ *DB }

func (t *Tokens) Token(ctx context.Context, provider string) (string, error) {
	var token string
	err := t.db.QueryRowContext(ctx, `SELECT token FROM provider_tokens WHERE provider = ? AND token <> ''`, provider).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return strings.TrimSpace(token), err
}

func (t *Tokens) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New(provider + " token is required")
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, `
	INSERT INTO provider_tokens (provider, token, properties, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (provider) DO UPDATE SET token = excluded.token,
		properties = json_patch(provider_tokens.properties, excluded.properties), updated_at = excluded.updated_at`,
		provider, token, string(raw), t.millis())
	return err
}
