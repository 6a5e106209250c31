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

// AffiliateRepositoryPG implements domain.AffiliateRepository.
type AffiliateRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAffiliateRepository(sql infra.SQLExecutor) *AffiliateRepositoryPG {
	return &AffiliateRepositoryPG{sql: sql}
}

// Insert stores a; an existing (owner, link) pair is left untouched. A pair
// that a.JobID stored earlier still counts as inserted and a.ID is set to
// the stored row, so a reclaimed job reports the links of its first attempt.
func (r *AffiliateRepositoryPG) Insert(ctx context.Context, a *domain.Affiliate) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var meta []byte
	if a.Metadata != nil {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return false, err
		}
		meta = raw
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QInsertAffiliate,
		a.ID,
		a.OwnerID,
		a.JobID,
		a.Link,
		a.Domain,
		string(a.Platform),
		a.Title,
		a.Snippet,
		string(a.SourceType),
		a.SourceValue,
		a.AffiliateScore,
		a.HostCountry,
		meta,
	)
	if err != nil && !infra.IsUniqueViolation(err) {
		return false, fmt.Errorf("insert affiliate: %w", err)
	}
	if err == nil && tag.RowsAffected() == 1 {
		return true, nil
	}
	return r.storedByJob(ctx, a)
}

func (r *AffiliateRepositoryPG) storedByJob(ctx context.Context, a *domain.Affiliate) (bool, error) {
	if a.JobID == "" {
		return false, nil
	}
	var id string
	err := r.sql.QueryRow(ctx, sqlinline.QSelectAffiliateIDForJob, a.OwnerID, a.Link, a.JobID).Scan(&id)
	if infra.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup affiliate: %w", err)
	}
	a.ID = id
	return true, nil
}

// ListByOwner returns affiliates newest first.
func (r *AffiliateRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Affiliate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListAffiliatesByOwner, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Affiliate
	for rows.Next() {
		var (
			a          domain.Affiliate
			platform   string
			sourceType string
			meta       []byte
		)
		if err := rows.Scan(
			&a.ID,
			&a.OwnerID,
			&a.JobID,
			&a.Link,
			&a.Domain,
			&platform,
			&a.Title,
			&a.Snippet,
			&sourceType,
			&a.SourceValue,
			&a.AffiliateScore,
			&a.HostCountry,
			&meta,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.Platform = domain.Platform(platform)
		a.SourceType = domain.SourceType(sourceType)
		if len(meta) > 0 {
			a.Metadata = &domain.ProfileMetadata{}
			if err := json.Unmarshal(meta, a.Metadata); err != nil {
				return nil, fmt.Errorf("decode affiliate %s metadata: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
