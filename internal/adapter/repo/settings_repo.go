package repo

import (
	"context"
	"encoding/json"
	"strings"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/sqlinline"
)

// SettingsRepositoryPG implements domain.SettingsRepository.
type SettingsRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewSettingsRepository(sql infra.SQLExecutor) *SettingsRepositoryPG {
	return &SettingsRepositoryPG{sql: sql}
}

func (r *SettingsRepositoryPG) GetByOwner(ctx context.Context, ownerID string) (*domain.Settings, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectSettingsByOwner, ownerID)
	var (
		s           domain.Settings
		competitors []byte
	)
	if err := row.Scan(&s.OwnerID, &s.TargetCountry, &s.TargetLanguage, &s.OwnBrand, &competitors, &s.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(competitors) > 0 {
		if err := json.Unmarshal(competitors, &s.Competitors); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *SettingsRepositoryPG) Upsert(ctx context.Context, s *domain.Settings) error {
	competitors, err := marshalList(s.Competitors)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QUpsertSettings,
		s.OwnerID,
		strings.ToUpper(strings.TrimSpace(s.TargetCountry)),
		strings.TrimSpace(s.TargetLanguage),
		strings.TrimSpace(s.OwnBrand),
		competitors,
	)
	return err
}
