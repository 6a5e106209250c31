// Package credentials reads and stores provider tokens kept in the database.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"affiliatescout/internal/infra"
	"affiliatescout/internal/sqlinline"
)

const (
	ProviderApify = "apify"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) ApifyToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderApify)
}

// Token returns the stored token of provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetApifyToken(ctx context.Context, token string, props map[string]any) error {
	return s.SetToken(ctx, ProviderApify, token, props)
}

// SetToken upserts the token of provider.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New(provider + " token is required")
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderToken, provider, token, raw)
	return err
}
