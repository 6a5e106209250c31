package handlers

import (
	"net/http"
	"strconv"

	"affiliatescout/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (a *App) AffiliatesList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := a.Affiliates.ListByOwner(r.Context(), a.currentUserID(r), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Affiliate{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
