package handlers

import (
	"net/http"
	"strings"
	"time"

	"affiliatescout/internal/domain"
)

const maxIntervalHours = 24 * 30

type scheduleRequest struct {
	Topics           []string `json:"topics"`
	Competitors      []string `json:"competitors"`
	Platforms        []string `json:"platforms"`
	AffiliateSignals *bool    `json:"affiliate_signals"`
	IntervalHours    int      `json:"interval_hours"`
}

type scheduleResponse struct {
	ID            string    `json:"id"`
	IntervalHours int       `json:"interval_hours"`
	NextRunAt     time.Time `json:"next_run_at"`
}

// SchedulesCreate registers an unattended discovery run. The first run is due
// immediately; the worker advances it by the interval afterwards.
func (a *App) SchedulesCreate(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.IntervalHours <= 0 || req.IntervalHours > maxIntervalHours {
		a.error(w, http.StatusBadRequest, "validation", "interval_hours must be between 1 and 720")
		return
	}
	topics := trimAll(req.Topics)
	competitors := trimAll(req.Competitors)
	if len(topics) == 0 && len(competitors) == 0 {
		a.error(w, http.StatusBadRequest, "validation", "at least one topic or competitor is required")
		return
	}
	var platforms []domain.Platform
	for _, raw := range req.Platforms {
		p, err := domain.ParsePlatform(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		a.error(w, http.StatusBadRequest, "validation", "at least one platform is required")
		return
	}
	signals := true
	if req.AffiliateSignals != nil {
		signals = *req.AffiliateSignals
	}

	s := &domain.Schedule{
		OwnerID:          a.currentUserID(r),
		Topics:           topics,
		Competitors:      competitors,
		Platforms:        platforms,
		AffiliateSignals: signals,
		IntervalHours:    req.IntervalHours,
		NextRunAt:        a.now(),
		Enabled:          true,
	}
	if err := a.Schedules.Create(r.Context(), s); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, scheduleResponse{ID: s.ID, IntervalHours: s.IntervalHours, NextRunAt: s.NextRunAt})
}

func trimAll(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
