package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"affiliatescout/internal/discovery"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/middleware"
)

// Discovery is the job surface the handlers drive.
type Discovery interface {
	Start(ctx context.Context, ownerID string, req discovery.StartRequest) (discovery.StartResult, error)
	Status(ctx context.Context, ownerID, jobID string) (discovery.StatusResult, error)
}

type App struct {
	Discovery  Discovery
	Affiliates domain.AffiliateRepository
	Settings   domain.SettingsRepository
	Schedules  domain.ScheduleRepository
	Ping       func(ctx context.Context) error
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps domain errors onto stable HTTP responses. Unknown errors are
// logged and reported as internal without leaking their text.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "duplicate", "operation already applied")
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		a.error(w, http.StatusServiceUnavailable, "not_configured", "search provider is not configured")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusPaymentRequired, "quota_exceeded", "no usage credits left")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", "search provider rejected the job")
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
