package handlers

import (
	"errors"
	"net/http"
	"strings"

	"affiliatescout/internal/brand"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/locale"
	"affiliatescout/internal/middleware"
)

type settingsPayload struct {
	TargetCountry  string   `json:"target_country"`
	TargetLanguage string   `json:"target_language"`
	OwnBrand       string   `json:"own_brand"`
	Competitors    []string `json:"competitors"`
}

type settingsResponse struct {
	settingsPayload
	Suggested bool `json:"suggested"`
}

// SettingsGet returns the stored settings or, when none exist yet, a
// suggestion derived from the request locale and country.
func (a *App) SettingsGet(w http.ResponseWriter, r *http.Request) {
	s, err := a.Settings.GetByOwner(r.Context(), a.currentUserID(r))
	if errors.Is(err, domain.ErrNotFound) {
		a.json(w, http.StatusOK, settingsResponse{
			settingsPayload: settingsPayload{
				TargetCountry:  middleware.CountryFromContext(r.Context()),
				TargetLanguage: middleware.LocaleFromContext(r.Context()),
				Competitors:    []string{},
			},
			Suggested: true,
		})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	competitors := s.Competitors
	if competitors == nil {
		competitors = []string{}
	}
	a.json(w, http.StatusOK, settingsResponse{settingsPayload: settingsPayload{
		TargetCountry:  s.TargetCountry,
		TargetLanguage: s.TargetLanguage,
		OwnBrand:       s.OwnBrand,
		Competitors:    competitors,
	}})
}

func (a *App) SettingsPut(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	country := strings.ToUpper(strings.TrimSpace(req.TargetCountry))
	if country != "" && len(country) != 2 {
		a.error(w, http.StatusBadRequest, "validation", "target_country must be an ISO 3166-1 alpha-2 code")
		return
	}
	language := strings.TrimSpace(req.TargetLanguage)
	if language != "" {
		code, ok := locale.Code(language)
		if !ok {
			a.error(w, http.StatusBadRequest, "validation", "target_language is not supported")
			return
		}
		language = code
	}
	var competitors []string
	seen := map[string]struct{}{}
	for _, c := range req.Competitors {
		c = strings.TrimSpace(c)
		key := brand.Fold(c)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		competitors = append(competitors, c)
	}

	s := &domain.Settings{
		OwnerID:        a.currentUserID(r),
		TargetCountry:  country,
		TargetLanguage: language,
		OwnBrand:       strings.TrimSpace(req.OwnBrand),
		Competitors:    competitors,
		UpdatedAt:      a.now(),
	}
	if err := a.Settings.Upsert(r.Context(), s); err != nil {
		a.fail(w, r, err)
		return
	}
	if competitors == nil {
		competitors = []string{}
	}
	a.json(w, http.StatusOK, settingsResponse{settingsPayload: settingsPayload{
		TargetCountry:  s.TargetCountry,
		TargetLanguage: s.TargetLanguage,
		OwnBrand:       s.OwnBrand,
		Competitors:    competitors,
	}})
}
