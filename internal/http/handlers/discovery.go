package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"affiliatescout/internal/discovery"
)

func (a *App) DiscoveryStart(w http.ResponseWriter, r *http.Request) {
	var req discovery.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	res, err := a.Discovery.Start(r.Context(), a.currentUserID(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func (a *App) DiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id is required")
		return
	}
	res, err := a.Discovery.Status(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
