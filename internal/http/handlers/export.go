package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"affiliatescout/internal/domain"
	"affiliatescout/pkg/zip"
)

var csvHeader = []string{
	"link", "domain", "platform", "title", "discovery_method", "discovery_value",
	"affiliate_score", "host_country", "handle", "followers", "views",
}

// DiscoveryExport streams the results of a done job as a zip holding
// results.json and results.csv.
func (a *App) DiscoveryExport(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	res, err := a.Discovery.Status(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if res.Status != domain.JobStatusDone {
		a.error(w, http.StatusConflict, "not_ready", "job has no results to export")
		return
	}

	jsonData, err := json.MarshalIndent(res.Results, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	csvData, err := resultsCSV(res.Results)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	archive, err := zip.ArchiveEntries([]zip.Entry{
		{Filename: "results.json", Data: jsonData},
		{Filename: "results.csv", Data: csvData},
	}, a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="affiliates-%s.zip"`, jobID))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func resultsCSV(results []domain.Affiliate) ([]byte, error) {
	buf := &bytes.Buffer{}
	cw := csv.NewWriter(buf)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, item := range results {
		var handle, followers, views string
		if item.Metadata != nil {
			handle = item.Metadata.Handle
			followers = strconv.FormatInt(item.Metadata.Followers, 10)
			views = strconv.FormatInt(item.Metadata.Views, 10)
		}
		row := []string{
			item.Link, item.Domain, string(item.Platform), item.Title,
			string(item.SourceType), item.SourceValue, strconv.Itoa(item.AffiliateScore),
			item.HostCountry, handle, followers, views,
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
