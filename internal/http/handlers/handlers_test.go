package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"affiliatescout/internal/discovery"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/middleware"
)

type stubDiscovery struct {
	startReq  discovery.StartRequest
	startErr  error
	statusRes discovery.StatusResult
	statusErr error
	owner     string
}

func (s *stubDiscovery) Start(_ context.Context, ownerID string, req discovery.StartRequest) (discovery.StartResult, error) {
	s.owner = ownerID
	s.startReq = req
	if s.startErr != nil {
		return discovery.StartResult{}, s.startErr
	}
	return discovery.StartResult{JobID: "job-1", Status: domain.JobStatusRunning}, nil
}

func (s *stubDiscovery) Status(_ context.Context, ownerID, jobID string) (discovery.StatusResult, error) {
	s.owner = ownerID
	if s.statusErr != nil {
		return discovery.StatusResult{}, s.statusErr
	}
	res := s.statusRes
	res.JobID = jobID
	return res, nil
}

type stubSettings struct {
	stored *domain.Settings
	err    error
}

func (s *stubSettings) GetByOwner(context.Context, string) (*domain.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.stored == nil {
		return nil, domain.ErrNotFound
	}
	return s.stored, nil
}

func (s *stubSettings) Upsert(_ context.Context, in *domain.Settings) error {
	s.stored = in
	return nil
}

type stubAffiliates struct {
	limit, offset int
	items         []domain.Affiliate
}

func (s *stubAffiliates) Insert(context.Context, *domain.Affiliate) (bool, error) { return true, nil }

func (s *stubAffiliates) ListByOwner(_ context.Context, _ string, limit, offset int) ([]domain.Affiliate, error) {
	s.limit, s.offset = limit, offset
	return s.items, nil
}

type stubSchedules struct {
	created []domain.Schedule
}

func (s *stubSchedules) Create(_ context.Context, in *domain.Schedule) error {
	in.ID = fmt.Sprintf("sch-%d", len(s.created)+1)
	s.created = append(s.created, *in)
	return nil
}

func (s *stubSchedules) ListDue(context.Context, time.Time, int) ([]domain.Schedule, error) {
	return nil, nil
}

func (s *stubSchedules) Reschedule(context.Context, string, time.Time) error { return nil }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp() (*App, *stubDiscovery) {
	disc := &stubDiscovery{}
	return &App{
		Discovery:  disc,
		Affiliates: &stubAffiliates{},
		Settings:   &stubSettings{},
		Schedules:  &stubSchedules{},
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return fixedNow },
	}, disc
}

func authed(req *http.Request, owner string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), owner))
}

func withJobID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestDiscoveryStartAccepted(t *testing.T) {
	app, disc := newTestApp()
	body := `{"topics":["Hundefutter"],"platforms":["web","youtube"],"affiliate_signals":false}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/discovery/jobs", strings.NewReader(body)), "owner-1")
	rr := httptest.NewRecorder()

	app.DiscoveryStart(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d, want 202", rr.Code)
	}
	if disc.owner != "owner-1" || len(disc.startReq.Topics) != 1 || len(disc.startReq.Platforms) != 2 {
		t.Fatalf("unexpected start call: %q %+v", disc.owner, disc.startReq)
	}
	if disc.startReq.AffiliateSignals == nil || *disc.startReq.AffiliateSignals {
		t.Fatalf("expected affiliate_signals=false to be forwarded")
	}
	var res discovery.StartResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.JobID != "job-1" || res.Status != domain.JobStatusRunning {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestDiscoveryStartRejectsBadPayload(t *testing.T) {
	app, _ := newTestApp()
	for _, body := range []string{`{`, `{"topics":"one"}`, `{"unknown":true}`} {
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/discovery/jobs", strings.NewReader(body)), "owner-1")
		rr := httptest.NewRecorder()
		app.DiscoveryStart(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestDiscoveryErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{err: fmt.Errorf("topics: %w", domain.ErrValidation), wantCode: http.StatusBadRequest, wantBody: "validation"},
		{err: domain.ErrConfiguration, wantCode: http.StatusServiceUnavailable, wantBody: "not_configured"},
		{err: domain.ErrQuotaExceeded, wantCode: http.StatusPaymentRequired, wantBody: "quota_exceeded"},
		{err: fmt.Errorf("submit search: %w", domain.ErrProviderFailure), wantCode: http.StatusBadGateway, wantBody: "provider_failure"},
		{err: domain.ErrNotFound, wantCode: http.StatusNotFound, wantBody: "not_found"},
		{err: errors.New("connection reset by peer"), wantCode: http.StatusInternalServerError, wantBody: "internal"},
	}
	for _, tc := range tests {
		app, disc := newTestApp()
		disc.startErr = tc.err
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/discovery/jobs", strings.NewReader(`{"topics":["a"]}`)), "owner-1")
		rr := httptest.NewRecorder()
		app.DiscoveryStart(rr, req)
		if rr.Code != tc.wantCode {
			t.Fatalf("%v: got %d, want %d", tc.err, rr.Code, tc.wantCode)
		}
		raw := rr.Body.String()
		if code := errorCode(t, strings.NewReader(raw)); code != tc.wantBody {
			t.Fatalf("%v: got code %q, want %q", tc.err, code, tc.wantBody)
		}
		if tc.wantBody == "internal" && strings.Contains(raw, "connection reset") {
			t.Fatalf("internal error text leaked: %s", raw)
		}
	}
}

func TestDiscoveryStatus(t *testing.T) {
	app, disc := newTestApp()
	disc.statusRes = discovery.StatusResult{
		Status:       domain.JobStatusDone,
		Message:      "search finished",
		ResultsCount: 1,
		Results:      []domain.Affiliate{{Link: "https://hundeblog.de/", Domain: "hundeblog.de", Platform: domain.PlatformWeb}},
	}
	req := withJobID(authed(httptest.NewRequest(http.MethodGet, "/v1/discovery/jobs/job-9", nil), "owner-2"), "job-9")
	rr := httptest.NewRecorder()

	app.DiscoveryStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want 200", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["job_id"] != "job-9" || payload["status"] != "done" || disc.owner != "owner-2" {
		t.Fatalf("unexpected payload %v", payload)
	}
	results, _ := payload["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", payload["results"])
	}
}

func TestDiscoveryStatusMissingJobID(t *testing.T) {
	app, _ := newTestApp()
	req := withJobID(httptest.NewRequest(http.MethodGet, "/v1/discovery/jobs/", nil), " ")
	rr := httptest.NewRecorder()
	app.DiscoveryStatus(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDiscoveryExport(t *testing.T) {
	app, disc := newTestApp()
	disc.statusRes = discovery.StatusResult{
		Status: domain.JobStatusDone,
		Results: []domain.Affiliate{
			{Link: "https://hundeblog.de/test", Domain: "hundeblog.de", Platform: domain.PlatformWeb, Title: "Test, mit Komma", SourceType: domain.SourceKeyword, SourceValue: "Hundefutter", AffiliateScore: 2},
			{Link: "https://www.youtube.com/@bello", Domain: "youtube.com", Platform: domain.PlatformYouTube, Metadata: &domain.ProfileMetadata{Handle: "bello", Followers: 1200}},
		},
	}
	req := withJobID(authed(httptest.NewRequest(http.MethodGet, "/v1/discovery/jobs/job-3/export", nil), "owner-1"), "job-3")
	rr := httptest.NewRecorder()

	app.DiscoveryExport(rr, req)

	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("unexpected response %d %v", rr.Code, rr.Header())
	}
	data := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "results.json" || zr.File[1].Name != "results.csv" {
		t.Fatalf("unexpected entries %v", zr.File)
	}

	f, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][3] != "Test, mit Komma" || rows[2][8] != "bello" || rows[2][9] != "1200" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestDiscoveryExportRequiresDoneJob(t *testing.T) {
	app, disc := newTestApp()
	disc.statusRes = discovery.StatusResult{Status: domain.JobStatusRunning}
	req := withJobID(authed(httptest.NewRequest(http.MethodGet, "/", nil), "owner-1"), "job-3")
	rr := httptest.NewRecorder()
	app.DiscoveryExport(rr, req)
	if rr.Code != http.StatusConflict || errorCode(t, rr.Body) != "not_ready" {
		t.Fatalf("expected 409 not_ready, got %d", rr.Code)
	}
}

func TestSettingsGetSuggestsFromLocale(t *testing.T) {
	app, _ := newTestApp()
	var captured *http.Request
	handler := middleware.Locale(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		app.SettingsGet(w, r)
	}))
	req := authed(httptest.NewRequest(http.MethodGet, "/v1/settings", nil), "owner-1")
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if captured == nil || rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var payload settingsResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Suggested || payload.TargetLanguage != "de" || payload.TargetCountry != "AT" {
		t.Fatalf("unexpected suggestion %+v", payload)
	}
}

func TestSettingsPutNormalizes(t *testing.T) {
	app, _ := newTestApp()
	store := app.Settings.(*stubSettings)
	body := `{"target_country":"de","target_language":"German","own_brand":" bedrop.de ","competitors":["Fressnapf","fressnapf "," ","Zooplus"]}`
	req := authed(httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(body)), "owner-1")
	rr := httptest.NewRecorder()

	app.SettingsPut(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	got := store.stored
	if got == nil || got.OwnerID != "owner-1" || got.TargetCountry != "DE" || got.TargetLanguage != "de" || got.OwnBrand != "bedrop.de" {
		t.Fatalf("unexpected stored settings %+v", got)
	}
	if len(got.Competitors) != 2 || got.Competitors[0] != "Fressnapf" || got.Competitors[1] != "Zooplus" {
		t.Fatalf("unexpected competitors %v", got.Competitors)
	}
	if !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected updated_at to use the clock, got %v", got.UpdatedAt)
	}
}

func TestSettingsPutValidation(t *testing.T) {
	app, _ := newTestApp()
	for _, body := range []string{`{"target_country":"DEU"}`, `{"target_language":"klingon"}`} {
		req := authed(httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(body)), "owner-1")
		rr := httptest.NewRecorder()
		app.SettingsPut(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestAffiliatesListPaging(t *testing.T) {
	app, _ := newTestApp()
	store := app.Affiliates.(*stubAffiliates)
	req := authed(httptest.NewRequest(http.MethodGet, "/v1/affiliates?limit=1000&offset=-4", nil), "owner-1")
	rr := httptest.NewRecorder()

	app.AffiliatesList(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rr.Code)
	}
	if store.limit != defaultPageSize || store.offset != 0 {
		t.Fatalf("expected clamped paging, got limit=%d offset=%d", store.limit, store.offset)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rr.Body.String())
	}
}

func TestSchedulesCreate(t *testing.T) {
	app, _ := newTestApp()
	store := app.Schedules.(*stubSchedules)
	body := `{"topics":[" Hundefutter "],"platforms":["web","tiktok"],"interval_hours":24}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/schedules", strings.NewReader(body)), "owner-1")
	rr := httptest.NewRecorder()

	app.SchedulesCreate(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status code: got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one schedule, got %d", len(store.created))
	}
	s := store.created[0]
	if s.OwnerID != "owner-1" || s.Topics[0] != "Hundefutter" || !s.AffiliateSignals || !s.NextRunAt.Equal(fixedNow) || !s.Enabled {
		t.Fatalf("unexpected schedule %+v", s)
	}
	if len(s.Platforms) != 2 || s.Platforms[1] != domain.PlatformTikTok {
		t.Fatalf("unexpected platforms %v", s.Platforms)
	}
}

func TestSchedulesCreateValidation(t *testing.T) {
	app, _ := newTestApp()
	for _, body := range []string{
		`{"topics":["a"],"platforms":["web"],"interval_hours":0}`,
		`{"topics":[" "],"platforms":["web"],"interval_hours":6}`,
		`{"topics":["a"],"platforms":[],"interval_hours":6}`,
		`{"topics":["a"],"platforms":["myspace"],"interval_hours":6}`,
	} {
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/schedules", strings.NewReader(body)), "owner-1")
		rr := httptest.NewRecorder()
		app.SchedulesCreate(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp()
	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	app.Ping = func(context.Context) error { return errors.New("down") }
	rr = httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
