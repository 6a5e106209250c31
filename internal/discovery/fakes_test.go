package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/providers/apify"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memJobs struct {
	mu    sync.Mutex
	clock *clock
	jobs  map[string]domain.SearchJob
}

func (m *memJobs) Create(_ context.Context, job *domain.SearchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = uuid.NewString()
	job.CreatedAt = m.clock.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*domain.SearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (m *memJobs) Transition(_ context.Context, id string, t domain.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, from := range t.From {
		if job.Status == from {
			allowed = true
		}
	}
	if t.StaleBefore != nil && job.Status == domain.JobStatusProcessing &&
		job.ProcessingStartedAt != nil && job.ProcessingStartedAt.Before(*t.StaleBefore) {
		allowed = true
	}
	if !allowed {
		return false, nil
	}
	now := m.clock.Now()
	job.Status = t.To
	if t.RunID != "" {
		job.RunID = t.RunID
	}
	if t.DatasetID != "" {
		job.DatasetID = t.DatasetID
	}
	if t.ErrorMessage != "" {
		job.ErrorMessage = t.ErrorMessage
	}
	if t.ResultsCount != nil {
		job.ResultsCount = *t.ResultsCount
	}
	if t.ResultJSON != nil {
		job.ResultJSON = t.ResultJSON
	}
	if t.To == domain.JobStatusProcessing {
		job.ProcessingStartedAt = &now
	}
	if t.To.Terminal() {
		job.CompletedAt = &now
	}
	job.UpdatedAt = now
	m.jobs[id] = job
	return true, nil
}

func (m *memJobs) set(id string, fn func(*domain.SearchJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	fn(&job)
	m.jobs[id] = job
}

type memAffiliates struct {
	mu   sync.Mutex
	rows []domain.Affiliate
}

func (m *memAffiliates) Insert(_ context.Context, a *domain.Affiliate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OwnerID == a.OwnerID && r.Link == a.Link {
			if a.JobID != "" && r.JobID == a.JobID {
				a.ID = r.ID
				return true, nil
			}
			return false, nil
		}
	}
	a.ID = uuid.NewString()
	m.rows = append(m.rows, *a)
	return true, nil
}

func (m *memAffiliates) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]domain.Affiliate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Affiliate
	for _, r := range m.rows {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memSettings map[string]domain.Settings

func (m memSettings) GetByOwner(_ context.Context, ownerID string) (*domain.Settings, error) {
	s, ok := m[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m memSettings) Upsert(_ context.Context, s *domain.Settings) error {
	m[s.OwnerID] = *s
	return nil
}

type memCredits struct {
	mu       sync.Mutex
	balance  map[string]int
	consumed map[string]int
}

func newCredits(owner string, n int) *memCredits {
	return &memCredits{balance: map[string]int{owner: n}, consumed: map[string]int{}}
}

func (m *memCredits) Balance(_ context.Context, ownerID, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance[ownerID], nil
}

func (m *memCredits) Consume(_ context.Context, ownerID, _, _, refID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumed[refID] > 0 {
		return false, nil
	}
	if m.balance[ownerID] < 1 {
		return false, domain.ErrQuotaExceeded
	}
	m.balance[ownerID]--
	m.consumed[refID]++
	return true, nil
}

func (m *memCredits) Grant(_ context.Context, ownerID, _ string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance[ownerID] += amount
	return m.balance[ownerID], nil
}

type fakeProvider struct {
	mu         sync.Mutex
	noToken    bool
	submitErr  error
	submitted  []apify.SearchRequest
	phase      apify.Phase
	statusErr  error
	statusCall int
}

func (f *fakeProvider) HasCredentials() bool { return !f.noToken }

func (f *fakeProvider) Submit(_ context.Context, req apify.SearchRequest) (apify.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return apify.Run{}, f.submitErr
	}
	return apify.Run{ID: "run-1", DatasetID: "ds-1", Phase: apify.PhaseRunning}, nil
}

func (f *fakeProvider) Status(_ context.Context, runID string) (apify.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCall++
	if f.statusErr != nil {
		return apify.Run{}, f.statusErr
	}
	return apify.Run{ID: runID, DatasetID: "ds-1", Phase: f.phase}, nil
}

func (f *fakeProvider) setPhase(p apify.Phase) {
	f.mu.Lock()
	f.phase = p
	f.mu.Unlock()
}

type fakeFetcher struct {
	mu      sync.Mutex
	results []domain.RawResult
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]domain.RawResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, f.err
}

type passEnricher struct{}

func (passEnricher) Enrich(_ context.Context, raw []domain.RawResult) []domain.EnrichedResult {
	out := make([]domain.EnrichedResult, len(raw))
	for i, r := range raw {
		state := domain.EnrichmentNotApplicable
		if r.Platform.Social() {
			state = domain.EnrichmentMissing
		}
		out[i] = domain.EnrichedResult{RawResult: r, Enrichment: domain.Enrichment{State: state}}
	}
	return out
}

var errTransport = errors.New("connection reset")
