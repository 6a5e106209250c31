package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/filter"
	"affiliatescout/internal/providers/apify"
)

const owner = "owner-1"

var web = []string{"web"}

type fixture struct {
	clock      *clock
	jobs       *memJobs
	affiliates *memAffiliates
	settings   memSettings
	credits    *memCredits
	provider   *fakeProvider
	fetcher    *fakeFetcher
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		clock:      c,
		jobs:       &memJobs{clock: c, jobs: map[string]domain.SearchJob{}},
		affiliates: &memAffiliates{},
		settings: memSettings{owner: {
			OwnerID: owner, TargetCountry: "DE", TargetLanguage: "German", OwnBrand: "bedrop.de",
		}},
		credits:  newCredits(owner, 3),
		provider: &fakeProvider{phase: apify.PhaseRunning},
		fetcher: &fakeFetcher{results: []domain.RawResult{
			{Title: "Hundenapf im Vergleich", URL: "https://hundeblog.de/napf", Domain: "hundeblog.de", Platform: domain.PlatformWeb, Query: "hundenapf"},
			{Title: "Napf kaufen", URL: "https://www.amazon.de/dp/123", Domain: "amazon.de", Platform: domain.PlatformWeb, Query: "hundenapf"},
			{Title: "Mein Hund", URL: "https://www.youtube.com/watch?v=abc", Domain: "youtube.com", Platform: domain.PlatformYouTube, Query: "hundenapf"},
		}},
	}
	svc, err := NewService(Deps{
		Jobs:       f.jobs,
		Affiliates: f.affiliates,
		Settings:   f.settings,
		Credits:    f.credits,
		Provider:   f.provider,
		Fetcher:    f.fetcher,
		Enricher:   passEnricher{},
		Filter:     filter.NewEngine(filter.Options{Logger: zerolog.Nop()}),
		Logger:     zerolog.Nop(),
		Now:        c.Now,
	}, Options{ResultsPerPage: 100, MaxPagesPerQuery: 1, AffiliateSignals: true})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Start(context.Background(), owner, StartRequest{Topics: []string{"Hundenapf", " hundenapf "}, Platforms: []string{"web", "YouTube"}})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRunning, res.Status)
	return res.JobID
}

func TestStartSubmitsLocalizedQueries(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	require.Len(t, f.provider.submitted, 1)
	req := f.provider.submitted[0]
	assert.Equal(t, "DE", req.CountryCode)
	assert.Equal(t, "de", req.LanguageCode)
	assert.Equal(t, 300, req.TimeoutSecs)
	assert.NotEmpty(t, req.Queries)

	job, err := f.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hundenapf"}, job.Topics, "topics are trimmed and deduplicated")
	assert.Equal(t, "run-1", job.RunID)
	assert.Equal(t, "ds-1", job.DatasetID)
	assert.Equal(t, "bedrop.de", job.Settings.OwnBrand)
	assert.True(t, job.Settings.AffiliateSignals)
}

func TestStartRejectsBeforePersisting(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		setup func(*fixture)
		req   StartRequest
		want  error
	}{
		{"no token", func(f *fixture) { f.provider.noToken = true }, StartRequest{Topics: []string{"napf"}, Platforms: web}, domain.ErrConfiguration},
		{"empty input", nil, StartRequest{Topics: []string{" "}, Platforms: web}, domain.ErrValidation},
		{"bad platform", nil, StartRequest{Topics: []string{"napf"}, Platforms: []string{"myspace"}}, domain.ErrValidation},
		{"no platform", nil, StartRequest{Topics: []string{"napf"}}, domain.ErrValidation},
		{"blank platforms", nil, StartRequest{Topics: []string{"napf"}, Platforms: []string{}}, domain.ErrValidation},
		{"no credits", func(f *fixture) { f.credits.balance[owner] = 0 }, StartRequest{Topics: []string{"napf"}, Platforms: web}, domain.ErrQuotaExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.svc.Start(ctx, owner, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.jobs.jobs)
			assert.Empty(t, f.provider.submitted)
		})
	}
}

func TestStartTooManyTopics(t *testing.T) {
	f := newFixture(t)
	topics := make([]string, maxTopics+1)
	for i := range topics {
		topics[i] = string(rune('a'+i)) + "-topic"
	}
	_, err := f.svc.Start(context.Background(), owner, StartRequest{Topics: topics, Platforms: web})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStartWithoutSettingsUsesDefaults(t *testing.T) {
	f := newFixture(t)
	delete(f.settings, owner)
	id := f.start(t)
	job, err := f.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, job.Settings.TargetCountry)
	assert.Empty(t, f.provider.submitted[0].LanguageCode)
}

func TestStartSubmitFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	f.provider.submitErr = errors.New("actor not found")

	res, err := f.svc.Start(context.Background(), owner, StartRequest{Topics: []string{"napf"}, Platforms: web})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)

	job, gerr := f.jobs.GetByID(context.Background(), res.JobID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.NotContains(t, job.ErrorMessage, "actor not found")
	assert.Equal(t, 3, f.credits.balance[owner])
}

func TestStatusWhileRunningDoesNotChangeJob(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	st, err := f.svc.Status(context.Background(), owner, id)
	require.NoError(t, err)
	require.NotNil(t, st.ElapsedSeconds, "running reports carry elapsed_seconds from the first second")
	assert.Zero(t, *st.ElapsedSeconds)
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"elapsed_seconds":0`)

	f.clock.Advance(30 * time.Second)
	st, err = f.svc.Status(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, st.Status)
	require.NotNil(t, st.ElapsedSeconds)
	assert.Equal(t, 30, *st.ElapsedSeconds)
	assert.Zero(t, f.fetcher.calls)
}

func TestStatusPollTransportErrorFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t)
	f.provider.statusErr = errTransport

	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, st.Status)
	assert.Equal(t, "search provider could not be reached", st.Message)
	assert.NotContains(t, st.Message, errTransport.Error())
	assert.Nil(t, st.ElapsedSeconds)

	f.provider.statusErr = nil
	f.provider.setPhase(apify.PhaseSucceeded)
	again, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, again.Status, "a failed job is not retried")
	assert.Equal(t, 1, f.provider.statusCall)
	assert.Zero(t, f.fetcher.calls)
	assert.Equal(t, 3, f.credits.balance[owner])
}

func TestStatusSucceededProcessesAndConsumesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t)
	f.provider.setPhase(apify.PhaseSucceeded)

	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "https://hundeblog.de/napf", st.Results[0].Link)
	assert.Equal(t, domain.SourceKeyword, st.Results[0].SourceType)
	assert.Equal(t, "de", st.Results[0].HostCountry)
	assert.Equal(t, 1, st.Breakdown["web/marketplace"])
	assert.Equal(t, 1, st.Breakdown["social/enrichment"])
	assert.Equal(t, 2, f.credits.balance[owner])

	again, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, st.Results, again.Results)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 2, f.credits.balance[owner], "a finished job is never charged twice")
}

func TestKnownAffiliatesAreNotReturnedOrCharged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.affiliates.Insert(ctx, &domain.Affiliate{OwnerID: owner, Link: "https://hundeblog.de/napf"})
	require.NoError(t, err)

	id := f.start(t)
	f.provider.setPhase(apify.PhaseSucceeded)
	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	assert.Zero(t, st.ResultsCount)
	assert.Equal(t, 1, st.Breakdown["persist/known"])
	assert.Equal(t, 3, f.credits.balance[owner])
}

func TestProcessingFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)
	f.provider.setPhase(apify.PhaseSucceeded)
	f.fetcher.err = errors.New("dataset gone")

	st, err := f.svc.Status(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, st.Status)
	assert.Equal(t, 3, f.credits.balance[owner])
}

func TestStatusTerminalPhases(t *testing.T) {
	cases := []struct {
		phase apify.Phase
		err   error
		want  domain.JobStatus
	}{
		{phase: apify.PhaseFailed, want: domain.JobStatusFailed},
		{phase: apify.PhaseAborted, want: domain.JobStatusFailed},
		{phase: apify.PhaseTimedOut, want: domain.JobStatusTimeout},
		{err: apify.ErrUnknownStatus, want: domain.JobStatusFailed},
	}
	for _, tc := range cases {
		t.Run(string(tc.want)+"/"+string(tc.phase), func(t *testing.T) {
			f := newFixture(t)
			id := f.start(t)
			f.provider.setPhase(tc.phase)
			f.provider.statusErr = tc.err

			st, err := f.svc.Status(context.Background(), owner, id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.Status)
			assert.NotEmpty(t, st.Message)
			assert.Zero(t, f.fetcher.calls)
		})
	}
}

func TestStatusInteractiveTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)
	f.clock.Advance(301 * time.Second)

	st, err := f.svc.Status(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusTimeout, st.Status)
	assert.Contains(t, st.Message, "300 seconds")
	assert.Zero(t, f.provider.statusCall, "an expired job is not polled")
}

func TestStatusReclaimsStaleProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t)
	started := f.clock.Now()
	f.jobs.set(id, func(j *domain.SearchJob) {
		j.Status = domain.JobStatusProcessing
		j.ProcessingStartedAt = &started
	})

	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, st.Status, "a fresh claim is left to its owner")
	assert.Zero(t, f.fetcher.calls)

	f.clock.Advance(3 * time.Minute)
	st, err = f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 2, f.credits.balance[owner])
}

func TestStatusReclaimCountsLinksOfFirstAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t)
	_, err := f.affiliates.Insert(ctx, &domain.Affiliate{OwnerID: owner, JobID: id, Link: "https://hundeblog.de/napf"})
	require.NoError(t, err)
	started := f.clock.Now()
	f.jobs.set(id, func(j *domain.SearchJob) {
		j.Status = domain.JobStatusProcessing
		j.ProcessingStartedAt = &started
	})

	f.clock.Advance(3 * time.Minute)
	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	assert.Equal(t, 1, st.ResultsCount)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "https://hundeblog.de/napf", st.Results[0].Link)
	assert.Zero(t, st.Breakdown["persist/known"])
	assert.Equal(t, 2, f.credits.balance[owner])
	assert.Len(t, f.affiliates.rows, 1)
}

func TestConcurrentStatusOnSucceededRunChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.start(t)
	f.provider.setPhase(apify.PhaseSucceeded)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]StatusResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Status(ctx, owner, id)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Contains(t, []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusDone}, results[i].Status)
	}
	st, err := f.svc.Status(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	assert.Equal(t, 1, st.ResultsCount)
	assert.Equal(t, 1, f.fetcher.calls, "only the caller that claims processing fetches")
	assert.Equal(t, 2, f.credits.balance[owner])
	assert.Equal(t, 1, f.credits.consumed[id])
}

func TestStatusOtherOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)
	_, err := f.svc.Status(context.Background(), "owner-2", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunnerFinishesUnattendedJob(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(f.svc, time.Second, time.Minute, zerolog.Nop())
	polls := 0
	r.sleep = func(context.Context, time.Duration) error {
		polls++
		f.clock.Advance(time.Second)
		if polls == 2 {
			f.provider.setPhase(apify.PhaseSucceeded)
		}
		return nil
	}

	st, err := r.Run(context.Background(), owner, StartRequest{Topics: []string{"hundenapf"}, Platforms: web})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, st.Status)
	assert.Equal(t, 2, polls)
}

func TestRunnerExpiresAtDeadline(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(f.svc, 10*time.Second, 30*time.Second, zerolog.Nop())
	r.sleep = func(context.Context, time.Duration) error {
		f.clock.Advance(10 * time.Second)
		return nil
	}

	st, err := r.Run(context.Background(), owner, StartRequest{Topics: []string{"hundenapf"}, Platforms: web})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusTimeout, st.Status)
	assert.Equal(t, 3, f.credits.balance[owner])
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(f.svc, time.Second, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := r.Run(ctx, owner, StartRequest{Topics: []string{"hundenapf"}, Platforms: web})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.JobStatusRunning, st.Status)
}
