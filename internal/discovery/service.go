// Package discovery runs affiliate searches end to end: it builds queries,
// launches the provider run, follows it and turns the dataset into stored
// affiliates.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/filter"
	"affiliatescout/internal/locale"
	"affiliatescout/internal/metrics"
	"affiliatescout/internal/providers/apify"
	"affiliatescout/internal/query"
	"affiliatescout/internal/search"
)

const (
	maxTopics      = 20
	maxCompetitors = 20

	creditRefType = "search_job"
)

// Provider launches and follows search runs.
type Provider interface {
	HasCredentials() bool
	Submit(ctx context.Context, req apify.SearchRequest) (apify.Run, error)
	Status(ctx context.Context, runID string) (apify.Run, error)
}

// Fetcher reads a finished dataset as flat results.
type Fetcher interface {
	Fetch(ctx context.Context, datasetID string) ([]domain.RawResult, error)
}

// Enricher attaches profile metadata to social results.
type Enricher interface {
	Enrich(ctx context.Context, results []domain.RawResult) []domain.EnrichedResult
}

// Filter applies the per-platform chains.
type Filter interface {
	Apply(ctx context.Context, c filter.Criteria, results []domain.EnrichedResult) filter.Outcome
}

// Options are the pipeline tunables.
type Options struct {
	ResultsPerPage     int
	MaxPagesPerQuery   int
	InteractiveTimeout time.Duration
	ProcessingStale    time.Duration
	CreditType         string
	AffiliateSignals   bool
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Jobs       domain.JobRepository
	Affiliates domain.AffiliateRepository
	Settings   domain.SettingsRepository
	Credits    domain.CreditLedger
	Provider   Provider
	Fetcher    Fetcher
	Enricher   Enricher
	Filter     Filter
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service implements job start and status.
type Service struct {
	Deps
	opts Options
}

// NewService validates deps and applies option defaults.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Jobs == nil, deps.Affiliates == nil, deps.Settings == nil, deps.Credits == nil:
		return nil, errors.New("discovery: repositories are required")
	case deps.Provider == nil, deps.Fetcher == nil, deps.Enricher == nil, deps.Filter == nil:
		return nil, errors.New("discovery: pipeline stages are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.InteractiveTimeout <= 0 {
		opts.InteractiveTimeout = 300 * time.Second
	}
	if opts.ProcessingStale <= 0 {
		opts.ProcessingStale = 120 * time.Second
	}
	if opts.CreditType == "" {
		opts.CreditType = "affiliate_search"
	}
	return &Service{Deps: deps, opts: opts}, nil
}

// StartRequest is the caller input of a new job.
type StartRequest struct {
	Topics           []string `json:"topics"`
	Competitors      []string `json:"competitors"`
	Platforms        []string `json:"platforms"`
	AffiliateSignals *bool    `json:"affiliate_signals,omitempty"`
}

// StartResult identifies the created job.
type StartResult struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// StatusResult is the caller view of a job. Raw provider payloads never
// appear here.
type StatusResult struct {
	JobID          string             `json:"job_id"`
	Status         domain.JobStatus   `json:"status"`
	Message        string             `json:"message"`
	ElapsedSeconds *int               `json:"elapsed_seconds,omitempty"`
	ResultsCount   int                `json:"results_count"`
	Results        []domain.Affiliate `json:"results,omitempty"`
	Breakdown      map[string]int     `json:"breakdown,omitempty"`
}

type validated struct {
	topics      []string
	competitors []string
	platforms   []domain.Platform
}

func validate(req StartRequest) (validated, error) {
	v := validated{topics: cleanList(req.Topics), competitors: cleanList(req.Competitors)}
	if len(v.topics) == 0 && len(v.competitors) == 0 {
		return v, fmt.Errorf("at least one topic or competitor is required: %w", domain.ErrValidation)
	}
	if len(v.topics) > maxTopics {
		return v, fmt.Errorf("at most %d topics are allowed: %w", maxTopics, domain.ErrValidation)
	}
	if len(v.competitors) > maxCompetitors {
		return v, fmt.Errorf("at most %d competitors are allowed: %w", maxCompetitors, domain.ErrValidation)
	}
	seen := map[domain.Platform]bool{}
	for _, raw := range req.Platforms {
		p, err := domain.ParsePlatform(raw)
		if err != nil {
			return v, err
		}
		if !seen[p] {
			seen[p] = true
			v.platforms = append(v.platforms, p)
		}
	}
	if len(v.platforms) == 0 {
		return v, fmt.Errorf("at least one platform is required: %w", domain.ErrValidation)
	}
	return v, nil
}

// Start creates a job and submits its queries. Configuration, validation and
// credit errors are returned before anything is persisted.
func (s *Service) Start(ctx context.Context, ownerID string, req StartRequest) (StartResult, error) {
	if !s.Provider.HasCredentials() {
		return StartResult{}, fmt.Errorf("search provider token is not configured: %w", domain.ErrConfiguration)
	}
	in, err := validate(req)
	if err != nil {
		return StartResult{}, err
	}

	settings, err := s.Settings.GetByOwner(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		settings = &domain.Settings{OwnerID: ownerID}
	} else if err != nil {
		return StartResult{}, fmt.Errorf("load settings: %w", err)
	}
	signals := s.opts.AffiliateSignals
	if req.AffiliateSignals != nil {
		signals = *req.AffiliateSignals
	}
	snapshot := domain.SettingsSnapshot{
		TargetCountry:    settings.TargetCountry,
		TargetLanguage:   settings.TargetLanguage,
		OwnBrand:         settings.OwnBrand,
		Competitors:      cleanList(append(append([]string(nil), settings.Competitors...), in.competitors...)),
		AffiliateSignals: signals,
	}

	balance, err := s.Credits.Balance(ctx, ownerID, s.opts.CreditType)
	if err != nil {
		return StartResult{}, fmt.Errorf("read credit balance: %w", err)
	}
	if balance < 1 {
		return StartResult{}, domain.ErrQuotaExceeded
	}

	queries := query.Build(query.Request{
		Topics:           in.topics,
		Competitors:      in.competitors,
		Platforms:        in.platforms,
		Language:         snapshot.TargetLanguage,
		AffiliateSignals: signals,
		Now:              s.Now(),
	})
	if len(queries) == 0 {
		return StartResult{}, fmt.Errorf("no queries could be built: %w", domain.ErrValidation)
	}

	job := &domain.SearchJob{
		OwnerID:     ownerID,
		Topics:      in.topics,
		Competitors: in.competitors,
		Platforms:   in.platforms,
		Queries:     queries,
		Settings:    snapshot,
		Status:      domain.JobStatusPending,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return StartResult{}, fmt.Errorf("create job: %w", err)
	}
	log := s.Logger.With().Str("job_id", job.ID).Str("owner_id", ownerID).Logger()

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Text
	}
	langCode, _ := locale.Code(snapshot.TargetLanguage)
	run, err := s.Provider.Submit(ctx, apify.SearchRequest{
		Queries:          texts,
		ResultsPerPage:   s.opts.ResultsPerPage,
		MaxPagesPerQuery: s.opts.MaxPagesPerQuery,
		CountryCode:      snapshot.TargetCountry,
		LanguageCode:     langCode,
		TimeoutSecs:      int(s.opts.InteractiveTimeout.Seconds()),
	})
	if err != nil {
		log.Error().Err(err).Msg("discovery: submit failed")
		s.transition(ctx, job.ID, domain.Transition{
			From:         []domain.JobStatus{domain.JobStatusPending},
			To:           domain.JobStatusFailed,
			ErrorMessage: "search provider rejected the job",
		})
		return StartResult{JobID: job.ID, Status: domain.JobStatusFailed}, fmt.Errorf("submit search: %w: %w", err, domain.ErrProviderFailure)
	}

	if _, err := s.transition(ctx, job.ID, domain.Transition{
		From:      []domain.JobStatus{domain.JobStatusPending},
		To:        domain.JobStatusRunning,
		RunID:     run.ID,
		DatasetID: run.DatasetID,
	}); err != nil {
		return StartResult{}, err
	}
	log.Info().Str("run_id", run.ID).Int("queries", len(queries)).Msg("discovery: job started")
	return StartResult{JobID: job.ID, Status: domain.JobStatusRunning}, nil
}

// Status reports on a job and advances it when the provider run finished.
// A running job that is still running upstream is left untouched.
func (s *Service) Status(ctx context.Context, ownerID, jobID string) (StatusResult, error) {
	job, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return StatusResult{}, err
	}
	if job.OwnerID != ownerID {
		return StatusResult{}, domain.ErrNotFound
	}

	switch job.Status {
	case domain.JobStatusRunning:
		return s.poll(ctx, job)
	case domain.JobStatusProcessing:
		if job.ProcessingStartedAt != nil && s.Now().Sub(*job.ProcessingStartedAt) >= s.opts.ProcessingStale {
			staleBefore := s.Now().Add(-s.opts.ProcessingStale)
			return s.process(ctx, job, domain.Transition{To: domain.JobStatusProcessing, StaleBefore: &staleBefore})
		}
	}
	return s.report(job), nil
}

// Expire moves a still running job to timeout. It reports whether this call
// made the change.
func (s *Service) Expire(ctx context.Context, jobID, message string) (bool, error) {
	return s.transition(ctx, jobID, domain.Transition{
		From:         []domain.JobStatus{domain.JobStatusRunning},
		To:           domain.JobStatusTimeout,
		ErrorMessage: message,
	})
}

func (s *Service) poll(ctx context.Context, job *domain.SearchJob) (StatusResult, error) {
	log := s.Logger.With().Str("job_id", job.ID).Str("run_id", job.RunID).Logger()
	elapsed := s.Now().Sub(job.CreatedAt)
	if elapsed >= s.opts.InteractiveTimeout {
		msg := fmt.Sprintf("search did not finish within %d seconds", int(s.opts.InteractiveTimeout.Seconds()))
		if _, err := s.Expire(ctx, job.ID, msg); err != nil {
			return StatusResult{}, err
		}
		return s.reload(ctx, job.ID)
	}

	run, err := s.Provider.Status(ctx, job.RunID)
	if err != nil {
		if errors.Is(err, apify.ErrUnknownStatus) {
			log.Error().Err(err).Msg("discovery: unknown provider status")
			return s.finishRun(ctx, job, domain.JobStatusFailed, "search provider returned an unknown status")
		}
		log.Error().Err(err).Msg("discovery: status poll failed")
		return s.finishRun(ctx, job, domain.JobStatusFailed, "search provider could not be reached")
	}

	target, finished := run.Phase.JobStatus()
	if !finished {
		return s.running(job, elapsed), nil
	}
	switch target {
	case domain.JobStatusProcessing:
		if job.DatasetID == "" {
			job.DatasetID = run.DatasetID
		}
		return s.process(ctx, job, domain.Transition{
			From:      []domain.JobStatus{domain.JobStatusRunning},
			To:        domain.JobStatusProcessing,
			DatasetID: run.DatasetID,
		})
	case domain.JobStatusTimeout:
		return s.finishRun(ctx, job, domain.JobStatusTimeout, "search provider run timed out")
	default:
		return s.finishRun(ctx, job, domain.JobStatusFailed, "search provider run "+string(run.Phase))
	}
}

func (s *Service) finishRun(ctx context.Context, job *domain.SearchJob, to domain.JobStatus, msg string) (StatusResult, error) {
	if _, err := s.transition(ctx, job.ID, domain.Transition{
		From:         []domain.JobStatus{domain.JobStatusRunning},
		To:           to,
		ErrorMessage: msg,
	}); err != nil {
		return StatusResult{}, err
	}
	return s.reload(ctx, job.ID)
}

// process claims the job and runs fetch, enrich, filter and persist. Only
// the caller that wins processing -> done consumes a credit.
func (s *Service) process(ctx context.Context, job *domain.SearchJob, claim domain.Transition) (StatusResult, error) {
	won, err := s.transition(ctx, job.ID, claim)
	if err != nil {
		return StatusResult{}, err
	}
	if !won {
		return s.reload(ctx, job.ID)
	}
	log := s.Logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Logger()

	outcome, err := s.collect(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("discovery: processing failed")
		if _, terr := s.transition(ctx, job.ID, domain.Transition{
			From:         []domain.JobStatus{domain.JobStatusProcessing},
			To:           domain.JobStatusFailed,
			ErrorMessage: "search results could not be processed",
		}); terr != nil {
			return StatusResult{}, terr
		}
		return s.reload(ctx, job.ID)
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return StatusResult{}, fmt.Errorf("encode outcome: %w", err)
	}
	count := len(outcome.Results)
	won, err = s.transition(ctx, job.ID, domain.Transition{
		From:         []domain.JobStatus{domain.JobStatusProcessing},
		To:           domain.JobStatusDone,
		ResultsCount: &count,
		ResultJSON:   payload,
	})
	if err != nil {
		return StatusResult{}, err
	}
	if won && count > 0 {
		s.consumeCredit(ctx, job)
	}
	log.Info().Int("fetched", outcome.Fetched).Int("results", count).Bool("won", won).Msg("discovery: job processed")
	return s.reload(ctx, job.ID)
}

func (s *Service) consumeCredit(ctx context.Context, job *domain.SearchJob) {
	log := s.Logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Logger()
	consumed, err := s.Credits.Consume(ctx, job.OwnerID, s.opts.CreditType, creditRefType, job.ID)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("discovery: credit consumption failed")
	case !consumed:
		log.Warn().Msg("discovery: credit already consumed for job")
	default:
		metrics.CreditsConsumed.Inc()
	}
}

// collect turns the dataset into newly stored affiliates. Links the owner
// already has are skipped and counted in the breakdown.
func (s *Service) collect(ctx context.Context, job *domain.SearchJob) (domain.JobOutcome, error) {
	raw, err := s.Fetcher.Fetch(ctx, job.DatasetID)
	if err != nil {
		return domain.JobOutcome{}, fmt.Errorf("fetch dataset: %w", err)
	}
	enriched := s.Enricher.Enrich(ctx, raw)
	filtered := s.Filter.Apply(ctx, filter.CriteriaFromSnapshot(job.Settings), enriched)

	outcome := domain.JobOutcome{Fetched: len(raw), Dropped: filtered.Dropped, Results: []domain.Affiliate{}}
	if outcome.Dropped == nil {
		outcome.Dropped = map[string]int{}
	}
	attr := search.NewAttributor(job.Queries, job.Topics, job.Competitors)
	seen := make(map[string]struct{}, len(filtered.Kept))
	for _, c := range filtered.Kept {
		if _, dup := seen[c.URL]; dup {
			outcome.Dropped["persist/duplicate"]++
			continue
		}
		seen[c.URL] = struct{}{}
		sourceType, sourceValue := attr.Attribute(c.Query)
		a := domain.Affiliate{
			OwnerID:        job.OwnerID,
			JobID:          job.ID,
			Link:           c.URL,
			Domain:         c.Domain,
			Platform:       c.Platform,
			Title:          c.Title,
			Snippet:        c.Snippet,
			SourceType:     sourceType,
			SourceValue:    sourceValue,
			AffiliateScore: c.Score,
			HostCountry:    c.HostCountry,
			Metadata:       c.Enrichment.Profile,
		}
		inserted, err := s.Affiliates.Insert(ctx, &a)
		if err != nil {
			return domain.JobOutcome{}, fmt.Errorf("store affiliate: %w", err)
		}
		if !inserted {
			outcome.Dropped["persist/known"]++
			continue
		}
		outcome.Results = append(outcome.Results, a)
	}
	return outcome, nil
}

func (s *Service) transition(ctx context.Context, jobID string, t domain.Transition) (bool, error) {
	won, err := s.Jobs.Transition(ctx, jobID, t)
	if err != nil {
		s.Logger.Error().Err(err).Str("job_id", jobID).Str("to", string(t.To)).Msg("discovery: transition failed")
		return false, err
	}
	if won {
		metrics.JobTransitions.WithLabelValues(string(t.To)).Inc()
	}
	return won, nil
}

func (s *Service) reload(ctx context.Context, jobID string) (StatusResult, error) {
	job, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return StatusResult{}, err
	}
	return s.report(job), nil
}

func (s *Service) running(job *domain.SearchJob, elapsed time.Duration) StatusResult {
	return StatusResult{
		JobID:          job.ID,
		Status:         domain.JobStatusRunning,
		Message:        "search is running",
		ElapsedSeconds: elapsedSeconds(elapsed),
	}
}

func (s *Service) report(job *domain.SearchJob) StatusResult {
	out := StatusResult{JobID: job.ID, Status: job.Status, ResultsCount: job.ResultsCount}
	switch job.Status {
	case domain.JobStatusPending:
		out.Message = "search is being submitted"
	case domain.JobStatusRunning:
		out.Message = "search is running"
		out.ElapsedSeconds = elapsedSeconds(s.Now().Sub(job.CreatedAt))
	case domain.JobStatusProcessing:
		out.Message = "results are being processed"
	case domain.JobStatusDone:
		out.Message = fmt.Sprintf("found %d affiliates", job.ResultsCount)
		var outcome domain.JobOutcome
		if len(job.ResultJSON) > 0 && json.Unmarshal(job.ResultJSON, &outcome) == nil {
			out.Results = outcome.Results
			out.Breakdown = outcome.Dropped
		}
	case domain.JobStatusFailed:
		out.Message = firstNonEmpty(job.ErrorMessage, "search failed")
	case domain.JobStatusTimeout:
		out.Message = firstNonEmpty(job.ErrorMessage, "search timed out")
	}
	return out
}

// elapsedSeconds is set only on running reports, so zero is still encoded.
func elapsedSeconds(d time.Duration) *int {
	n := int(d.Seconds())
	return &n
}

func cleanList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
