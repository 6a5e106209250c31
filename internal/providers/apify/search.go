package apify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultSearchActor is the Google search scraper actor.
const DefaultSearchActor = "apify/google-search-scraper"

// SearchRequest is one batched search submission.
type SearchRequest struct {
	Queries          []string
	ResultsPerPage   int
	MaxPagesPerQuery int
	CountryCode      string
	LanguageCode     string
	TimeoutSecs      int
}

type searchInput struct {
	Queries          string `json:"queries"`
	ResultsPerPage   int    `json:"resultsPerPage"`
	MaxPagesPerQuery int    `json:"maxPagesPerQuery"`
	CountryCode      string `json:"countryCode,omitempty"`
	LanguageCode     string `json:"languageCode,omitempty"`
	MobileResults    bool   `json:"mobileResults"`
	SaveHTML         bool   `json:"saveHtml"`
}

// QueryGroup is one dataset item: the organic results of one query page.
type QueryGroup struct {
	SearchQuery struct {
		Term string `json:"term"`
		Page int    `json:"page"`
	} `json:"searchQuery"`
	OrganicResults []OrganicResult `json:"organicResults"`
}

// OrganicResult is a single organic hit inside a QueryGroup.
type OrganicResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Position    int    `json:"position"`
	Date        string `json:"date"`
}

// Search submits and follows search actor runs.
type Search struct {
	client  *Client
	actorID string
}

// NewSearch binds the client to a search actor.
func NewSearch(client *Client, actorID string) *Search {
	if strings.TrimSpace(actorID) == "" {
		actorID = DefaultSearchActor
	}
	return &Search{client: client, actorID: actorID}
}

// HasCredentials reports whether searches can be submitted.
func (s *Search) HasCredentials() bool {
	return s != nil && s.client.HasCredentials()
}

// Submit starts a search run and returns its handle.
func (s *Search) Submit(ctx context.Context, req SearchRequest) (Run, error) {
	if len(req.Queries) == 0 {
		return Run{}, errors.New("apify: at least one query is required")
	}
	input := searchInput{
		Queries:          strings.Join(req.Queries, "\n"),
		ResultsPerPage:   req.ResultsPerPage,
		MaxPagesPerQuery: req.MaxPagesPerQuery,
		CountryCode:      strings.ToLower(req.CountryCode),
		LanguageCode:     strings.ToLower(req.LanguageCode),
	}
	if input.ResultsPerPage <= 0 {
		input.ResultsPerPage = 100
	}
	if input.MaxPagesPerQuery <= 0 {
		input.MaxPagesPerQuery = 1
	}
	run, err := s.client.StartRun(ctx, s.actorID, input, req.TimeoutSecs)
	if err != nil {
		return Run{}, fmt.Errorf("apify: submit search: %w", err)
	}
	s.client.logger.Info().Str("run_id", run.ID).Int("queries", len(req.Queries)).Msg("apify: search submitted")
	return run, nil
}

// Status polls a search run.
func (s *Search) Status(ctx context.Context, runID string) (Run, error) {
	return s.client.GetRun(ctx, runID)
}

// Results reads the dataset of a finished search run.
func (s *Search) Results(ctx context.Context, datasetID string) ([]QueryGroup, error) {
	var groups []QueryGroup
	if err := s.client.DatasetItems(ctx, datasetID, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
