// Package apify talks to an Apify compatible actor platform: asynchronous
// actor runs for search and synchronous runs for profile enrichment.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/metrics"
)

// ErrMissingToken indicates that the client was configured without credentials.
var ErrMissingToken = errors.New("apify: token is required")

// Options configures the Apify client.
type Options struct {
	Token             string
	BaseURL           string
	HTTPClient        *http.Client
	Logger            *infra.Logger
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// Client performs HTTP calls against the actor API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	limiter    *rate.Limiter
}

// Run is the provider view of an actor run.
type Run struct {
	ID        string
	DatasetID string
	Status    string
	Phase     Phase
	StartedAt time.Time
}

type runEnvelope struct {
	Data struct {
		ID               string    `json:"id"`
		Status           string    `json:"status"`
		DefaultDatasetID string    `json:"defaultDatasetId"`
		StartedAt        time.Time `json:"startedAt"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.apify.com"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("apify: parse base url: %w", err)
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}
	return &Client{
		token:      strings.TrimSpace(opts.Token),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.token != ""
}

// StartRun starts actorID asynchronously with input as the run input.
func (c *Client) StartRun(ctx context.Context, actorID string, input any, timeoutSecs int) (Run, error) {
	query := url.Values{}
	if timeoutSecs > 0 {
		query.Set("timeout", strconv.Itoa(timeoutSecs))
	}
	var env runEnvelope
	if err := c.do(ctx, "start_run", http.MethodPost, "/v2/acts/"+actorPath(actorID)+"/runs", query, input, &env); err != nil {
		return Run{}, err
	}
	return c.toRun(env)
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	if strings.TrimSpace(runID) == "" {
		return Run{}, errors.New("apify: run id is required")
	}
	var env runEnvelope
	if err := c.do(ctx, "get_run", http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil, nil, &env); err != nil {
		return Run{}, err
	}
	return c.toRun(env)
}

// DatasetItems decodes every item of a dataset into out.
func (c *Client) DatasetItems(ctx context.Context, datasetID string, out any) error {
	if strings.TrimSpace(datasetID) == "" {
		return errors.New("apify: dataset id is required")
	}
	query := url.Values{"clean": {"true"}, "format": {"json"}}
	return c.do(ctx, "dataset_items", http.MethodGet, "/v2/datasets/"+url.PathEscape(datasetID)+"/items", query, nil, out)
}

// RunSync runs actorID to completion and decodes its dataset items into out.
func (c *Client) RunSync(ctx context.Context, actorID string, input any, out any) error {
	return c.do(ctx, "run_sync", http.MethodPost, "/v2/acts/"+actorPath(actorID)+"/run-sync-get-dataset-items", nil, input, out)
}

func (c *Client) toRun(env runEnvelope) (Run, error) {
	phase, err := ClassifyStatus(env.Data.Status)
	run := Run{
		ID:        env.Data.ID,
		DatasetID: env.Data.DefaultDatasetID,
		Status:    env.Data.Status,
		Phase:     phase,
		StartedAt: env.Data.StartedAt,
	}
	if err != nil {
		return run, err
	}
	if run.ID == "" {
		return run, fmt.Errorf("apify: run id missing in response: %w", domain.ErrProviderFailure)
	}
	return run, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) (err error) {
	if !c.HasCredentials() {
		return ErrMissingToken
	}
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderRequests.WithLabelValues(op, outcome).Inc()
		metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("apify: rate limit wait: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apify: encode input: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("apify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("op", op).Str("path", path).Msg("apify: request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apify: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("apify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorEnvelope
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if len(msg) > 256 {
			msg = msg[:256]
		}
		c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Str("message", msg).Msg("apify: request failed")
		return fmt.Errorf("apify: %s: status %d: %s: %w", op, resp.StatusCode, msg, domain.ErrProviderFailure)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apify: decode %s response: %w", op, err)
	}
	return nil
}

// actorPath converts "user/actor" into the "user~actor" form used in URLs.
func actorPath(actorID string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(actorID), "/", "~"))
}
