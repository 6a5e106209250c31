// Package search turns provider datasets into categorized raw results.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/providers/apify"
)

// DatasetSource reads the dataset of a finished search run.
type DatasetSource interface {
	Results(ctx context.Context, datasetID string) ([]apify.QueryGroup, error)
}

// Archive stores raw payloads under a relative key.
type Archive interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ArchiveReader is implemented by archives that can replay a stored dataset.
type ArchiveReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

func datasetKey(datasetID string) string {
	return "datasets/" + datasetID + ".json"
}

// Fetcher is the result fetcher of the pipeline.
type Fetcher struct {
	source  DatasetSource
	archive Archive
	logger  zerolog.Logger
}

// NewFetcher builds a Fetcher. archive may be nil.
func NewFetcher(source DatasetSource, archive Archive, logger zerolog.Logger) *Fetcher {
	return &Fetcher{source: source, archive: archive, logger: logger}
}

// Fetch reads and flattens the dataset of a finished run.
func (f *Fetcher) Fetch(ctx context.Context, datasetID string) ([]domain.RawResult, error) {
	if groups, ok := f.replay(ctx, datasetID); ok {
		results := Flatten(groups)
		f.logger.Info().Str("dataset_id", datasetID).Int("results", len(results)).Msg("search: dataset replayed from archive")
		return results, nil
	}
	groups, err := f.source.Results(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", datasetID, err)
	}
	if f.archive != nil {
		if raw, err := json.Marshal(groups); err == nil {
			if _, err := f.archive.Write(ctx, datasetKey(datasetID), raw); err != nil {
				f.logger.Warn().Err(err).Str("dataset_id", datasetID).Msg("search: archive dataset failed")
			}
		}
	}
	results := Flatten(groups)
	f.logger.Info().Str("dataset_id", datasetID).Int("groups", len(groups)).Int("results", len(results)).Msg("search: dataset fetched")
	return results, nil
}

func (f *Fetcher) replay(ctx context.Context, datasetID string) ([]apify.QueryGroup, bool) {
	reader, ok := f.archive.(ArchiveReader)
	if !ok || datasetID == "" {
		return nil, false
	}
	raw, err := reader.Read(ctx, datasetKey(datasetID))
	if err != nil {
		return nil, false
	}
	var groups []apify.QueryGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		f.logger.Warn().Err(err).Str("dataset_id", datasetID).Msg("search: archived dataset unreadable")
		return nil, false
	}
	return groups, true
}

// Flatten converts query groups into results tagged with the query term.
// Items without a URL are skipped.
func Flatten(groups []apify.QueryGroup) []domain.RawResult {
	var out []domain.RawResult
	for _, g := range groups {
		for _, item := range g.OrganicResults {
			link := strings.TrimSpace(item.URL)
			if link == "" {
				continue
			}
			out = append(out, domain.RawResult{
				Title:       PlainText(item.Title),
				URL:         link,
				Snippet:     PlainText(item.Description),
				Platform:    Categorize(link),
				Domain:      CanonicalDomain(link),
				Position:    item.Position,
				PublishedAt: item.Date,
				Query:       g.SearchQuery.Term,
			})
		}
	}
	return out
}

var hostPlatforms = []struct {
	host     string
	platform domain.Platform
}{
	{"youtube.com", domain.PlatformYouTube},
	{"youtu.be", domain.PlatformYouTube},
	{"instagram.com", domain.PlatformInstagram},
	{"tiktok.com", domain.PlatformTikTok},
}

// Categorize assigns a platform by host; anything unknown is web.
func Categorize(link string) domain.Platform {
	host := CanonicalDomain(link)
	for _, hp := range hostPlatforms {
		if host == hp.host || strings.HasSuffix(host, "."+hp.host) {
			return hp.platform
		}
	}
	return domain.PlatformWeb
}

var hostPattern = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9+.\-]*://)?(?:[^@/\s]*@)?([^/:?#\s]+)`)

// CanonicalDomain returns the lowercased host without a leading "www.".
// Malformed URLs fall back to a pattern match.
func CanonicalDomain(link string) string {
	link = strings.TrimSpace(link)
	host := ""
	if u, err := url.Parse(link); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	} else if m := hostPattern.FindStringSubmatch(link); m != nil {
		host = m[1]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.TrimPrefix(host, "www.")
}

// PlainText strips HTML markup and collapses whitespace.
func PlainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
