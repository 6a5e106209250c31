// Package enrichment attaches social profile metadata to search results.
package enrichment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/metrics"
)

// Resolver resolves a batch of URLs of one platform.
type Resolver interface {
	BatchResolve(ctx context.Context, urls []string) (map[string]domain.ProfileMetadata, error)
}

var errNoResolver = fmt.Errorf("enrichment: no resolver configured: %w", domain.ErrEnrichmentFailure)

// Service fans out one batched resolver call per social platform.
type Service struct {
	resolvers map[domain.Platform]Resolver
	logger    zerolog.Logger
}

// NewService builds a Service. Platforms without a resolver are marked failed.
func NewService(resolvers map[domain.Platform]Resolver, logger zerolog.Logger) *Service {
	return &Service{resolvers: resolvers, logger: logger}
}

type bucket struct {
	platform domain.Platform
	indexes  []int
	urls     []string
	found    map[string]domain.ProfileMetadata
	err      error
}

// Enrich returns results in input order. Web results are not applicable; a
// failed platform call only affects the results of that platform.
func (s *Service) Enrich(ctx context.Context, results []domain.RawResult) []domain.EnrichedResult {
	out := make([]domain.EnrichedResult, len(results))
	buckets := make(map[domain.Platform]*bucket)
	var order []*bucket
	for i, r := range results {
		out[i] = domain.EnrichedResult{RawResult: r, Enrichment: domain.Enrichment{State: domain.EnrichmentNotApplicable}}
		if !r.Platform.Social() {
			continue
		}
		b, ok := buckets[r.Platform]
		if !ok {
			b = &bucket{platform: r.Platform}
			buckets[r.Platform] = b
			order = append(order, b)
		}
		b.indexes = append(b.indexes, i)
		b.urls = append(b.urls, r.URL)
	}

	var g errgroup.Group
	for _, b := range order {
		g.Go(func() error {
			resolver, ok := s.resolvers[b.platform]
			if !ok || resolver == nil {
				b.err = errNoResolver
				return nil
			}
			found, err := resolver.BatchResolve(ctx, uniqueStrings(b.urls))
			if err != nil {
				b.err = fmt.Errorf("%w: %w", domain.ErrEnrichmentFailure, err)
				return nil
			}
			b.found = make(map[string]domain.ProfileMetadata, len(found))
			for u, meta := range found {
				b.found[URLKey(u)] = meta
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, b := range order {
		if b.err != nil {
			metrics.EnrichmentFailures.WithLabelValues(string(b.platform)).Inc()
			s.logger.Warn().Err(b.err).Str("platform", string(b.platform)).Int("urls", len(b.urls)).Msg("enrichment: platform batch failed")
		}
		for _, idx := range b.indexes {
			switch {
			case b.err != nil:
				out[idx].Enrichment = domain.Enrichment{State: domain.EnrichmentFailed}
			default:
				if meta, ok := b.found[URLKey(out[idx].URL)]; ok {
					out[idx].Enrichment = domain.Resolved(meta)
				} else {
					out[idx].Enrichment = domain.Enrichment{State: domain.EnrichmentMissing}
				}
			}
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
