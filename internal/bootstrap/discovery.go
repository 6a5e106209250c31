package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"affiliatescout/internal/discovery"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/enrichment"
	"affiliatescout/internal/filter"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/infra/credentials"
	"affiliatescout/internal/infra/geoip"
	"affiliatescout/internal/providers/apify"
	"affiliatescout/internal/search"
	"affiliatescout/internal/storage"
)

// Pipeline is the assembled discovery service plus what it holds open.
type Pipeline struct {
	Service *discovery.Service
	// Country resolves client IPs when a GeoIP database is configured.
	Country func(ip string) (string, error)
	closers []io.Closer
}

// Close releases the GeoIP database.
func (p *Pipeline) Close() {
	for _, c := range p.closers {
		_ = c.Close()
	}
}

// ResolveApifyToken prefers the environment and falls back to the token
// stored with cmd/providerkey.
func ResolveApifyToken(ctx context.Context, cfg *infra.Config, tokens TokenStore, logger zerolog.Logger) string {
	if cfg.Apify.Token != "" {
		return cfg.Apify.Token
	}
	if tokens == nil {
		return ""
	}
	token, err := tokens.Token(ctx, credentials.ProviderApify)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: read stored apify token")
		return ""
	}
	if token == "" {
		logger.Warn().Msg("bootstrap: no apify token configured, job starts will fail")
	}
	return token
}

// NewPipeline wires provider, fetcher, enrichment and filter into a
// discovery service. rdb may be nil to run without the enrichment cache.
func NewPipeline(ctx context.Context, cfg *infra.Config, store *Store, rdb *redis.Client, logger zerolog.Logger) (*Pipeline, error) {
	p := &Pipeline{}
	client, err := apify.NewClient(apify.Options{
		Token:             ResolveApifyToken(ctx, cfg, store.Tokens, logger),
		BaseURL:           cfg.Apify.BaseURL,
		Logger:            &logger,
		RequestsPerSecond: cfg.Apify.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	searcher := apify.NewSearch(client, cfg.Apify.SearchActor)

	actors := map[domain.Platform]string{
		domain.PlatformYouTube:   cfg.Apify.YouTubeActor,
		domain.PlatformInstagram: cfg.Apify.InstagramActor,
		domain.PlatformTikTok:    cfg.Apify.TikTokActor,
	}
	resolvers := make(map[domain.Platform]enrichment.Resolver, len(actors))
	for platform, actor := range actors {
		r, err := apify.NewProfileResolver(client, platform, actor)
		if err != nil {
			return nil, fmt.Errorf("profile resolver %s: %w", platform, err)
		}
		resolvers[platform] = enrichment.WithCache(platform, r, rdb, cfg.Discovery.EnrichmentCacheTTL, logger)
	}

	var archive search.Archive
	files, err := storage.NewFileStore(cfg.DatasetDir)
	if err != nil {
		return nil, err
	}
	if files != nil {
		archive = files
	}

	var hosts filter.HostCountryResolver
	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: geoip disabled")
	} else if countries != nil {
		hosts = geoip.NewHostLocator(countries, nil)
		p.Country = countries.CountryCode
		if c, ok := countries.(io.Closer); ok {
			p.closers = append(p.closers, c)
		}
	}

	svc, err := discovery.NewService(discovery.Deps{
		Jobs:       store.Jobs,
		Affiliates: store.Affiliates,
		Settings:   store.Settings,
		Credits:    store.Credits,
		Provider:   searcher,
		Fetcher:    search.NewFetcher(searcher, archive, logger),
		Enricher:   enrichment.NewService(resolvers, logger),
		Filter: filter.NewEngine(filter.Options{
			Detector:      filter.WhatlangDetector{},
			Hosts:         hosts,
			MinConfidence: cfg.Discovery.LanguageMinConf,
			Logger:        logger,
		}),
		Logger: logger,
	}, discovery.Options{
		ResultsPerPage:     cfg.Discovery.ResultsPerPage,
		MaxPagesPerQuery:   cfg.Discovery.MaxPagesPerQuery,
		InteractiveTimeout: cfg.Discovery.InteractiveTimeout,
		ProcessingStale:    cfg.Discovery.ProcessingStale,
		CreditType:         cfg.Discovery.CreditType,
		AffiliateSignals:   cfg.Discovery.AffiliateSignals,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Service = svc
	return p, nil
}
