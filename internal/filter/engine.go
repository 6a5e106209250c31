// Package filter decides which enriched results are kept as affiliates.
package filter

import (
	"context"

	"github.com/rs/zerolog"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/locale"
	"affiliatescout/internal/metrics"
)

// Chain names.
const (
	ChainWeb    = "web"
	ChainSocial = "social"
)

// Criteria is the per-job filter input derived from the settings snapshot.
type Criteria struct {
	OwnBrand          string
	Competitors       []string
	TargetLanguage    string
	TargetCountry     string
	RequireEnrichment bool
}

// CriteriaFromSnapshot builds Criteria for a job. Social results always
// require resolved enrichment.
func CriteriaFromSnapshot(s domain.SettingsSnapshot) Criteria {
	return Criteria{
		OwnBrand:          s.OwnBrand,
		Competitors:       s.Competitors,
		TargetLanguage:    s.TargetLanguage,
		TargetCountry:     s.TargetCountry,
		RequireEnrichment: true,
	}
}

// Candidate is a result moving through a chain.
type Candidate struct {
	domain.EnrichedResult
	Score       int
	HostCountry string
}

// Stage keeps or drops one candidate.
type Stage struct {
	Name string
	Keep func(ctx context.Context, c *Candidate) bool
}

// Outcome is the result of applying the chains.
type Outcome struct {
	Kept    []Candidate
	Dropped map[string]int
}

// LanguageDetector guesses the ISO 639-1 language of text.
type LanguageDetector interface {
	Detect(text string) (code string, confidence float64)
}

// HostCountryResolver annotates a host with its serving country.
type HostCountryResolver interface {
	HostCountry(ctx context.Context, host string) (string, error)
}

// Options configures an Engine.
type Options struct {
	Detector      LanguageDetector
	Hosts         HostCountryResolver
	MinConfidence float64
	Logger        zerolog.Logger
}

// Engine builds and runs the web and social chains.
type Engine struct {
	detector      LanguageDetector
	hosts         HostCountryResolver
	minConfidence float64
	logger        zerolog.Logger
}

// NewEngine returns an Engine. A nil detector disables language checks.
func NewEngine(opts Options) *Engine {
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = 0.8
	}
	return &Engine{detector: opts.Detector, hosts: opts.Hosts, minConfidence: minConf, logger: opts.Logger}
}

func (e *Engine) chains(c Criteria) map[string][]Stage {
	lang, _ := locale.Code(c.TargetLanguage)
	if c.TargetLanguage != "" && lang == "" {
		e.logger.Debug().Str("target_language", c.TargetLanguage).Msg("filter: unsupported target language, language stage disabled")
	}
	brands := ownBrands(c)
	return map[string][]Stage{
		ChainWeb: {
			marketplaceStage(),
			webBrandStage(brands),
			shopPathStage(),
			languageStage(e, lang, webText),
			countryStage(c.TargetCountry),
			hostCountryStage(e),
			scoreStage(),
		},
		ChainSocial: {
			enrichmentStage(c.RequireEnrichment),
			socialBrandStage(brands),
			languageStage(e, lang, socialText),
		},
	}
}

func chainFor(p domain.Platform) string {
	if p.Social() {
		return ChainSocial
	}
	return ChainWeb
}

// Apply runs every result through the chain of its platform. Stages run in
// order and the first drop ends the chain for that result.
func (e *Engine) Apply(ctx context.Context, c Criteria, results []domain.EnrichedResult) Outcome {
	chains := e.chains(c)
	out := Outcome{Dropped: map[string]int{}}
	for _, r := range results {
		chain := chainFor(r.Platform)
		cand := Candidate{EnrichedResult: r}
		kept := true
		for _, stage := range chains[chain] {
			if !stage.Keep(ctx, &cand) {
				out.Dropped[chain+"/"+stage.Name]++
				metrics.FilterDrops.WithLabelValues(chain, stage.Name).Inc()
				kept = false
				break
			}
		}
		if kept {
			out.Kept = append(out.Kept, cand)
		}
	}
	e.logger.Debug().Int("in", len(results)).Int("kept", len(out.Kept)).Interface("dropped", out.Dropped).Msg("filter: applied")
	return out
}
