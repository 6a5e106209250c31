// Package query turns topics and competitors into localized provider queries.
package query

import (
	"fmt"
	"strings"
	"time"

	"affiliatescout/internal/brand"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/locale"
)

// webExclusions keeps marketplaces and aggregators out of web results.
var webExclusions = []string{
	"amazon.de", "amazon.com", "ebay.de", "ebay.com", "reddit.com",
	"idealo.de", "otto.de", "zalando.de", "etsy.com", "aliexpress.com",
}

// Request holds the inputs of one build.
type Request struct {
	Topics           []string
	Competitors      []string
	Platforms        []domain.Platform
	Language         string
	AffiliateSignals bool
	Now              time.Time
}

// Build returns the de-duplicated query set for req. Identical texts are
// emitted once and keep the provenance of their first occurrence.
func Build(req Request) []domain.BuiltQuery {
	terms := locale.Lookup(req.Language)
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	b := &builder{terms: terms, year: now.Year(), seen: map[string]struct{}{}}
	for _, topic := range req.Topics {
		term := strings.TrimSpace(topic)
		if term == "" {
			continue
		}
		b.forTerm(term, domain.SourceKeyword, term, req.Platforms, req.AffiliateSignals)
	}
	for _, competitor := range req.Competitors {
		value := strings.TrimSpace(competitor)
		name := brand.Extract(value)
		if name == "" {
			continue
		}
		b.forTerm(name, domain.SourceCompetitor, value, req.Platforms, req.AffiliateSignals)
	}
	return b.out
}

type builder struct {
	terms locale.Terms
	year  int
	seen  map[string]struct{}
	out   []domain.BuiltQuery
}

func (b *builder) forTerm(term string, source domain.SourceType, value string, platforms []domain.Platform, signals bool) {
	for _, p := range platforms {
		if p.Social() {
			b.add(Social(b.terms, term, p), p, source, value)
			if p == domain.PlatformInstagram {
				b.add(InstagramBoost(b.terms, term), p, source, value)
			}
			continue
		}
		b.add(Web(b.terms, term, source == domain.SourceCompetitor), p, source, value)
		if signals {
			for _, text := range Signals(b.terms, term, b.year) {
				b.add(text, p, source, value)
			}
		}
	}
}

func (b *builder) add(text string, p domain.Platform, source domain.SourceType, value string) {
	if _, ok := b.seen[text]; ok {
		return
	}
	b.seen[text] = struct{}{}
	b.out = append(b.out, domain.BuiltQuery{Text: text, Platform: p, SourceType: source, SourceValue: value})
}

// Social builds "{term} r1 r2 r3 site:{domain}".
func Social(t locale.Terms, term string, p domain.Platform) string {
	parts := append([]string{term}, t.Review...)
	parts = append(parts, "site:"+p.SiteDomain())
	return strings.Join(parts, " ")
}

// InstagramBoost builds the influencer variant for Instagram.
func InstagramBoost(t locale.Terms, term string) string {
	parts := append([]string{term}, t.Influencer...)
	parts = append(parts, "site:"+domain.PlatformInstagram.SiteDomain())
	return strings.Join(parts, " ")
}

// Web builds the quoted OR query with marketplace exclusions. The competitor
// variant swaps the last web term for the discount term.
func Web(t locale.Terms, term string, competitor bool) string {
	phrases := make([]string, 0, len(t.Web))
	for i, w := range t.Web {
		if competitor && i == len(t.Web)-1 {
			w = t.Discount
		}
		phrases = append(phrases, `"`+term+" "+w+`"`)
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(phrases, " OR "))
	for _, site := range webExclusions {
		sb.WriteString(" -site:")
		sb.WriteString(site)
	}
	return sb.String()
}

// Signals builds the affiliate-signal queries for one term.
func Signals(t locale.Terms, term string, year int) []string {
	out := make([]string, 0, len(t.Disclosure)+len(t.Creator)+len(t.Comparison)+len(t.BloggerRoles)+1)
	for _, phrase := range t.Disclosure {
		out = append(out, fmt.Sprintf(`"%s" %s`, phrase, term))
	}
	for _, phrase := range t.Creator {
		out = append(out, fmt.Sprintf(`"%s" %s`, phrase, term))
	}
	for _, cmp := range t.Comparison {
		out = append(out, fmt.Sprintf("%s %s %d", cmp, term, year))
	}
	if len(t.Comparison) > 0 {
		out = append(out, fmt.Sprintf("%s %s %d", t.Comparison[0], term, year-1))
	}
	for _, role := range t.BloggerRoles {
		out = append(out, role+" "+term)
	}
	return out
}
