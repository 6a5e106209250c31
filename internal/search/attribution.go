package search

import (
	"strings"

	"affiliatescout/internal/brand"
	"affiliatescout/internal/domain"
)

// Attributor maps a result's originating query back to the topic or
// competitor it was built from.
type Attributor struct {
	byText      map[string]domain.BuiltQuery
	topics      []string
	competitors []string
}

// NewAttributor indexes queries by text.
func NewAttributor(queries []domain.BuiltQuery, topics, competitors []string) *Attributor {
	a := &Attributor{byText: make(map[string]domain.BuiltQuery, len(queries)), topics: topics, competitors: competitors}
	for _, q := range queries {
		key := normalizeQuery(q.Text)
		if _, ok := a.byText[key]; !ok {
			a.byText[key] = q
		}
	}
	return a
}

// Attribute returns the provenance of queryText. When the provider rewrote
// the text, the first topic and then the first competitor brand contained in
// it wins; the fallback is the first topic.
func (a *Attributor) Attribute(queryText string) (domain.SourceType, string) {
	if q, ok := a.byText[normalizeQuery(queryText)]; ok {
		return q.SourceType, q.SourceValue
	}
	lower := strings.ToLower(queryText)
	for _, t := range a.topics {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return domain.SourceKeyword, t
		}
	}
	for _, c := range a.competitors {
		if name := brand.Extract(c); name != "" && strings.Contains(lower, name) {
			return domain.SourceCompetitor, c
		}
	}
	if len(a.topics) > 0 {
		return domain.SourceKeyword, a.topics[0]
	}
	if len(a.competitors) > 0 {
		return domain.SourceCompetitor, a.competitors[0]
	}
	return domain.SourceKeyword, ""
}

func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
