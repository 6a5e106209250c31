package filter

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"affiliatescout/internal/brand"
	"affiliatescout/internal/locale"
)

var marketplaceDomains = []string{
	"amazon.com", "amazon.de", "amazon.co.uk", "amazon.fr", "amazon.es", "amazon.it", "amazon.nl",
	"ebay.com", "ebay.de", "ebay.co.uk", "reddit.com", "idealo.de", "otto.de", "zalando.de",
	"etsy.com", "aliexpress.com", "alibaba.com", "walmart.com", "temu.com", "kaufland.de",
	"bol.com", "cdiscount.com", "pinterest.com", "facebook.com", "quora.com", "wikipedia.org",
	"trustpilot.com",
}

var marketplaceBrands = map[string]struct{}{
	"amazon": {}, "ebay": {}, "aliexpress": {}, "alibaba": {}, "idealo": {}, "zalando": {},
	"etsy": {}, "walmart": {}, "temu": {}, "kaufland": {},
}

var shopPathPattern = regexp.MustCompile(`(?i)(/(cart|checkout|basket|warenkorb|kasse|panier|carrito|carrello|winkelwagen)(/|$))|(/(shop|store|products?|produkte?|collections)/)|(/dp/)|(/gp/product)|([?&]add-to-cart=)`)

func marketplaceStage() Stage {
	return Stage{Name: "marketplace", Keep: func(_ context.Context, c *Candidate) bool {
		host := c.Domain
		for _, d := range marketplaceDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return false
			}
		}
		_, blocked := marketplaceBrands[brand.Extract(host)]
		return !blocked
	}}
}

func ownBrands(c Criteria) []string {
	var out []string
	for _, v := range append([]string{c.OwnBrand}, c.Competitors...) {
		if name := brand.Extract(v); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func webBrandStage(brands []string) Stage {
	return Stage{Name: "own_brand", Keep: func(_ context.Context, c *Candidate) bool {
		name := brand.Extract(c.Domain)
		for _, b := range brands {
			if name == b {
				return false
			}
		}
		return true
	}}
}

func shopPathStage() Stage {
	return Stage{Name: "shop_path", Keep: func(_ context.Context, c *Candidate) bool {
		u, err := url.Parse(c.URL)
		if err != nil {
			return true
		}
		target := u.EscapedPath()
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
		return !shopPathPattern.MatchString(target)
	}}
}

func webText(c *Candidate) string {
	return c.Title + " " + c.Snippet
}

func socialText(c *Candidate) string {
	if c.Enrichment.Profile == nil {
		return ""
	}
	return c.Enrichment.Profile.Bio
}

// languageStage drops only on a confident detection that disagrees with the
// target. Unknown targets and low confidence pass.
func languageStage(e *Engine, target string, text func(*Candidate) string) Stage {
	return Stage{Name: "language", Keep: func(_ context.Context, c *Candidate) bool {
		if target == "" || e.detector == nil {
			return true
		}
		code, confidence := e.detector.Detect(text(c))
		if code == "" || confidence < e.minConfidence {
			return true
		}
		return code == target
	}}
}

// countryStage drops a result only when its TLD is a country code that
// differs from the target country.
func countryStage(target string) Stage {
	target = strings.ToLower(strings.TrimSpace(target))
	return Stage{Name: "country", Keep: func(_ context.Context, c *Candidate) bool {
		if target == "" {
			return true
		}
		cc, ok := TLDCountry(c.Domain)
		if !ok {
			return true
		}
		return cc == target
	}}
}

// hostCountryStage annotates generic-TLD results with the country their host
// resolves to. It never drops.
func hostCountryStage(e *Engine) Stage {
	return Stage{Name: "host_country", Keep: func(ctx context.Context, c *Candidate) bool {
		if cc, ok := TLDCountry(c.Domain); ok {
			c.HostCountry = cc
			return true
		}
		if e.hosts == nil {
			return true
		}
		cc, err := e.hosts.HostCountry(ctx, c.Domain)
		if err != nil {
			e.logger.Debug().Err(err).Str("host", c.Domain).Msg("filter: host country lookup failed")
			return true
		}
		c.HostCountry = strings.ToLower(cc)
		return true
	}}
}

func scoreStage() Stage {
	return Stage{Name: "score", Keep: func(_ context.Context, c *Candidate) bool {
		c.Score = Score(c.URL, webText(c))
		return true
	}}
}

func enrichmentStage(required bool) Stage {
	return Stage{Name: "enrichment", Keep: func(_ context.Context, c *Candidate) bool {
		return !required || c.Enrichment.IsResolved()
	}}
}

func socialBrandStage(brands []string) Stage {
	return Stage{Name: "own_brand", Keep: func(_ context.Context, c *Candidate) bool {
		p := c.Enrichment.Profile
		if p == nil {
			return true
		}
		for _, b := range brands {
			if brand.Matches(p.Handle, b) || brand.Matches(p.DisplayName, b) {
				return false
			}
		}
		return true
	}}
}

// Score rates affiliate signals in text and link on a 0-100 scale.
func Score(link, text string) int {
	lower := strings.ToLower(text)
	s := locale.Signals()
	score := 0
	if containsAny(lower, s.Disclosure) {
		score += 40
	}
	if containsAny(lower, s.Creator) {
		score += 30
	}
	if containsAny(lower, s.Comparison) {
		score += 20
	}
	if strings.Contains(strings.ToLower(link), "blog") || strings.Contains(lower, "blog") {
		score += 10
	}
	return min(score, 100)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsWord(text, p) {
			return true
		}
	}
	return false
}

// containsWord matches phrase only at letter boundaries, so "best" does not
// match inside "bestellen".
func containsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !unicode.IsLetter(before)) && (end == len(text) || !unicode.IsLetter(after)) {
			return true
		}
		offset = start + 1
	}
	return false
}

// genericCCTLDs are country codes commonly used as generic domains.
var genericCCTLDs = map[string]struct{}{
	"io": {}, "co": {}, "me": {}, "tv": {}, "ai": {}, "fm": {}, "ly": {}, "to": {},
	"cc": {}, "ws": {}, "gg": {}, "so": {}, "sh": {}, "eu": {},
}

// TLDCountry returns the ISO country implied by host's TLD.
func TLDCountry(host string) (string, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	i := strings.LastIndex(host, ".")
	if i < 0 {
		return "", false
	}
	tld := host[i+1:]
	if len(tld) != 2 {
		return "", false
	}
	if _, generic := genericCCTLDs[tld]; generic {
		return "", false
	}
	if tld == "uk" {
		return "gb", true
	}
	return tld, true
}
