// Package locale holds the per-language vocabulary used to build search
// queries and to score affiliate signals.
package locale

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultCode is used whenever a requested language has no table entry.
const DefaultCode = "en"

// Terms is the complete vocabulary for one language.
type Terms struct {
	Code         string
	Review       []string
	Web          []string
	Discount     string
	Influencer   []string
	Disclosure   []string
	Creator      []string
	Comparison   []string
	BloggerRoles []string
}

var table = map[string]Terms{
	"en": {
		Code:         "en",
		Review:       []string{"review", "experience", "recommendation"},
		Web:          []string{"review", "experience", "recommendation", "blog"},
		Discount:     "coupon",
		Influencer:   []string{"influencer", "recommended"},
		Disclosure:   []string{"affiliate link", "sponsored", "paid partnership", "i may earn a commission"},
		Creator:      []string{"i tested", "my experience with", "i tried"},
		Comparison:   []string{"best", "vs", "alternatives"},
		BloggerRoles: []string{"blogger", "reviewer", "content creator"},
	},
	"de": {
		Code:         "de",
		Review:       []string{"erfahrung", "test", "bewertung"},
		Web:          []string{"erfahrung", "test", "bewertung", "blog"},
		Discount:     "gutschein",
		Influencer:   []string{"influencer", "empfehlung"},
		Disclosure:   []string{"werbung", "affiliate-links", "anzeige"},
		Creator:      []string{"ich habe getestet", "meine erfahrung mit", "ich habe ausprobiert"},
		Comparison:   []string{"beste", "vergleich", "testsieger"},
		BloggerRoles: []string{"blogger", "testbericht", "erfahrungsbericht"},
	},
	"fr": {
		Code:         "fr",
		Review:       []string{"avis", "test", "critique"},
		Web:          []string{"avis", "test", "critique", "blog"},
		Discount:     "code promo",
		Influencer:   []string{"influenceur", "recommandation"},
		Disclosure:   []string{"lien affilié", "sponsorisé", "partenariat rémunéré"},
		Creator:      []string{"j'ai testé", "mon avis sur", "j'ai essayé"},
		Comparison:   []string{"meilleur", "comparatif", "classement"},
		BloggerRoles: []string{"blogueur", "blogueuse", "testeur"},
	},
	"es": {
		Code:         "es",
		Review:       []string{"opinión", "reseña", "experiencia"},
		Web:          []string{"opinión", "reseña", "experiencia", "blog"},
		Discount:     "código descuento",
		Influencer:   []string{"influencer", "recomendación"},
		Disclosure:   []string{"enlace de afiliado", "patrocinado", "colaboración pagada"},
		Creator:      []string{"lo he probado", "mi experiencia con", "he usado"},
		Comparison:   []string{"mejores", "comparativa", "alternativas"},
		BloggerRoles: []string{"bloguero", "bloguera", "reseñador"},
	},
	"it": {
		Code:         "it",
		Review:       []string{"recensione", "opinioni", "esperienza"},
		Web:          []string{"recensione", "opinioni", "esperienza", "blog"},
		Discount:     "codice sconto",
		Influencer:   []string{"influencer", "consigliato"},
		Disclosure:   []string{"link di affiliazione", "sponsorizzato", "collaborazione retribuita"},
		Creator:      []string{"ho provato", "la mia esperienza con", "ho testato"},
		Comparison:   []string{"migliori", "classifica", "confronto"},
		BloggerRoles: []string{"blogger", "recensore", "tester"},
	},
	"nl": {
		Code:         "nl",
		Review:       []string{"ervaring", "review", "beoordeling"},
		Web:          []string{"ervaring", "review", "beoordeling", "blog"},
		Discount:     "kortingscode",
		Influencer:   []string{"influencer", "aanrader"},
		Disclosure:   []string{"affiliate link", "gesponsord", "betaalde samenwerking"},
		Creator:      []string{"ik heb getest", "mijn ervaring met", "ik heb geprobeerd"},
		Comparison:   []string{"beste", "vergelijking", "alternatieven"},
		BloggerRoles: []string{"blogger", "recensent", "tester"},
	},
}

// aliases maps lowercased language names (English and native) to codes.
var aliases = buildAliases()

func buildAliases() map[string]string {
	out := make(map[string]string, len(table)*2)
	english := display.English.Languages()
	for code := range table {
		tag := language.MustParse(code)
		out[code] = code
		if name := english.Name(tag); name != "" {
			out[strings.ToLower(name)] = code
		}
		if name := display.Self.Name(tag); name != "" {
			out[strings.ToLower(name)] = code
		}
	}
	return out
}

// Code resolves a language name, endonym, ISO code or BCP-47 tag to a table
// code. ok is false when the language has no entry.
func Code(lang string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(lang))
	if key == "" {
		return "", false
	}
	if code, ok := aliases[key]; ok {
		return code, true
	}
	tag, err := language.Parse(key)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if _, ok := table[base.String()]; ok {
		return base.String(), true
	}
	return "", false
}

// Lookup returns the full entry for lang, or the English entry when lang is
// unknown. Entries are never mixed.
func Lookup(lang string) Terms {
	code, ok := Code(lang)
	if !ok {
		code = DefaultCode
	}
	return table[code].clone()
}

// Supported lists the table codes.
func Supported() []string {
	out := make([]string, 0, len(table))
	for _, code := range []string{"en", "de", "fr", "es", "it", "nl"} {
		if _, ok := table[code]; ok {
			out = append(out, code)
		}
	}
	return out
}

// SignalPhrases is the union of every language's scoring vocabulary.
type SignalPhrases struct {
	Disclosure []string
	Creator    []string
	Comparison []string
}

var signals = buildSignals()

func buildSignals() SignalPhrases {
	var s SignalPhrases
	for _, code := range Supported() {
		t := table[code]
		s.Disclosure = append(s.Disclosure, t.Disclosure...)
		s.Creator = append(s.Creator, t.Creator...)
		s.Comparison = append(s.Comparison, t.Comparison...)
	}
	return s
}

// Signals returns the cross-language affiliate signal vocabulary.
func Signals() SignalPhrases {
	return SignalPhrases{
		Disclosure: append([]string(nil), signals.Disclosure...),
		Creator:    append([]string(nil), signals.Creator...),
		Comparison: append([]string(nil), signals.Comparison...),
	}
}

func (t Terms) clone() Terms {
	c := t
	c.Review = append([]string(nil), t.Review...)
	c.Web = append([]string(nil), t.Web...)
	c.Influencer = append([]string(nil), t.Influencer...)
	c.Disclosure = append([]string(nil), t.Disclosure...)
	c.Creator = append([]string(nil), t.Creator...)
	c.Comparison = append([]string(nil), t.Comparison...)
	c.BloggerRoles = append([]string(nil), t.BloggerRoles...)
	return c
}
