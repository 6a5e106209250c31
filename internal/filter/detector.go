package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

const minDetectRunes = 20

// WhatlangDetector detects language with whatlanggo. Text shorter than a
// sentence fragment is reported as unknown.
type WhatlangDetector struct{}

// Detect implements LanguageDetector.
func (WhatlangDetector) Detect(text string) (string, float64) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minDetectRunes {
		return "", 0
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391(), info.Confidence
}
