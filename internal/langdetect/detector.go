// Package langdetect identifies the language an article is written in.
package langdetect

import (
	"strings"

	"github.com/content-syndication-pipeline/internal/ingest"
	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// sampleRunes caps how much of an article is scored.
const sampleRunes = 2000

// Detector wraps a lingua detector built once for all supported languages.
type Detector struct {
	lingua lingua.LanguageDetector
}

// New builds a Detector. Low accuracy mode keeps the loaded models small,
// which is plenty for article-length text.
func New() *Detector {
	return &Detector{
		lingua: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build(),
	}
}

// Detect returns the BCP-47 tag of the article's language, or "" when the
// text is too short or ambiguous to call.
func (d *Detector) Detect(title, body string) string {
	text := sample(strings.TrimSpace(title + "\n" + ingest.TextFromHTML(body)))
	if text == "" {
		return ""
	}
	lang, ok := d.lingua.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return Normalize(lang.IsoCode639_1().String())
}

// Normalize canonicalises an ISO 639-1 code as a BCP-47 tag.
func Normalize(code string) string {
	tag, err := language.Parse(strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return ""
	}
	return tag.String()
}

func sample(s string) string {
	r := []rune(s)
	if len(r) <= sampleRunes {
		return s
	}
	return string(r[:sampleRunes])
}
