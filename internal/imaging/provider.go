// Package imaging finds a featured image for an article through an ordered
// chain of providers and watermarks it.
package imaging

import (
	"context"
	"strings"
	"unicode"

	"github.com/content-syndication-pipeline/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Image is raw image data found by a provider.
type Image struct {
	URL         string
	Data        []byte
	ContentType string
	AltText     string
}

// Provider is one link of the image chain. Find returns
// models.ErrImageUnavailable when it has nothing to offer.
type Provider interface {
	Name() models.ImageSource
	Find(ctx context.Context, req *models.ImageRequest) (*Image, error)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "is": true,
	"are": true, "was": true, "were": true, "with": true, "from": true, "of": true,
	"how": true, "why": true, "what": true, "this": true, "that": true, "its": true,
}

// SearchQuery reduces a title to up to five keywords for image search.
func SearchQuery(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	keywords := make([]string, 0, 5)
	for _, w := range words {
		if len([]rune(w)) <= 2 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == 5 {
			break
		}
	}
	return strings.Join(keywords, " ")
}

// Filename builds an ASCII file name for the upload from the title.
func Filename(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(title))
	if err != nil {
		folded = strings.ToLower(title)
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 60 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "featured-image"
	}
	return slug + ".jpg"
}
