package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const rewriteSystemPrompt = `You are an expert journalist, editor and translator.
Rewrite the article you are given so it reads as original, SEO-optimized and professional content.
Preserve every fact, name and figure. Remove promotional content, bylines and calls to action.
Respond with a single JSON object and nothing else.`

// Rewriter transforms articles with a primary model and falls back to a
// second model when the primary fails.
type Rewriter struct {
	client   *Client
	model    string
	fallback string
	log      zerolog.Logger
}

func NewRewriter(client *Client, model, fallback string, log zerolog.Logger) *Rewriter {
	return &Rewriter{
		client:   client,
		model:    model,
		fallback: fallback,
		log:      log.With().Str("component", "rewriter").Logger(),
	}
}

// Process rewrites the article into the target language.
func (r *Rewriter) Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResult, error) {
	prompt := buildRewritePrompt(req)

	result, err := r.run(ctx, r.model, prompt)
	if err == nil {
		return result, nil
	}
	if r.fallback == "" || r.fallback == r.model || ctx.Err() != nil {
		return nil, &models.ProcessingError{Model: r.model, Err: err}
	}

	r.log.Warn().Err(err).Str("model", r.model).Str("fallback", r.fallback).Msg("Primary model failed, using fallback")
	result, ferr := r.run(ctx, r.fallback, prompt)
	if ferr != nil {
		return nil, &models.ProcessingError{Model: r.fallback, Err: errors.Join(err, ferr)}
	}
	return result, nil
}

func (r *Rewriter) run(ctx context.Context, model, prompt string) (*models.ProcessResult, error) {
	content, err := r.client.Chat(ctx, model, rewriteSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var out struct {
		Title           string `json:"title"`
		Content         string `json:"content"`
		MetaDescription string `json:"meta_description"`
		CategoryID      any    `json:"category_id"`
	}
	if err := decodeObject(content, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Content) == "" {
		return nil, errors.New("response missing title or content")
	}

	return &models.ProcessResult{
		Title:           strings.TrimSpace(out.Title),
		Body:            strings.TrimSpace(out.Content),
		MetaDescription: truncateRunes(strings.TrimSpace(out.MetaDescription), 160),
		Category:        categoryString(out.CategoryID),
		Model:           model,
	}, nil
}

func buildRewritePrompt(req *models.ProcessRequest) string {
	lang := LanguageName(req.TargetLanguage)

	var b strings.Builder
	switch {
	case req.SourceLanguage == "":
		fmt.Fprintf(&b, "Rewrite this article in %s. If it is written in another language, translate it.\n\n", lang)
	case sameLanguage(req.SourceLanguage, req.TargetLanguage):
		fmt.Fprintf(&b, "Rewrite this %s article in %s.\n\n", LanguageName(req.SourceLanguage), lang)
	default:
		fmt.Fprintf(&b, "Translate this article from %s to %s and rewrite it.\n\n", LanguageName(req.SourceLanguage), lang)
	}
	fmt.Fprintf(&b, "Title: %s\n\nContent:\n%s\n\n", req.Title, req.Body)

	if len(req.Categories) > 0 {
		ids := make([]string, 0, len(req.Categories))
		for id := range req.Categories {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		pairs := make([]string, 0, len(ids))
		for _, id := range ids {
			pairs = append(pairs, id+": "+req.Categories[id])
		}
		fmt.Fprintf(&b, "Select the most appropriate category from this list (ID: Name): %s\n\n", strings.Join(pairs, ", "))
	}

	fmt.Fprintf(&b, `Respond with JSON only:
{
  "title": "SEO-optimized title in %[1]s",
  "content": "full rewritten article in %[1]s, formatted with paragraphs",
  "meta_description": "meta description under 160 characters in %[1]s",
  "category_id": "the chosen category ID, or empty"
}`, lang)
	return b.String()
}

// LanguageName returns the English display name of a BCP-47 tag, or the
// tag itself when unknown.
func LanguageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

// sameLanguage compares base languages, so en-GB matches en.
func sameLanguage(a, b string) bool {
	ta, err := language.Parse(a)
	if err != nil {
		return strings.EqualFold(a, b)
	}
	tb, err := language.Parse(b)
	if err != nil {
		return strings.EqualFold(a, b)
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

// categoryString accepts ids returned as strings or numbers.
func categoryString(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return fmt.Sprintf("%d", int64(c))
	default:
		return ""
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
