package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/content-syndication-pipeline/internal/models"
)

// Selector fallbacks when a source leaves scrape_config empty.
const (
	defaultTitleSelector   = "h1"
	defaultContentSelector = "article"
	defaultImageSelector   = "article img"
)

// PageFetcher scrapes HTML pages. Without a link selector the source URL
// itself is the single article; with one, the source page is an index whose
// matching links are the articles.
type PageFetcher struct {
	client    *http.Client
	userAgent string
}

func NewPageFetcher(timeout time.Duration, userAgent string) *PageFetcher {
	return &PageFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// List returns article candidates with only URL and external id set; the
// poller hydrates the ones it keeps.
func (p *PageFetcher) List(ctx context.Context, source *models.Source) ([]*models.Candidate, error) {
	if source.ScrapeConfig.LinkSelector == "" {
		return []*models.Candidate{{ExternalID: source.URL, URL: source.URL}}, nil
	}

	doc, base, err := p.document(ctx, source.URL)
	if err != nil {
		return nil, &models.FetchError{SourceID: source.ID, URL: source.URL, Err: err}
	}

	seen := make(map[string]bool)
	var items []*models.Candidate
	doc.Find(source.ScrapeConfig.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			href, _ = s.Find("a[href]").First().Attr("href")
		}
		link := resolve(base, href)
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		items = append(items, &models.Candidate{ExternalID: link, URL: link, Title: collapse(s.Text())})
	})
	return items, nil
}

// Hydrate loads the article page and fills title, body and image.
func (p *PageFetcher) Hydrate(ctx context.Context, source *models.Source, c *models.Candidate) error {
	doc, base, err := p.document(ctx, c.URL)
	if err != nil {
		return &models.FetchError{SourceID: source.ID, URL: c.URL, Err: err}
	}
	cfg := source.ScrapeConfig

	title := collapse(doc.Find(or(cfg.TitleSelector, defaultTitleSelector)).First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
		title = collapse(title)
	}
	if title == "" {
		title = collapse(doc.Find("title").First().Text())
	}
	if title == "" {
		title = c.Title
	}

	content := doc.Find(or(cfg.ContentSelector, defaultContentSelector)).First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	body := selectionText(content)

	if title == "" || body == "" {
		return &models.FetchError{SourceID: source.ID, URL: c.URL, Err: errors.New("no title or content found")}
	}

	image, _ := doc.Find(or(cfg.ImageSelector, defaultImageSelector)).First().Attr("src")
	if image == "" {
		image, _ = doc.Find(`meta[property="og:image"]`).Attr("content")
	}

	c.Title = title
	c.Body = body
	c.ImageURL = resolve(base, image)
	return nil
}

func (p *PageFetcher) document(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, resp.Request.URL, nil
}

func or(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
