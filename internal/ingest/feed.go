package ingest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/mmcdole/gofeed"
)

// FeedFetcher lists items of RSS, Atom and JSON feeds.
type FeedFetcher struct {
	parser *gofeed.Parser
}

func NewFeedFetcher(timeout time.Duration, userAgent string) *FeedFetcher {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = userAgent
	return &FeedFetcher{parser: p}
}

// List parses the feed at the source URL. Items keep feed order.
func (f *FeedFetcher) List(ctx context.Context, source *models.Source) ([]*models.Candidate, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, &models.FetchError{SourceID: source.ID, URL: source.URL, Err: err}
	}

	base, _ := url.Parse(source.URL)
	items := make([]*models.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if c := candidateFromItem(base, item); c != nil {
			items = append(items, c)
		}
	}
	return items, nil
}

func candidateFromItem(base *url.URL, item *gofeed.Item) *models.Candidate {
	title := collapse(item.Title)
	if title == "" {
		return nil
	}

	html := item.Content
	if strings.TrimSpace(html) == "" {
		html = item.Description
	}

	link := strings.TrimSpace(item.Link)
	if link != "" && base != nil {
		if abs := resolve(base, link); abs != "" {
			link = abs
		}
	}

	externalID := strings.TrimSpace(item.GUID)
	if externalID == "" {
		externalID = link
	}

	c := &models.Candidate{
		ExternalID:  externalID,
		URL:         link,
		Title:       title,
		Body:        TextFromHTML(html),
		ImageURL:    itemImage(item, html),
		Categories:  item.Categories,
		PublishedAt: item.PublishedParsed,
	}
	if base != nil && c.ImageURL != "" {
		c.ImageURL = resolve(base, c.ImageURL)
	}
	return c
}

// itemImage looks for an image in the item's image field, media extensions,
// image enclosures and finally the first <img> of the content.
func itemImage(item *gofeed.Item, html string) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if u := ext.Attrs["url"]; u != "" {
					if medium := ext.Attrs["medium"]; medium == "" || medium == "image" {
						return u
					}
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return firstImage(html)
}
