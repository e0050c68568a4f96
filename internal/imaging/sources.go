package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/content-syndication-pipeline/internal/models"
)

// maxSearchCandidates bounds how many search hits are downloaded per provider.
const maxSearchCandidates = 5

// Inspector screens an image before it is used.
type Inspector interface {
	Inspect(ctx context.Context, imageURL string) (*models.ImageReview, error)
}

// Original uses the image that came with the source item.
type Original struct {
	dl        *Downloader
	inspector Inspector
}

// NewOriginal returns the provider for the item's own image. A nil
// inspector accepts every image that downloads.
func NewOriginal(dl *Downloader, inspector Inspector) *Original {
	return &Original{dl: dl, inspector: inspector}
}

// Name identifies the provider.
func (p *Original) Name() models.ImageSource { return models.ImageSourceOriginal }

// Find downloads the original image once the inspector, if any, calls it
// clean. An inspection error counts as a rejection.
func (p *Original) Find(ctx context.Context, req *models.ImageRequest) (*Image, error) {
	if req.OriginalImageURL == "" {
		return nil, models.ErrImageUnavailable
	}
	if p.inspector != nil {
		review, err := p.inspector.Inspect(ctx, req.OriginalImageURL)
		if err != nil {
			return nil, fmt.Errorf("inspect original image: %w", err)
		}
		if !review.Clean {
			return nil, fmt.Errorf("original image rejected: %s", review.Reason)
		}
	}
	data, ct, err := p.dl.Get(ctx, req.OriginalImageURL, nil)
	if err != nil {
		return nil, err
	}
	return &Image{URL: req.OriginalImageURL, Data: data, ContentType: ct, AltText: req.Title}, nil
}

// Bing scrapes Bing image search using the site's session cookie.
type Bing struct {
	dl      *Downloader
	baseURL string
}

// NewBing returns the Bing image search provider. An empty baseURL uses
// www.bing.com.
func NewBing(dl *Downloader, baseURL string) *Bing {
	if baseURL == "" {
		baseURL = "https://www.bing.com"
	}
	return &Bing{dl: dl, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name identifies the provider.
func (p *Bing) Name() models.ImageSource { return models.ImageSourceBing }

// Find searches for the article title. It needs the site's Bing cookie.
func (p *Bing) Find(ctx context.Context, req *models.ImageRequest) (*Image, error) {
	if req.Site == nil || !req.Site.HasImageCookie() {
		return nil, models.ErrImageUnavailable
	}
	query := SearchQuery(req.Title)
	if query == "" {
		return nil, models.ErrImageUnavailable
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("qft", "+filterui:imagesize-large+filterui:aspect-wide")
	q.Set("form", "IRFLTR")
	httpReq, err := http.NewRequest(http.MethodGet, p.baseURL+"/images/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Cookie", req.Site.ImageCookie)
	httpReq.Header.Set("Accept", "text/html")

	body, err := p.dl.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse bing results: %w", err)
	}

	// Each result anchor carries a JSON "m" attribute with the media URL.
	var candidates []string
	doc.Find("a.iusc").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var meta struct {
			MURL string `json:"murl"`
		}
		if raw, ok := s.Attr("m"); ok && json.Unmarshal([]byte(raw), &meta) == nil && meta.MURL != "" {
			candidates = append(candidates, meta.MURL)
		}
		return len(candidates) < maxSearchCandidates
	})
	return p.dl.first(ctx, candidates, req.Title)
}

// Pexels searches the Pexels stock photo API.
type Pexels struct {
	dl      *Downloader
	apiKey  string
	baseURL string
}

// NewPexels returns the Pexels provider. An empty baseURL uses the public API.
func NewPexels(dl *Downloader, apiKey, baseURL string) *Pexels {
	if baseURL == "" {
		baseURL = "https://api.pexels.com"
	}
	return &Pexels{dl: dl, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name identifies the provider.
func (p *Pexels) Name() models.ImageSource { return models.ImageSourcePexels }

// Find downloads the first usable landscape hit for the title keywords.
func (p *Pexels) Find(ctx context.Context, req *models.ImageRequest) (*Image, error) {
	query := SearchQuery(req.Title)
	if p.apiKey == "" || query == "" {
		return nil, models.ErrImageUnavailable
	}
	q := url.Values{"query": {query}, "per_page": {"5"}, "orientation": {"landscape"}}
	httpReq, err := http.NewRequest(http.MethodGet, p.baseURL+"/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", p.apiKey)

	body, err := p.dl.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Photos []struct {
			Alt string `json:"alt"`
			Src struct {
				Large string `json:"large"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pexels response: %w", err)
	}
	urls := make([]string, 0, len(resp.Photos))
	for _, ph := range resp.Photos {
		urls = append(urls, ph.Src.Large)
	}
	img, err := p.dl.first(ctx, urls, req.Title)
	if err == nil {
		for _, ph := range resp.Photos {
			if ph.Src.Large == img.URL && ph.Alt != "" {
				img.AltText = ph.Alt
			}
		}
	}
	return img, err
}

// Unsplash searches the Unsplash stock photo API.
type Unsplash struct {
	dl        *Downloader
	accessKey string
	baseURL   string
}

// NewUnsplash returns the Unsplash provider. An empty baseURL uses the public API.
func NewUnsplash(dl *Downloader, accessKey, baseURL string) *Unsplash {
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &Unsplash{dl: dl, accessKey: accessKey, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name identifies the provider.
func (p *Unsplash) Name() models.ImageSource { return models.ImageSourceUnsplash }

// Find downloads the first Unsplash result that loads.
func (p *Unsplash) Find(ctx context.Context, req *models.ImageRequest) (*Image, error) {
	query := SearchQuery(req.Title)
	if p.accessKey == "" || query == "" {
		return nil, models.ErrImageUnavailable
	}
	q := url.Values{"query": {query}, "per_page": {"5"}, "orientation": {"landscape"}}
	httpReq, err := http.NewRequest(http.MethodGet, p.baseURL+"/search/photos?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Client-ID "+p.accessKey)
	httpReq.Header.Set("Accept-Version", "v1")

	body, err := p.dl.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []struct {
			AltDescription string `json:"alt_description"`
			URLs           struct {
				Regular string `json:"regular"`
			} `json:"urls"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode unsplash response: %w", err)
	}
	urls := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		urls = append(urls, r.URLs.Regular)
	}
	img, err := p.dl.first(ctx, urls, req.Title)
	if err == nil {
		for _, r := range resp.Results {
			if r.URLs.Regular == img.URL && r.AltDescription != "" {
				img.AltText = r.AltDescription
			}
		}
	}
	return img, err
}

// Generator creates an image from a prompt and returns either a URL or
// base64 data.
type Generator interface {
	GenerateImage(ctx context.Context, model, prompt, size string) (url string, b64 string, err error)
}

// Flux generates an image with a text-to-image model.
type Flux struct {
	dl    *Downloader
	gen   Generator
	model string
	size  string
}

// NewFlux returns the generating provider, the last resort of the chain.
func NewFlux(dl *Downloader, gen Generator, model, size string) *Flux {
	return &Flux{dl: dl, gen: gen, model: model, size: size}
}

// Name identifies the provider.
func (p *Flux) Name() models.ImageSource { return models.ImageSourceFlux }

// Find generates an image from a prompt built from the title.
func (p *Flux) Find(ctx context.Context, req *models.ImageRequest) (*Image, error) {
	subject := SearchQuery(req.Title)
	if subject == "" {
		subject = req.Title
	}
	prompt := "Professional photograph, high quality, editorial style, no text, " + subject

	imageURL, b64, err := p.gen.GenerateImage(ctx, p.model, prompt, p.size)
	if err != nil {
		return nil, err
	}
	if b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode generated image: %w", err)
		}
		return &Image{Data: data, ContentType: http.DetectContentType(data), AltText: req.Title}, nil
	}
	if imageURL == "" {
		return nil, models.ErrImageUnavailable
	}
	data, ct, err := p.dl.Get(ctx, imageURL, nil)
	if err != nil {
		return nil, err
	}
	return &Image{URL: imageURL, Data: data, ContentType: ct, AltText: req.Title}, nil
}

// first downloads the first candidate URL that yields an image.
func (d *Downloader) first(ctx context.Context, urls []string, alt string) (*Image, error) {
	var errs []error
	for i, u := range urls {
		if i == maxSearchCandidates {
			break
		}
		if u == "" {
			continue
		}
		data, ct, err := d.Get(ctx, u, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return &Image{URL: u, Data: data, ContentType: ct, AltText: alt}, nil
	}
	if len(errs) == 0 {
		return nil, models.ErrImageUnavailable
	}
	return nil, errors.Join(errs...)
}
