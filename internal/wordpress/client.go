// Package wordpress publishes posts through the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/rs/zerolog"
)

const apiPath = "/wp-json/wp/v2"

// Client publishes to any site using the site's own credentials.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "wordpress").Logger(),
	}
}

type postRequest struct {
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Status        string            `json:"status"`
	Excerpt       string            `json:"excerpt,omitempty"`
	Categories    []int64           `json:"categories,omitempty"`
	FeaturedMedia int64             `json:"featured_media,omitempty"`
	Author        int64             `json:"author,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

type postResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type userResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Publish uploads the featured image, if any, then creates the post.
func (c *Client) Publish(ctx context.Context, site *models.Site, post *models.Post) (*models.PublishResult, error) {
	result := &models.PublishResult{}

	if post.Image.Found() {
		mediaID, err := c.uploadMedia(ctx, site, post.Image)
		if err != nil {
			var authErr *models.PublishAuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			// A post without a featured image beats no post.
			c.log.Warn().Err(err).Str("site_id", site.ID).Msg("Media upload failed, publishing without image")
		}
		result.MediaID = mediaID
	}

	req := postRequest{
		Title:         post.Title,
		Content:       post.Body,
		Status:        "publish",
		Excerpt:       post.MetaDescription,
		FeaturedMedia: result.MediaID,
		Author:        post.AuthorID,
	}
	if post.CategoryID > 0 {
		req.Categories = []int64{post.CategoryID}
	}
	if post.MetaDescription != "" {
		req.Meta = map[string]string{
			"_yoast_wpseo_metadesc": post.MetaDescription,
			"rank_math_description": post.MetaDescription,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &models.PublishTransientError{Err: fmt.Errorf("encode post: %w", err)}
	}

	var created postResponse
	if err := c.do(ctx, site, http.MethodPost, "/posts", "application/json", body, nil, &created); err != nil {
		return nil, err
	}
	if created.ID == 0 {
		return nil, &models.PublishTransientError{Err: errors.New("response missing post id")}
	}

	result.PostID = created.ID
	result.URL = created.Link
	return result, nil
}

// TestConnection verifies credentials via /users/me.
func (c *Client) TestConnection(ctx context.Context, site *models.Site) (*models.ConnectionInfo, error) {
	var me userResponse
	if err := c.do(ctx, site, http.MethodGet, "/users/me", "", nil, nil, &me); err != nil {
		return &models.ConnectionInfo{OK: false, Error: err.Error()}, nil
	}
	return &models.ConnectionInfo{OK: true, UserID: me.ID, UserName: me.Name}, nil
}

func (c *Client) uploadMedia(ctx context.Context, site *models.Site, img *models.ResolvedImage) (int64, error) {
	filename := img.Filename
	if filename == "" {
		filename = "featured-image.jpg"
	}
	header := http.Header{}
	header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	var media postResponse
	if err := c.do(ctx, site, http.MethodPost, "/media", img.ContentType, img.Data, header, &media); err != nil {
		return 0, err
	}

	if img.AltText != "" && media.ID != 0 {
		alt, _ := json.Marshal(map[string]string{"alt_text": img.AltText})
		if err := c.do(ctx, site, http.MethodPost, fmt.Sprintf("/media/%d", media.ID), "application/json", alt, nil, nil); err != nil {
			c.log.Debug().Err(err).Int64("media_id", media.ID).Msg("Failed to set alt text")
		}
	}
	return media.ID, nil
}

// do performs an authenticated request and classifies failures:
// 401/403 are auth errors, everything else is transient.
func (c *Client) do(ctx context.Context, site *models.Site, method, path, contentType string, body []byte, header http.Header, out any) error {
	endpoint := strings.TrimRight(site.URL, "/") + apiPath + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &models.PublishTransientError{Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.SetBasicAuth(site.Username, site.AppPassword)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.PublishTransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &models.PublishTransientError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &models.PublishAuthError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &models.PublishTransientError{StatusCode: resp.StatusCode, Err: errors.New(errorMessage(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &models.PublishTransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// errorMessage extracts the WordPress error message, falling back to the raw body.
func errorMessage(body []byte) string {
	var wpErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wpErr) == nil && wpErr.Message != "" {
		if wpErr.Code != "" {
			return wpErr.Code + ": " + wpErr.Message
		}
		return wpErr.Message
	}
	msg := strings.Join(strings.Fields(string(body)), " ")
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
