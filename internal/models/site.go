package models

import (
	"strconv"
	"strings"
	"time"
)

// VelocityMode controls how aggressively a site's sources are polled
type VelocityMode string

const (
	VelocityNews      VelocityMode = "news"
	VelocityEvergreen VelocityMode = "evergreen"
)

// Site is a destination publication with its own credentials and settings
type Site struct {
	ID              string            `json:"id" db:"id"`
	Name            string            `json:"name" db:"name"`
	URL             string            `json:"url" db:"url"`
	Username        string            `json:"username" db:"username"`
	AppPassword     string            `json:"-" db:"app_password"`
	TargetLanguage  string            `json:"target_language" db:"target_language"`
	VelocityMode    VelocityMode      `json:"velocity_mode" db:"velocity_mode"`
	CategoryMap     map[string]string `json:"category_map" db:"category_map"`
	ImageCookie     string            `json:"-" db:"image_cookie"`
	WatermarkText   string            `json:"watermark_text,omitempty" db:"watermark_text"`
	DefaultAuthorID int64             `json:"default_author_id,omitempty" db:"default_author_id"`
	Active          bool              `json:"active" db:"active"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// HasImageCookie is exposed instead of the cookie itself.
func (s *Site) HasImageCookie() bool {
	return s.ImageCookie != ""
}

// Watermark returns the text stamped on resolved images.
func (s *Site) Watermark() string {
	if t := strings.TrimSpace(s.WatermarkText); t != "" {
		return t
	}
	return s.Name
}

// ResolveCategory maps a category chosen during processing to a destination
// category id. It accepts either an id present in the map or a display name
// (case-insensitive). ok is false when nothing matches.
func (s *Site) ResolveCategory(category string) (int64, bool) {
	category = strings.TrimSpace(category)
	if category == "" || len(s.CategoryMap) == 0 {
		return 0, false
	}
	if _, found := s.CategoryMap[category]; found {
		if id, err := strconv.ParseInt(category, 10, 64); err == nil {
			return id, true
		}
	}
	for id, name := range s.CategoryMap {
		if strings.EqualFold(strings.TrimSpace(name), category) {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// CategoryMapping is one destination category entry as accepted by the admin API.
type CategoryMapping struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SiteRequest is the admin payload for creating or updating a site.
// Credentials left empty on update keep their stored value.
type SiteRequest struct {
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Username        string            `json:"username"`
	AppPassword     string            `json:"app_password"`
	TargetLanguage  string            `json:"target_language"`
	VelocityMode    VelocityMode      `json:"velocity_mode"`
	Categories      []CategoryMapping `json:"categories"`
	ImageCookie     string            `json:"image_cookie"`
	WatermarkText   string            `json:"watermark_text"`
	DefaultAuthorID int64             `json:"default_author_id"`
	Active          *bool             `json:"active"`
}

// SiteView is the API representation of a site; secrets are reduced to flags.
type SiteView struct {
	*Site
	HasAppPassword bool `json:"has_app_password"`
	HasImageCookie bool `json:"has_image_cookie"`
	SourceCount    int  `json:"source_count"`
}
