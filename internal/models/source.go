package models

import (
	"time"
)

// SourceType selects the fetcher used to poll a source
type SourceType string

const (
	SourceTypeFeed SourceType = "feed"
	SourceTypeURL  SourceType = "url"
)

// ScrapeConfig holds CSS selectors for single-url sources. An empty
// LinkSelector means the source URL itself is the article.
type ScrapeConfig struct {
	LinkSelector    string `json:"link_selector,omitempty"`
	TitleSelector   string `json:"title_selector,omitempty"`
	ContentSelector string `json:"content_selector,omitempty"`
	ImageSelector   string `json:"image_selector,omitempty"`
}

// Source is a feed or page polled on behalf of a site
type Source struct {
	ID              string       `json:"id" db:"id"`
	SiteID          string       `json:"site_id" db:"site_id"`
	Name            string       `json:"name" db:"name"`
	Type            SourceType   `json:"type" db:"type"`
	URL             string       `json:"url" db:"url"`
	ScrapeConfig    ScrapeConfig `json:"scrape_config" db:"scrape_config"`
	PollInterval    int          `json:"poll_interval" db:"poll_interval"` // minutes
	MaxItemsPerPoll int          `json:"max_items_per_poll" db:"max_items_per_poll"`
	Active          bool         `json:"active" db:"active"`
	LastPolledAt    *time.Time   `json:"last_polled_at,omitempty" db:"last_polled_at"`
	LastError       string       `json:"last_error,omitempty" db:"last_error"`
	LastErrorAt     *time.Time   `json:"last_error_at,omitempty" db:"last_error_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// Defaults applied when a source is created without explicit values.
const (
	DefaultPollInterval    = 10
	DefaultMaxItemsPerPoll = 5
)

// EffectiveInterval returns the polling cadence under the site's velocity mode.
// Evergreen sites never poll more often than evergreenMin.
func (s *Source) EffectiveInterval(mode VelocityMode, evergreenMin time.Duration) time.Duration {
	interval := time.Duration(s.PollInterval) * time.Minute
	if mode == VelocityEvergreen && interval < evergreenMin {
		return evergreenMin
	}
	return interval
}

// Due reports whether the source should be polled at now.
func (s *Source) Due(now time.Time, mode VelocityMode, evergreenMin time.Duration) bool {
	if s.LastPolledAt == nil {
		return true
	}
	return now.Sub(*s.LastPolledAt) >= s.EffectiveInterval(mode, evergreenMin)
}

// DueSource pairs a source with the site it feeds.
type DueSource struct {
	Source *Source
	Site   *Site
}

// SourceRequest is the admin payload for creating or updating a source.
type SourceRequest struct {
	SiteID          string       `json:"site_id"`
	Name            string       `json:"name"`
	Type            SourceType   `json:"type"`
	URL             string       `json:"url"`
	ScrapeConfig    ScrapeConfig `json:"scrape_config"`
	PollInterval    int          `json:"poll_interval"`
	MaxItemsPerPoll int          `json:"max_items_per_poll"`
	Active          *bool        `json:"active"`
}

// PollResult summarises one poll of a source.
type PollResult struct {
	SourceID  string    `json:"source_id"`
	Skipped   bool      `json:"skipped"`
	Fetched   int       `json:"fetched"`
	New       int       `json:"new"`
	Submitted int       `json:"submitted"`
	Error     string    `json:"error,omitempty"`
	PolledAt  time.Time `json:"polled_at"`
}
