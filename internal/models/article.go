package models

import (
	"time"
)

// ArticleStatus represents the lifecycle state of an article
type ArticleStatus string

const (
	StatusPending    ArticleStatus = "pending"
	StatusProcessing ArticleStatus = "processing"
	StatusPublished  ArticleStatus = "published"
	StatusFailed     ArticleStatus = "failed"
	StatusDuplicate  ArticleStatus = "duplicate"
)

// AllStatuses lists every article status in lifecycle order.
var AllStatuses = []ArticleStatus{
	StatusPending, StatusProcessing, StatusPublished, StatusFailed, StatusDuplicate,
}

// Valid reports whether s is a known status.
func (s ArticleStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPublished, StatusFailed, StatusDuplicate:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s ArticleStatus) Terminal() bool {
	return s == StatusPublished || s == StatusDuplicate
}

// transitions is the complete article state machine.
var transitions = map[ArticleStatus][]ArticleStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPublished, StatusFailed, StatusDuplicate},
	StatusFailed:     {StatusProcessing},
}

// CanTransition reports whether an article may move from one status to another.
func CanTransition(from, to ArticleStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ImageSource records which provider supplied an article's image
type ImageSource string

const (
	ImageSourceOriginal ImageSource = "original"
	ImageSourceBing     ImageSource = "bing"
	ImageSourcePexels   ImageSource = "pexels"
	ImageSourceUnsplash ImageSource = "unsplash"
	ImageSourceFlux     ImageSource = "flux"
	ImageSourceNone     ImageSource = "none"
)

// Pipeline stages recorded on failure.
const (
	StageDedup       = "dedup"
	StageProcess     = "process"
	StageImage       = "image"
	StagePublish     = "publish"
	StageInternal    = "internal"
	StageInterrupted = "interrupted"
)

// Failure kinds drive the automatic retry policy.
const (
	ErrorKindTransient = "transient"
	ErrorKindAuth      = "auth"
	ErrorKindRejected  = "rejected"
)

// Article is one candidate item moving through the pipeline
type Article struct {
	ID         string  `json:"id" db:"id"`
	SiteID     string  `json:"site_id" db:"site_id"`
	SourceID   *string `json:"source_id,omitempty" db:"source_id"`
	ExternalID string  `json:"external_id" db:"external_id"`

	OriginalURL      string `json:"original_url" db:"original_url"`
	OriginalTitle    string `json:"original_title" db:"original_title"`
	OriginalBody     string `json:"original_body" db:"original_body"`
	OriginalImageURL string `json:"original_image_url,omitempty" db:"original_image_url"`
	SourceLanguage   string `json:"source_language,omitempty" db:"source_language"`

	ProcessedTitle  string `json:"processed_title,omitempty" db:"processed_title"`
	ProcessedBody   string `json:"processed_body,omitempty" db:"processed_body"`
	MetaDescription string `json:"meta_description,omitempty" db:"meta_description"`
	Category        string `json:"category,omitempty" db:"category"`

	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	Embedding   []float64 `json:"-" db:"embedding"`
	DedupPassed bool      `json:"dedup_passed" db:"dedup_passed"`
	DuplicateOf *string   `json:"duplicate_of,omitempty" db:"duplicate_of"`
	Similarity  *float64  `json:"similarity,omitempty" db:"similarity"`

	ImageSource ImageSource `json:"image_source" db:"image_source"`
	ImageURL    string      `json:"image_url,omitempty" db:"image_url"`

	PostID  int64  `json:"post_id,omitempty" db:"post_id"`
	PostURL string `json:"post_url,omitempty" db:"post_url"`

	Status       ArticleStatus `json:"status" db:"status"`
	RetryCount   int           `json:"retry_count" db:"retry_count"`
	ErrorStage   string        `json:"error_stage,omitempty" db:"error_stage"`
	ErrorKind    string        `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`

	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty" db:"last_attempted_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty" db:"published_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// EmbeddingText is the text the similarity check embeds: title plus the
// first n runes of the body.
func (a *Article) EmbeddingText(n int) string {
	body := []rune(a.OriginalBody)
	if n > 0 && len(body) > n {
		body = body[:n]
	}
	return a.OriginalTitle + " " + string(body)
}

// Candidate is a raw item produced by a source fetch or a manual submission.
type Candidate struct {
	SiteID      string     `json:"site_id"`
	SourceID    string     `json:"source_id,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ImageURL    string     `json:"image_url,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Failure describes why a pipeline run ended in failed. PostID and PostURL
// are set when the destination post was created before the run failed.
type Failure struct {
	Stage   string
	Kind    string
	Message string
	PostID  int64
	PostURL string
}

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	SiteID   string
	SourceID string
	Status   ArticleStatus
	Page     int
	PerPage  int
}

// Offset returns the row offset for the requested page.
func (f ArticleFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// ArticleList is a page of articles.
type ArticleList struct {
	Items   []*Article `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// DedupVerdict is the outcome of the duplicate gate.
type DedupVerdict struct {
	Duplicate   bool    `json:"duplicate"`
	Reason      string  `json:"reason,omitempty"` // "fingerprint" or "similarity"
	MatchedID   string  `json:"matched_id,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
	Fingerprint string  `json:"-"`
}

// Dedup reasons.
const (
	DuplicateByFingerprint = "fingerprint"
	DuplicateBySimilarity  = "similarity"
)
