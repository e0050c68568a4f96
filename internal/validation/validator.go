package validation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Errors is a list of validation failures usable as an error.
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil for an empty list.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Limits for admin input.
const (
	MaxPollInterval    = 7 * 24 * 60
	MaxItemsPerPoll    = 100
	MaxWatermarkLength = 64
)

// ValidateSite validates a site payload. Credentials are only required on create.
func ValidateSite(req *models.SiteRequest, create bool) Errors {
	var errors Errors

	if strings.TrimSpace(req.Name) == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name is required"})
	}

	if req.URL == "" {
		errors = append(errors, ValidationError{Field: "url", Message: "url is required"})
	} else if !isHTTPURL(req.URL) {
		errors = append(errors, ValidationError{Field: "url", Message: "url must be an absolute http(s) URL", Value: req.URL})
	}

	if create {
		if req.Username == "" {
			errors = append(errors, ValidationError{Field: "username", Message: "username is required"})
		}
		if req.AppPassword == "" {
			errors = append(errors, ValidationError{Field: "app_password", Message: "app_password is required"})
		}
	}

	if req.TargetLanguage != "" {
		if _, err := NormalizeLanguage(req.TargetLanguage); err != nil {
			errors = append(errors, ValidationError{Field: "target_language", Message: "invalid language tag", Value: req.TargetLanguage})
		}
	}

	switch req.VelocityMode {
	case "", models.VelocityNews, models.VelocityEvergreen:
	default:
		errors = append(errors, ValidationError{Field: "velocity_mode", Message: "velocity_mode must be one of: news, evergreen", Value: req.VelocityMode})
	}

	seen := make(map[string]bool, len(req.Categories))
	for i, c := range req.Categories {
		field := fmt.Sprintf("categories[%d]", i)
		id := strings.TrimSpace(c.ID)
		if id == "" {
			errors = append(errors, ValidationError{Field: field + ".id", Message: "category id is required"})
			continue
		}
		if n, err := strconv.ParseInt(id, 10, 64); err != nil || n <= 0 {
			errors = append(errors, ValidationError{Field: field + ".id", Message: "category id must be a positive integer", Value: c.ID})
			continue
		}
		if seen[id] {
			errors = append(errors, ValidationError{Field: field + ".id", Message: "duplicate category id", Value: c.ID})
			continue
		}
		seen[id] = true
		if strings.TrimSpace(c.Name) == "" {
			errors = append(errors, ValidationError{Field: field + ".name", Message: "category name is required"})
		}
	}

	if len(req.WatermarkText) > MaxWatermarkLength {
		errors = append(errors, ValidationError{Field: "watermark_text", Message: fmt.Sprintf("watermark_text must be at most %d characters", MaxWatermarkLength)})
	}
	if req.DefaultAuthorID < 0 {
		errors = append(errors, ValidationError{Field: "default_author_id", Message: "default_author_id cannot be negative", Value: req.DefaultAuthorID})
	}

	return errors
}

// ValidateSource validates a source payload.
func ValidateSource(req *models.SourceRequest, create bool) Errors {
	var errors Errors

	if create {
		if req.SiteID == "" {
			errors = append(errors, ValidationError{Field: "site_id", Message: "site_id is required"})
		} else if !isValidUUID(req.SiteID) {
			errors = append(errors, ValidationError{Field: "site_id", Message: "invalid UUID format", Value: req.SiteID})
		}
	}

	if strings.TrimSpace(req.Name) == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name is required"})
	}

	switch req.Type {
	case models.SourceTypeFeed, models.SourceTypeURL:
	case "":
		errors = append(errors, ValidationError{Field: "type", Message: "type is required"})
	default:
		errors = append(errors, ValidationError{Field: "type", Message: "type must be one of: feed, url", Value: req.Type})
	}

	if req.URL == "" {
		errors = append(errors, ValidationError{Field: "url", Message: "url is required"})
	} else if !isHTTPURL(req.URL) {
		errors = append(errors, ValidationError{Field: "url", Message: "url must be an absolute http(s) URL", Value: req.URL})
	}

	if req.PollInterval < 0 || req.PollInterval > MaxPollInterval {
		errors = append(errors, ValidationError{Field: "poll_interval", Message: fmt.Sprintf("poll_interval must be between 1 and %d minutes", MaxPollInterval), Value: req.PollInterval})
	}
	if req.MaxItemsPerPoll < 0 || req.MaxItemsPerPoll > MaxItemsPerPoll {
		errors = append(errors, ValidationError{Field: "max_items_per_poll", Message: fmt.Sprintf("max_items_per_poll must be between 1 and %d", MaxItemsPerPoll), Value: req.MaxItemsPerPoll})
	}

	return errors
}

// ValidateCandidate validates a manually submitted item.
func ValidateCandidate(c *models.Candidate) Errors {
	var errors Errors

	if c.SiteID == "" {
		errors = append(errors, ValidationError{Field: "site_id", Message: "site_id is required"})
	} else if !isValidUUID(c.SiteID) {
		errors = append(errors, ValidationError{Field: "site_id", Message: "invalid UUID format", Value: c.SiteID})
	}
	if c.SourceID != "" && !isValidUUID(c.SourceID) {
		errors = append(errors, ValidationError{Field: "source_id", Message: "invalid UUID format", Value: c.SourceID})
	}
	if strings.TrimSpace(c.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title is required"})
	}
	if strings.TrimSpace(c.Body) == "" {
		errors = append(errors, ValidationError{Field: "body", Message: "body is required"})
	}
	if c.URL != "" && !isHTTPURL(c.URL) {
		errors = append(errors, ValidationError{Field: "url", Message: "url must be an absolute http(s) URL", Value: c.URL})
	}
	if c.ImageURL != "" && !isHTTPURL(c.ImageURL) {
		errors = append(errors, ValidationError{Field: "image_url", Message: "image_url must be an absolute http(s) URL", Value: c.ImageURL})
	}

	return errors
}

// NormalizeLanguage parses a BCP-47 tag and returns its canonical form.
func NormalizeLanguage(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(s string) bool {
	return isValidUUID(s)
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
