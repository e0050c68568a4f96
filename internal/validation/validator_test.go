package validation

import (
	"strings"
	"testing"

	"github.com/content-syndication-pipeline/internal/models"
)

func validSiteRequest() *models.SiteRequest {
	return &models.SiteRequest{
		Name:           "Tech Daily",
		URL:            "https://techdaily.example.com",
		Username:       "editor",
		AppPassword:    "abcd efgh ijkl",
		TargetLanguage: "en",
		VelocityMode:   models.VelocityNews,
		Categories: []models.CategoryMapping{
			{ID: "3", Name: "Technology"},
			{ID: "7", Name: "Science"},
		},
	}
}

func TestValidateSite(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *models.SiteRequest)
		create     bool
		wantFields []string
	}{
		{
			name:   "valid site",
			mutate: func(r *models.SiteRequest) {},
			create: true,
		},
		{
			name:       "missing name and url",
			mutate:     func(r *models.SiteRequest) { r.Name = ""; r.URL = "" },
			create:     true,
			wantFields: []string{"name", "url"},
		},
		{
			name:       "relative url",
			mutate:     func(r *models.SiteRequest) { r.URL = "/wp-json" },
			create:     true,
			wantFields: []string{"url"},
		},
		{
			name:       "credentials required on create",
			mutate:     func(r *models.SiteRequest) { r.Username = ""; r.AppPassword = "" },
			create:     true,
			wantFields: []string{"username", "app_password"},
		},
		{
			name:   "credentials optional on update",
			mutate: func(r *models.SiteRequest) { r.Username = ""; r.AppPassword = "" },
			create: false,
		},
		{
			name:       "invalid language tag",
			mutate:     func(r *models.SiteRequest) { r.TargetLanguage = "not a language" },
			create:     true,
			wantFields: []string{"target_language"},
		},
		{
			name:       "unknown velocity mode",
			mutate:     func(r *models.SiteRequest) { r.VelocityMode = "turbo" },
			create:     true,
			wantFields: []string{"velocity_mode"},
		},
		{
			name: "duplicate category id",
			mutate: func(r *models.SiteRequest) {
				r.Categories = append(r.Categories, models.CategoryMapping{ID: " 3", Name: "Tech again"})
			},
			create:     true,
			wantFields: []string{"categories[2].id"},
		},
		{
			name: "non numeric category id",
			mutate: func(r *models.SiteRequest) {
				r.Categories = []models.CategoryMapping{{ID: "tech", Name: "Technology"}}
			},
			create:     true,
			wantFields: []string{"categories[0].id"},
		},
		{
			name:       "watermark too long",
			mutate:     func(r *models.SiteRequest) { r.WatermarkText = strings.Repeat("w", 65) },
			create:     true,
			wantFields: []string{"watermark_text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSiteRequest()
			tt.mutate(req)
			errs := ValidateSite(req, tt.create)

			if len(errs) != len(tt.wantFields) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.wantFields), len(errs), errs)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("error %d: expected field %q, got %q", i, field, errs[i].Field)
				}
			}
		})
	}
}

func TestValidateSource(t *testing.T) {
	base := func() *models.SourceRequest {
		return &models.SourceRequest{
			SiteID:          "550e8400-e29b-41d4-a716-446655440000",
			Name:            "Upstream feed",
			Type:            models.SourceTypeFeed,
			URL:             "https://upstream.example.com/rss",
			PollInterval:    10,
			MaxItemsPerPoll: 5,
		}
	}

	tests := []struct {
		name       string
		mutate     func(r *models.SourceRequest)
		wantFields []string
	}{
		{name: "valid feed", mutate: func(r *models.SourceRequest) {}},
		{name: "valid url type", mutate: func(r *models.SourceRequest) { r.Type = models.SourceTypeURL }},
		{name: "defaults allowed", mutate: func(r *models.SourceRequest) { r.PollInterval = 0; r.MaxItemsPerPoll = 0 }},
		{name: "bad site id", mutate: func(r *models.SourceRequest) { r.SiteID = "site-1" }, wantFields: []string{"site_id"}},
		{name: "unknown type", mutate: func(r *models.SourceRequest) { r.Type = "api" }, wantFields: []string{"type"}},
		{name: "missing url", mutate: func(r *models.SourceRequest) { r.URL = "" }, wantFields: []string{"url"}},
		{name: "negative interval", mutate: func(r *models.SourceRequest) { r.PollInterval = -1 }, wantFields: []string{"poll_interval"}},
		{name: "cap too large", mutate: func(r *models.SourceRequest) { r.MaxItemsPerPoll = 1000 }, wantFields: []string{"max_items_per_poll"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			errs := ValidateSource(req, true)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.wantFields), len(errs), errs)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("expected field %q, got %q", field, errs[i].Field)
				}
			}
		})
	}
}

func TestValidateCandidate(t *testing.T) {
	c := &models.Candidate{
		SiteID: "550e8400-e29b-41d4-a716-446655440000",
		Title:  "Headline",
		Body:   "Body text",
		URL:    "https://example.com/story",
	}
	if errs := ValidateCandidate(c); len(errs) != 0 {
		t.Fatalf("expected valid candidate, got %v", errs)
	}

	c.Title = " "
	c.ImageURL = "ftp://example.com/x.png"
	errs := ValidateCandidate(c)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"en", "en", false},
		{"pt-br", "pt-BR", false},
		{" de ", "de", false},
		{"xx-invalid-tag-!!", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeLanguage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeLanguage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestErrorsImplementsError(t *testing.T) {
	var errs Errors
	if errs.Err() != nil {
		t.Error("empty Errors should yield nil error")
	}
	errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	if err := errs.Err(); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Errorf("unexpected error: %v", err)
	}
}
