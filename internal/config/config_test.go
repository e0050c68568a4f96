package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults should validate, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero fetch timeout", func(c *Config) { c.Poller.FetchTimeout = 0 }, "fetch timeout"},
		{"negative fetch timeout", func(c *Config) { c.Poller.FetchTimeout = -time.Second }, "fetch timeout"},
		{"source timeout below fetch timeout", func(c *Config) { c.Poller.SourceTimeout = time.Second }, "source timeout"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"threshold above one", func(c *Config) { c.Dedup.SimilarityThreshold = 1.5 }, "similarity threshold"},
		{"unknown image provider", func(c *Config) { c.Images.Providers = []string{"gettyimages"} }, "image provider"},
		{"retry without tick", func(c *Config) { c.Retry.TickSpec = "" }, "retry tick spec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLLER_FETCH_TIMEOUT", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero fetch timeout from env to be rejected")
	}

	t.Setenv("POLLER_FETCH_TIMEOUT", "10s")
	t.Setenv("POLLER_SOURCE_TIMEOUT", "1m")
	t.Setenv("IMAGE_VISION_MODEL", "vision-model")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Poller.FetchTimeout != 10*time.Second || cfg.Poller.SourceTimeout != time.Minute {
		t.Errorf("unexpected poller timeouts %+v", cfg.Poller)
	}
	if cfg.Images.VisionModel != "vision-model" {
		t.Errorf("expected vision model from env, got %q", cfg.Images.VisionModel)
	}
}
