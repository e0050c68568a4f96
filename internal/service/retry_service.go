package service

import (
	"context"
	"errors"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

// retryService is the concrete implementation of RetryService
type retryService struct {
	repos    *repository.Repositories
	pipeline PipelineService
	cfg      config.RetryConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewRetryService creates a new RetryService
func NewRetryService(repos *repository.Repositories, pipeline PipelineService, cfg config.RetryConfig, log zerolog.Logger) RetryService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &retryService{
		repos:    repos,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log.With().Str("service", "retry").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Backoff returns how long to wait after the given number of failed
// attempts: BaseDelay doubled per attempt, capped at MaxDelay, stretched by
// EvergreenFactor for evergreen sites.
func Backoff(cfg config.RetryConfig, attempts int, mode models.VelocityMode) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if mode == models.VelocityEvergreen && cfg.EvergreenFactor > 1 {
		delay *= time.Duration(cfg.EvergreenFactor)
	}
	return delay
}

// RetryDue schedules transient failures whose backoff has elapsed and
// returns how many were handed to the pipeline.
func (s *retryService) RetryDue(ctx context.Context) int {
	if !s.cfg.Enabled {
		return 0
	}

	failed, err := s.repos.Article.ListRetryable(ctx, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list retryable articles")
		return 0
	}

	now := s.now()
	sites := make(map[string]*models.Site)
	scheduled := 0
	for _, a := range failed {
		site, ok := sites[a.SiteID]
		if !ok {
			site, err = s.repos.Site.GetByID(ctx, a.SiteID)
			if err != nil {
				s.log.Error().Err(err).Str("site_id", a.SiteID).Msg("Failed to load site")
				continue
			}
			sites[a.SiteID] = site
		}
		if site == nil || !site.Active {
			continue
		}

		last := a.UpdatedAt
		if a.LastAttemptedAt != nil {
			last = *a.LastAttemptedAt
		}
		if now.Before(last.Add(Backoff(s.cfg, a.RetryCount, site.VelocityMode))) {
			continue
		}

		if err := s.pipeline.ScheduleRetry(ctx, a.ID); err != nil {
			if errors.Is(err, models.ErrAlreadyClaimed) || errors.Is(err, models.ErrNotRetryable) {
				continue
			}
			s.log.Error().Err(err).Str("article_id", a.ID).Msg("Failed to schedule retry")
			continue
		}
		scheduled++
	}

	if scheduled > 0 {
		s.log.Info().Int("scheduled", scheduled).Msg("Automatic retries scheduled")
	}
	return scheduled
}
