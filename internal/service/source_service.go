package service

import (
	"context"
	"strings"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sourceService is the concrete implementation of SourceService
type sourceService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

// NewSourceService creates a new SourceService
func NewSourceService(repos *repository.Repositories, log zerolog.Logger) SourceService {
	return &sourceService{
		repos: repos,
		log:   log.With().Str("service", "source").Logger(),
	}
}

func (s *sourceService) Create(ctx context.Context, req *models.SourceRequest) (*models.Source, error) {
	if err := validation.ValidateSource(req, true).Err(); err != nil {
		return nil, err
	}

	site, err := s.repos.Site.GetByID(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, validation.Errors{{Field: "site_id", Message: "site does not exist", Value: req.SiteID}}
	}

	now := time.Now().UTC()
	source := &models.Source{
		ID:        uuid.New().String(),
		SiteID:    site.ID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applySourceRequest(source, req)

	if err := s.repos.Source.Create(ctx, source); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("source_id", source.ID).
		Str("site_id", source.SiteID).
		Str("type", string(source.Type)).
		Str("url", source.URL).
		Msg("Source created")
	return source, nil
}

// Update edits a source. A source never moves between sites.
func (s *sourceService) Update(ctx context.Context, id string, req *models.SourceRequest) (*models.Source, error) {
	if err := validation.ValidateSource(req, false).Err(); err != nil {
		return nil, err
	}

	source, err := s.repos.Source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, models.ErrNotFound
	}

	applySourceRequest(source, req)
	source.UpdatedAt = time.Now().UTC()

	if err := s.repos.Source.Update(ctx, source); err != nil {
		return nil, err
	}

	s.log.Info().Str("source_id", source.ID).Msg("Source updated")
	return source, nil
}

func (s *sourceService) Delete(ctx context.Context, id string) error {
	if err := s.repos.Source.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("source_id", id).Msg("Source deleted")
	return nil
}

func (s *sourceService) Get(ctx context.Context, id string) (*models.Source, error) {
	source, err := s.repos.Source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, models.ErrNotFound
	}
	return source, nil
}

func (s *sourceService) List(ctx context.Context, siteID string) ([]*models.Source, error) {
	sources, err := s.repos.Source.List(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []*models.Source{}
	}
	return sources, nil
}

func applySourceRequest(source *models.Source, req *models.SourceRequest) {
	source.Name = strings.TrimSpace(req.Name)
	source.Type = req.Type
	source.URL = strings.TrimSpace(req.URL)
	source.ScrapeConfig = req.ScrapeConfig

	source.PollInterval = req.PollInterval
	if source.PollInterval == 0 {
		source.PollInterval = models.DefaultPollInterval
	}
	source.MaxItemsPerPoll = req.MaxItemsPerPoll
	if source.MaxItemsPerPoll == 0 {
		source.MaxItemsPerPoll = models.DefaultMaxItemsPerPoll
	}
	if req.Active != nil {
		source.Active = *req.Active
	}
}
