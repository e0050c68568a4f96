package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// siteService is the concrete implementation of SiteService
type siteService struct {
	repos     *repository.Repositories
	publisher Publisher
	index     EmbeddingIndex
	log       zerolog.Logger
}

// NewSiteService creates a new SiteService
func NewSiteService(repos *repository.Repositories, publisher Publisher, index EmbeddingIndex, log zerolog.Logger) SiteService {
	return &siteService{
		repos:     repos,
		publisher: publisher,
		index:     index,
		log:       log.With().Str("service", "site").Logger(),
	}
}

func (s *siteService) Create(ctx context.Context, req *models.SiteRequest) (*models.SiteView, error) {
	if err := validation.ValidateSite(req, true).Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	site := &models.Site{
		ID:        uuid.New().String(),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applySiteRequest(site, req)

	if err := s.repos.Site.Create(ctx, site); err != nil {
		return nil, err
	}

	s.log.Info().Str("site_id", site.ID).Str("name", site.Name).Msg("Site created")
	return s.view(ctx, site)
}

func (s *siteService) Update(ctx context.Context, id string, req *models.SiteRequest) (*models.SiteView, error) {
	if err := validation.ValidateSite(req, false).Err(); err != nil {
		return nil, err
	}

	site, err := s.repos.Site.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, models.ErrNotFound
	}

	applySiteRequest(site, req)
	site.UpdatedAt = time.Now().UTC()

	if err := s.repos.Site.Update(ctx, site); err != nil {
		return nil, err
	}

	s.log.Info().Str("site_id", site.ID).Msg("Site updated")
	return s.view(ctx, site)
}

// Delete removes the site; its sources and articles cascade.
func (s *siteService) Delete(ctx context.Context, id string) error {
	if err := s.repos.Site.Delete(ctx, id); err != nil {
		return err
	}
	s.index.Forget(id)
	s.log.Info().Str("site_id", id).Msg("Site deleted")
	return nil
}

func (s *siteService) Get(ctx context.Context, id string) (*models.SiteView, error) {
	site, err := s.repos.Site.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, models.ErrNotFound
	}
	return s.view(ctx, site)
}

func (s *siteService) List(ctx context.Context) ([]*models.SiteView, error) {
	sites, err := s.repos.Site.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*models.SiteView, 0, len(sites))
	for _, site := range sites {
		v, err := s.view(ctx, site)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// TestConnection checks the site's stored credentials against its destination.
func (s *siteService) TestConnection(ctx context.Context, id string) (*models.ConnectionInfo, error) {
	site, err := s.repos.Site.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, models.ErrNotFound
	}

	info, err := s.publisher.TestConnection(ctx, site)
	if err != nil {
		s.log.Warn().Err(err).Str("site_id", id).Msg("Connection test failed")
		return &models.ConnectionInfo{OK: false, Error: err.Error()}, nil
	}
	return info, nil
}

func (s *siteService) view(ctx context.Context, site *models.Site) (*models.SiteView, error) {
	sources, err := s.repos.Source.Count(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	return &models.SiteView{
		Site:           site,
		HasAppPassword: site.AppPassword != "",
		HasImageCookie: site.HasImageCookie(),
		SourceCount:    sources.Total,
	}, nil
}

// applySiteRequest copies a validated request onto site. Empty secrets keep
// the stored value so the admin UI never has to echo them back.
func applySiteRequest(site *models.Site, req *models.SiteRequest) {
	site.Name = strings.TrimSpace(req.Name)
	site.URL = strings.TrimRight(strings.TrimSpace(req.URL), "/")
	if req.Username != "" {
		site.Username = req.Username
	}
	if req.AppPassword != "" {
		site.AppPassword = req.AppPassword
	}
	if req.ImageCookie != "" {
		site.ImageCookie = req.ImageCookie
	}

	site.TargetLanguage = "en"
	if req.TargetLanguage != "" {
		if tag, err := validation.NormalizeLanguage(req.TargetLanguage); err == nil {
			site.TargetLanguage = tag
		}
	}

	site.VelocityMode = models.VelocityNews
	if req.VelocityMode != "" {
		site.VelocityMode = req.VelocityMode
	}

	site.CategoryMap = make(map[string]string, len(req.Categories))
	for _, c := range req.Categories {
		site.CategoryMap[strings.TrimSpace(c.ID)] = strings.TrimSpace(c.Name)
	}

	site.WatermarkText = strings.TrimSpace(req.WatermarkText)
	site.DefaultAuthorID = req.DefaultAuthorID
	if req.Active != nil {
		site.Active = *req.Active
	}
}
