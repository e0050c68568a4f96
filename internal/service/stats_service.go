package service

import (
	"context"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

// Dashboard bounds.
const (
	MaxRecent    = 100
	MaxDailyDays = 90
)

type statsService struct {
	repos *repository.Repositories
	log   zerolog.Logger
	now   func() time.Time
}

// NewStatsService creates a new StatsService
func NewStatsService(repos *repository.Repositories, log zerolog.Logger) StatsService {
	return &statsService{
		repos: repos,
		log:   log.With().Str("service", "stats").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Stats aggregates counts, optionally scoped to one site.
func (s *statsService) Stats(ctx context.Context, siteID string) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	if siteID == "" {
		sites, err := s.repos.Site.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats.Sites = sites
	} else {
		site, err := s.repos.Site.GetByID(ctx, siteID)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, models.ErrNotFound
		}
		stats.Sites = models.CountPair{Total: 1}
		if site.Active {
			stats.Sites.Active = 1
		}
	}

	sources, err := s.repos.Source.Count(ctx, siteID)
	if err != nil {
		return nil, err
	}
	stats.Sources = sources

	counts, err := s.repos.Article.CountByStatus(ctx, siteID)
	if err != nil {
		return nil, err
	}
	for _, st := range models.AllStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
		stats.TotalArticles += counts[st]
	}
	stats.Articles = counts

	today := s.now().Truncate(24 * time.Hour)
	stats.CreatedToday, stats.PublishedToday, err = s.repos.Article.CountSince(ctx, siteID, today)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *statsService) Recent(ctx context.Context, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}
	items, err := s.repos.Article.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Activity{}
	}
	return items, nil
}

// Daily returns one point per UTC day for the last days days, today included.
func (s *statsService) Daily(ctx context.Context, siteID string, days int) ([]models.DailyCount, error) {
	if days <= 0 {
		days = 7
	}
	if days > MaxDailyDays {
		days = MaxDailyDays
	}

	today := s.now().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	points, err := s.repos.Article.DailyCounts(ctx, siteID, since)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]models.DailyCount, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}
	series := make([]models.DailyCount, 0, days)
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		p, ok := byDate[key]
		if !ok {
			p = models.DailyCount{Date: key}
		}
		series = append(series, p)
	}
	return series, nil
}
