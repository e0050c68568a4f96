package service

import (
	"context"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/rs/zerolog"
)

// Pagination bounds for article listings.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// articleService is the concrete implementation of ArticleService
type articleService struct {
	articles repository.ArticleRepository
	pipeline PipelineService
	index    EmbeddingIndex
	log      zerolog.Logger
}

// NewArticleService creates a new ArticleService
func NewArticleService(articles repository.ArticleRepository, pipeline PipelineService, index EmbeddingIndex, log zerolog.Logger) ArticleService {
	return &articleService{
		articles: articles,
		pipeline: pipeline,
		index:    index,
		log:      log.With().Str("service", "article").Logger(),
	}
}

func (s *articleService) List(ctx context.Context, filter models.ArticleFilter) (*models.ArticleList, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = DefaultPerPage
	}
	if filter.PerPage > MaxPerPage {
		filter.PerPage = MaxPerPage
	}

	items, total, err := s.articles.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Article{}
	}
	return &models.ArticleList{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

func (s *articleService) Get(ctx context.Context, id string) (*models.Article, error) {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, models.ErrNotFound
	}
	return article, nil
}

// Delete removes the article and drops it from the similarity index.
func (s *articleService) Delete(ctx context.Context, id string) error {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if article == nil {
		return models.ErrNotFound
	}
	if err := s.articles.Delete(ctx, id); err != nil {
		return err
	}
	s.index.Remove(article.SiteID, article.ID)
	s.log.Info().Str("article_id", id).Msg("Article deleted")
	return nil
}

// Retry re-queues a failed article on the worker pool. It returns
// ErrNotRetryable or ErrAlreadyClaimed when the article is not failed.
func (s *articleService) Retry(ctx context.Context, id string) (*models.Article, error) {
	if err := s.pipeline.ScheduleRetry(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info().Str("article_id", id).Msg("Manual retry scheduled")
	return s.Get(ctx, id)
}

// Submit queues a manually supplied item.
func (s *articleService) Submit(ctx context.Context, c *models.Candidate) (*models.Article, error) {
	if err := validation.ValidateCandidate(c).Err(); err != nil {
		return nil, err
	}
	return s.pipeline.Intake(ctx, c)
}
