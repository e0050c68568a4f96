package repository

import (
	"context"
	"time"

	"github.com/content-syndication-pipeline/internal/database"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/vectorindex"
)

// SiteRepository defines the interface for site data operations
type SiteRepository interface {
	Create(ctx context.Context, site *models.Site) error
	Update(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Site, error)
	List(ctx context.Context) ([]*models.Site, error)
	Count(ctx context.Context) (models.CountPair, error)
}

// SourceRepository defines the interface for source data operations
type SourceRepository interface {
	Create(ctx context.Context, source *models.Source) error
	Update(ctx context.Context, source *models.Source) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Source, error)
	List(ctx context.Context, siteID string) ([]*models.Source, error)
	// ListActive returns active sources whose site is also active.
	ListActive(ctx context.Context) ([]*models.DueSource, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
	RecordPollError(ctx context.Context, id string, message string, at time.Time) error
	Count(ctx context.Context, siteID string) (models.CountPair, error)
}

// ArticleRepository defines the interface for article data operations.
// Status-changing methods are conditional on the current status and report
// whether a row was updated.
type ArticleRepository interface {
	vectorindex.Store

	Create(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, id string) (*models.Article, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, int, error)
	KnownExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]bool, error)

	// FindAdmittedByFingerprint returns an admitted, non-duplicate article of
	// the site with the given fingerprint, other than excludeID.
	FindAdmittedByFingerprint(ctx context.Context, siteID, fingerprint, excludeID string) (*models.Article, error)

	GetPending(ctx context.Context, limit int) ([]*models.Article, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*models.Article, error)

	Claim(ctx context.Context, id string, from models.ArticleStatus, at time.Time) (bool, error)
	MarkAdmitted(ctx context.Context, id string, embedding []float64) error
	SaveProcessed(ctx context.Context, article *models.Article) error
	MarkDuplicate(ctx context.Context, id string, verdict *models.DedupVerdict) (bool, error)
	MarkFailed(ctx context.Context, id string, failure models.Failure) (bool, error)
	MarkPublished(ctx context.Context, article *models.Article) (bool, error)
	ResetStuckProcessing(ctx context.Context) (int64, error)

	CountByStatus(ctx context.Context, siteID string) (map[models.ArticleStatus]int, error)
	CountSince(ctx context.Context, siteID string, since time.Time) (created int, published int, err error)
	Recent(ctx context.Context, limit int) ([]*models.Activity, error)
	DailyCounts(ctx context.Context, siteID string, since time.Time) ([]models.DailyCount, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Site    SiteRepository
	Source  SourceRepository
	Article ArticleRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Site:    NewSiteRepo(db),
		Source:  NewSourceRepo(db),
		Article: NewArticleRepo(db),
	}
}
