package service

import (
	"context"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/vectorindex"
	"github.com/rs/zerolog"
)

// ContentProcessor rewrites an item into the site's target language.
type ContentProcessor interface {
	Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResult, error)
}

// LanguageDetector names the language an article is written in, or returns
// "" when it cannot tell.
type LanguageDetector interface {
	Detect(title, body string) string
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingIndex is the per-site nearest-neighbour store.
type EmbeddingIndex interface {
	Query(ctx context.Context, siteID string, vec []float64, k int) ([]vectorindex.Neighbor, error)
	Insert(ctx context.Context, siteID, articleID string, vec []float64) error
	Remove(siteID, articleID string)
	Forget(siteID string)
}

// ImageResolver finds and watermarks an image. It never fails; an
// unresolved image has source none.
type ImageResolver interface {
	Resolve(ctx context.Context, req *models.ImageRequest) *models.ResolvedImage
}

// Publisher pushes a post to a site's destination endpoint.
type Publisher interface {
	Publish(ctx context.Context, site *models.Site, post *models.Post) (*models.PublishResult, error)
	TestConnection(ctx context.Context, site *models.Site) (*models.ConnectionInfo, error)
}

// Fetcher lists raw items of a source.
type Fetcher interface {
	List(ctx context.Context, source *models.Source) ([]*models.Candidate, error)
}

// Hydrator is implemented by fetchers whose listed items need a second
// request to fill in title and body.
type Hydrator interface {
	Hydrate(ctx context.Context, source *models.Source, c *models.Candidate) error
}

// SiteService manages sites
type SiteService interface {
	Create(ctx context.Context, req *models.SiteRequest) (*models.SiteView, error)
	Update(ctx context.Context, id string, req *models.SiteRequest) (*models.SiteView, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.SiteView, error)
	List(ctx context.Context) ([]*models.SiteView, error)
	TestConnection(ctx context.Context, id string) (*models.ConnectionInfo, error)
}

// SourceService manages sources
type SourceService interface {
	Create(ctx context.Context, req *models.SourceRequest) (*models.Source, error)
	Update(ctx context.Context, id string, req *models.SourceRequest) (*models.Source, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Source, error)
	List(ctx context.Context, siteID string) ([]*models.Source, error)
}

// ArticleService is the admin view over articles
type ArticleService interface {
	List(ctx context.Context, filter models.ArticleFilter) (*models.ArticleList, error)
	Get(ctx context.Context, id string) (*models.Article, error)
	Delete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (*models.Article, error)
	Submit(ctx context.Context, c *models.Candidate) (*models.Article, error)
}

// PipelineService owns article status transitions and the worker pool
type PipelineService interface {
	Intake(ctx context.Context, c *models.Candidate) (*models.Article, error)
	ProcessArticle(ctx context.Context, id string) (models.ArticleStatus, error)
	RetryArticle(ctx context.Context, id string) (models.ArticleStatus, error)
	ScheduleRetry(ctx context.Context, id string) error
	RecoverInterrupted(ctx context.Context) (int64, error)
	StartProcessor(ctx context.Context)
	StopProcessor()
}

// DedupService decides whether an article repeats earlier content
type DedupService interface {
	Admit(ctx context.Context, article *models.Article) (*models.DedupVerdict, error)
}

// PollerService polls sources for new items
type PollerService interface {
	PollDue(ctx context.Context) int
	PollSource(ctx context.Context, id string, force bool) (*models.PollResult, error)
	Stop(ctx context.Context)
}

// RetryService re-queues failed articles whose backoff has elapsed
type RetryService interface {
	RetryDue(ctx context.Context) int
}

// StatsService serves dashboard aggregates
type StatsService interface {
	Stats(ctx context.Context, siteID string) (*models.DashboardStats, error)
	Recent(ctx context.Context, limit int) ([]*models.Activity, error)
	Daily(ctx context.Context, siteID string, days int) ([]models.DailyCount, error)
}

// ScheduleInfo reports upcoming scheduled runs.
type ScheduleInfo interface {
	NextRuns() map[string]time.Time
}

// Capabilities groups the external collaborators of the pipeline.
type Capabilities struct {
	Processor ContentProcessor
	Languages LanguageDetector
	Embedder  Embedder
	Index     EmbeddingIndex
	Images    ImageResolver
	Publisher Publisher
	Fetchers  map[models.SourceType]Fetcher
}

// Services holds all service interfaces
type Services struct {
	Sites    SiteService
	Sources  SourceService
	Articles ArticleService
	Pipeline PipelineService
	Poller   PollerService
	Retry    RetryService
	Stats    StatsService
	Schedule ScheduleInfo
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, caps *Capabilities, cfg *config.Config, log zerolog.Logger) *Services {
	dedup := NewDedupService(repos.Article, caps.Embedder, caps.Index, cfg.Dedup, log)
	pipeline := NewPipelineService(repos, dedup, caps, cfg.Pipeline, log)

	return &Services{
		Sites:    NewSiteService(repos, caps.Publisher, caps.Index, log),
		Sources:  NewSourceService(repos, log),
		Articles: NewArticleService(repos.Article, pipeline, caps.Index, log),
		Pipeline: pipeline,
		Poller:   NewPollerService(repos, pipeline, caps.Fetchers, cfg.Poller, log),
		Retry:    NewRetryService(repos, pipeline, cfg.Retry, log),
		Stats:    NewStatsService(repos, log),
	}
}
