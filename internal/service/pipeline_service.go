package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/fingerprint"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Terminal status writes run detached from the run's context and are retried
// with doubling backoff before the run gives up on them.
const (
	statusWriteTimeout  = 10 * time.Second
	statusWriteAttempts = 4
	statusWriteBackoff  = 100 * time.Millisecond
)

// pipelineService is the concrete implementation of PipelineService.
// It is the only writer of article status.
type pipelineService struct {
	articles repository.ArticleRepository
	sites    repository.SiteRepository
	dedup    DedupService
	caps     *Capabilities
	cfg      config.PipelineConfig
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	stopped bool
	mu      sync.Mutex
	// Semaphore: buffered channel bounding concurrent article runs
	sem   chan struct{}
	nudge chan struct{}
}

// NewPipelineService creates the orchestrator with its worker pool
func NewPipelineService(repos *repository.Repositories, dedup DedupService, caps *Capabilities, cfg config.PipelineConfig, log zerolog.Logger) PipelineService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = workers
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}

	log.Info().Int("max_workers", workers).Msg("Initializing pipeline worker pool")

	ctx, cancel := context.WithCancel(context.Background())
	return &pipelineService{
		articles: repos.Article,
		sites:    repos.Site,
		dedup:    dedup,
		caps:     caps,
		cfg:      cfg,
		log:      log.With().Str("service", "pipeline").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, workers),
		nudge:    make(chan struct{}, 1),
	}
}

// Intake records a candidate as a pending article and wakes the worker pool
func (s *pipelineService) Intake(ctx context.Context, c *models.Candidate) (*models.Article, error) {
	site, err := s.sites.GetByID(ctx, c.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load site: %w", err)
	}
	if site == nil {
		return nil, models.ErrNotFound
	}

	now := time.Now().UTC()
	article := &models.Article{
		ID:               uuid.New().String(),
		SiteID:           site.ID,
		ExternalID:       c.ExternalID,
		OriginalURL:      c.URL,
		OriginalTitle:    c.Title,
		OriginalBody:     c.Body,
		OriginalImageURL: c.ImageURL,
		Fingerprint:      fingerprint.Compute(c.Title, c.URL),
		ImageSource:      models.ImageSourceNone,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if c.SourceID != "" {
		sourceID := c.SourceID
		article.SourceID = &sourceID
	}
	if article.ExternalID == "" {
		article.ExternalID = "manual:" + uuid.New().String()
	}

	if err := s.articles.Create(ctx, article); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("article_id", article.ID).
		Str("site_id", article.SiteID).
		Str("external_id", article.ExternalID).
		Msg("Article queued")

	select {
	case s.nudge <- struct{}{}:
	default:
	}
	return article, nil
}

// ProcessArticle claims a pending article and runs the pipeline synchronously
func (s *pipelineService) ProcessArticle(ctx context.Context, id string) (models.ArticleStatus, error) {
	article, err := s.claim(ctx, id, models.StatusPending)
	if err != nil {
		return "", err
	}
	return s.execute(ctx, article, false), nil
}

// RetryArticle claims a failed article and re-runs the pipeline synchronously
func (s *pipelineService) RetryArticle(ctx context.Context, id string) (models.ArticleStatus, error) {
	article, err := s.claim(ctx, id, models.StatusFailed)
	if err != nil {
		return "", err
	}
	return s.execute(ctx, article, true), nil
}

// ScheduleRetry claims a failed article and runs it on the worker pool
func (s *pipelineService) ScheduleRetry(ctx context.Context, id string) error {
	article, err := s.claim(ctx, id, models.StatusFailed)
	if err != nil {
		return err
	}

	started := s.spawn(func() {
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			s.fail(s.ctx, article, models.StageInterrupted, models.ErrorKindTransient, errors.New("shutdown before retry started"))
			return
		}
		defer func() { <-s.sem }()
		s.run(article, true)
	})
	if !started {
		s.fail(s.ctx, article, models.StageInterrupted, models.ErrorKindTransient, errors.New("shutdown before retry started"))
	}
	return nil
}

// RecoverInterrupted fails articles left in processing by a previous process
func (s *pipelineService) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.articles.ResetStuckProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset stuck articles: %w", err)
	}
	if n > 0 {
		s.log.Warn().Int64("count", n).Msg("Recovered articles interrupted mid-processing")
	}
	return n, nil
}

// StartProcessor starts the background worker loop
func (s *pipelineService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.cfg.PollInterval).Msg("Pipeline processor started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Pipeline processor stopping")
			return
		case <-s.ctx.Done():
			s.log.Info().Msg("Pipeline processor stopping")
			return
		case <-ticker.C:
			s.processPending()
		case <-s.nudge:
			s.processPending()
		}
	}
}

// StopProcessor cancels in-flight runs and waits for them to record their outcome
func (s *pipelineService) StopProcessor() {
	s.mu.Lock()
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info().Msg("Pipeline processor stopped")
}

// spawn runs fn in a goroutine tracked by the pool. It refuses once
// StopProcessor has begun, so wg.Add never races wg.Wait.
func (s *pipelineService) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// processPending claims pending articles up to the free worker capacity
func (s *pipelineService) processPending() {
	free := cap(s.sem) - len(s.sem)
	if free <= 0 {
		return
	}
	limit := s.cfg.BatchSize
	if free < limit {
		limit = free
	}

	pending, err := s.articles.GetPending(s.ctx, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get pending articles")
		return
	}

	for _, article := range pending {
		// Acquire semaphore slot - blocks if all workers are busy (backpressure)
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		claimed, err := s.articles.Claim(s.ctx, article.ID, models.StatusPending, time.Now().UTC())
		if err != nil || !claimed {
			<-s.sem
			continue // another worker already picked it up
		}
		article.Status = models.StatusProcessing

		a := article
		if !s.spawn(func() {
			defer func() { <-s.sem }()
			s.run(a, false)
		}) {
			<-s.sem
			s.fail(s.ctx, a, models.StageInterrupted, models.ErrorKindTransient, errors.New("shutdown before run started"))
			return
		}
	}
}

// run executes one article on the pool's context
func (s *pipelineService) run(article *models.Article, retry bool) {
	s.execute(s.ctx, article, retry)
}

func (s *pipelineService) claim(ctx context.Context, id string, from models.ArticleStatus) (*models.Article, error) {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}
	if article == nil {
		return nil, models.ErrNotFound
	}
	if article.Status != from {
		if article.Status == models.StatusProcessing {
			return nil, models.ErrAlreadyClaimed
		}
		if from == models.StatusFailed {
			return nil, models.ErrNotRetryable
		}
		return nil, fmt.Errorf("article %s is %s, not %s: %w", id, article.Status, from, models.ErrAlreadyClaimed)
	}
	// A recorded post means the destination already has it.
	if article.PostID != 0 {
		return nil, fmt.Errorf("article %s already created post %d: %w", id, article.PostID, models.ErrNotRetryable)
	}

	claimed, err := s.articles.Claim(ctx, id, from, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim article: %w", err)
	}
	if !claimed {
		return nil, models.ErrAlreadyClaimed
	}
	article.Status = models.StatusProcessing
	return article, nil
}

// execute drives a claimed article to published, failed or duplicate
func (s *pipelineService) execute(parent context.Context, article *models.Article, retry bool) (status models.ArticleStatus) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	log := s.log.With().
		Str("article_id", article.ID).
		Str("site_id", article.SiteID).
		Bool("retry", retry).
		Logger()

	// Panic recovery - a bad article must not take down the worker pool
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Article processing panicked - recovered")
			status = s.fail(ctx, article, models.StageInternal, models.ErrorKindTransient, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	log.Info().Msg("Processing article")

	site, err := s.sites.GetByID(ctx, article.SiteID)
	if err != nil {
		return s.fail(ctx, article, models.StageInternal, models.ErrorKindTransient, fmt.Errorf("load site: %w", err))
	}
	if site == nil {
		return s.fail(ctx, article, models.StageInternal, models.ErrorKindRejected, errors.New("site no longer exists"))
	}

	// Dedup gate; skipped on retries that already passed it.
	if !article.DedupPassed {
		verdict, err := s.dedup.Admit(ctx, article)
		if err != nil {
			return s.fail(ctx, article, models.StageDedup, models.ErrorKindTransient, err)
		}
		if verdict.Duplicate {
			if retry {
				return s.fail(ctx, article, models.StageDedup, models.ErrorKindRejected,
					fmt.Errorf("duplicate content detected on retry (%s match %s)", verdict.Reason, verdict.MatchedID))
			}
			return s.markDuplicate(ctx, article, verdict)
		}
	}

	if article.SourceLanguage == "" && s.caps.Languages != nil {
		article.SourceLanguage = s.caps.Languages.Detect(article.OriginalTitle, article.OriginalBody)
		log.Debug().Str("source_language", article.SourceLanguage).Msg("Detected source language")
	}

	result, err := s.caps.Processor.Process(ctx, &models.ProcessRequest{
		Title:          article.OriginalTitle,
		Body:           article.OriginalBody,
		SourceLanguage: article.SourceLanguage,
		TargetLanguage: site.TargetLanguage,
		Categories:     site.CategoryMap,
	})
	if err != nil {
		return s.fail(ctx, article, models.StageProcess, models.ErrorKindTransient, err)
	}
	processedAt := time.Now().UTC()
	article.ProcessedTitle = result.Title
	article.ProcessedBody = result.Body
	article.MetaDescription = result.MetaDescription
	article.Category = result.Category
	article.ProcessedAt = &processedAt

	image := s.caps.Images.Resolve(ctx, &models.ImageRequest{
		Title:            article.ProcessedTitle,
		Body:             article.ProcessedBody,
		OriginalImageURL: article.OriginalImageURL,
		Site:             site,
	})
	if image == nil {
		image = &models.ResolvedImage{Source: models.ImageSourceNone}
	}
	article.ImageSource = image.Source
	article.ImageURL = image.URL

	if err := s.articles.SaveProcessed(ctx, article); err != nil {
		return s.fail(ctx, article, models.StageProcess, models.ErrorKindTransient, fmt.Errorf("save processed content: %w", err))
	}

	categoryID, ok := site.ResolveCategory(article.Category)
	if !ok && article.Category != "" {
		log.Debug().Str("category", article.Category).Msg("Category not mapped, publishing uncategorized")
	}

	post := &models.Post{
		Title:           article.ProcessedTitle,
		Body:            article.ProcessedBody,
		MetaDescription: article.MetaDescription,
		CategoryID:      categoryID,
		AuthorID:        site.DefaultAuthorID,
	}
	if image.Found() {
		post.Image = image
	}

	published, err := s.caps.Publisher.Publish(ctx, site, post)
	if err != nil {
		kind := models.ErrorKindTransient
		var authErr *models.PublishAuthError
		if errors.As(err, &authErr) {
			kind = models.ErrorKindAuth
		}
		return s.fail(ctx, article, models.StagePublish, kind, err)
	}

	publishedAt := time.Now().UTC()
	article.PostID = published.PostID
	article.PostURL = published.URL
	article.PublishedAt = &publishedAt

	ok, err = s.persist(ctx, func(wctx context.Context) (bool, error) {
		return s.articles.MarkPublished(wctx, article)
	})
	if err != nil {
		// The post exists; record it on a non-retryable failure so no
		// later run publishes it again.
		log.Error().Err(err).Int64("post_id", published.PostID).Msg("Post created but article status not updated")
		return s.fail(ctx, article, models.StagePublish, models.ErrorKindRejected,
			fmt.Errorf("post %d created at %s but status update failed: %w", published.PostID, published.URL, err))
	}
	if !ok {
		log.Error().Int64("post_id", published.PostID).Msg("Post created but article left processing elsewhere")
		return s.storedStatus(article.ID)
	}

	log.Info().
		Int64("post_id", published.PostID).
		Str("post_url", published.URL).
		Str("image_source", string(article.ImageSource)).
		Dur("duration", time.Since(start)).
		Msg("Article published")
	return models.StatusPublished
}

func (s *pipelineService) markDuplicate(ctx context.Context, article *models.Article, verdict *models.DedupVerdict) models.ArticleStatus {
	ok, err := s.persist(ctx, func(wctx context.Context) (bool, error) {
		return s.articles.MarkDuplicate(wctx, article.ID, verdict)
	})
	if err != nil {
		s.log.Error().Err(err).Str("article_id", article.ID).Msg("Failed to mark article duplicate")
		return models.StatusProcessing
	}
	if !ok {
		return s.storedStatus(article.ID)
	}
	s.log.Info().
		Str("article_id", article.ID).
		Str("reason", verdict.Reason).
		Str("matched_id", verdict.MatchedID).
		Msg("Article is a duplicate")
	return models.StatusDuplicate
}

// fail records a failed run. The write uses a context detached from the
// run so that timeouts and shutdown still leave a terminal record. A post
// already created by the run is stored with the failure.
func (s *pipelineService) fail(ctx context.Context, article *models.Article, stage, kind string, cause error) models.ArticleStatus {
	message := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = fmt.Sprintf("timed out after %s: %s", s.cfg.RunTimeout, message)
	} else if errors.Is(ctx.Err(), context.Canceled) {
		stage = models.StageInterrupted
		message = "interrupted: " + message
	}

	failure := models.Failure{
		Stage:   stage,
		Kind:    kind,
		Message: message,
		PostID:  article.PostID,
		PostURL: article.PostURL,
	}
	ok, err := s.persist(ctx, func(wctx context.Context) (bool, error) {
		return s.articles.MarkFailed(wctx, article.ID, failure)
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("article_id", article.ID).
			Int64("post_id", article.PostID).
			Msg("Failed to record article failure")
		return models.StatusProcessing
	}
	if !ok {
		return s.storedStatus(article.ID)
	}

	s.log.Warn().
		Str("article_id", article.ID).
		Str("site_id", article.SiteID).
		Str("stage", stage).
		Str("kind", kind).
		Str("error", message).
		Msg("Article failed")
	return models.StatusFailed
}

// persist applies a terminal status write on a context detached from the
// run, retrying store errors. ok is false when the row had already left
// processing.
func (s *pipelineService) persist(ctx context.Context, write func(context.Context) (bool, error)) (bool, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	delay := statusWriteBackoff
	for attempt := 1; ; attempt++ {
		ok, err := write(wctx)
		if err == nil {
			return ok, nil
		}
		if attempt == statusWriteAttempts {
			return false, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Status write failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-wctx.Done():
			timer.Stop()
			return false, err
		case <-timer.C:
		}
		delay *= 2
	}
}

// storedStatus reports the status another writer left the article in.
func (s *pipelineService) storedStatus(id string) models.ArticleStatus {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	article, err := s.articles.GetByID(ctx, id)
	if err != nil || article == nil {
		return ""
	}
	return article.Status
}
