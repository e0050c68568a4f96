package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// pollerService is the concrete implementation of PollerService. Scheduled
// polls run on its own bounded pool and outlive the tick that started them.
type pollerService struct {
	repos    *repository.Repositories
	pipeline PipelineService
	fetchers map[models.SourceType]Fetcher
	cfg      config.PollerConfig
	log      zerolog.Logger
	now      func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	slots   *semaphore.Weighted
	wg      sync.WaitGroup
	stopped bool

	mu       sync.Mutex
	inflight map[string]bool
}

// NewPollerService creates a new PollerService
func NewPollerService(repos *repository.Repositories, pipeline PipelineService, fetchers map[models.SourceType]Fetcher, cfg config.PollerConfig, log zerolog.Logger) PollerService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 3 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pollerService{
		repos:    repos,
		pipeline: pipeline,
		fetchers: fetchers,
		cfg:      cfg,
		log:      log.With().Str("service", "poller").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
		slots:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		inflight: make(map[string]bool),
	}
}

// PollDue dispatches every due source that is not already being polled and
// returns how many were dispatched. It does not wait for the polls.
func (s *pollerService) PollDue(ctx context.Context) int {
	due, err := s.repos.Source.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active sources")
		return 0
	}

	now := s.now()
	dispatched := 0
	for _, ds := range due {
		if !ds.Source.Due(now, ds.Site.VelocityMode, s.cfg.EvergreenMinInterval) {
			continue
		}
		if !s.acquire(ds.Source.ID) {
			continue
		}
		if !s.dispatch(ds.Source, ds.Site) {
			s.release(ds.Source.ID)
			break
		}
		dispatched++
	}

	if dispatched > 0 {
		s.log.Debug().Int("sources", dispatched).Msg("Sources dispatched")
	}
	return dispatched
}

// dispatch starts a background poll of a source the caller has acquired.
func (s *pollerService) dispatch(source *models.Source, site *models.Site) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(source.ID)
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			return
		}
		defer s.slots.Release(1)
		s.poll(s.ctx, source, site)
	}()
	return true
}

// Stop cancels background polls and waits for them, bounded by ctx.
func (s *pollerService) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("Poller stop timed out with polls still running")
	}
}

// PollSource polls one source. Without force a source that is not yet due
// is skipped.
func (s *pollerService) PollSource(ctx context.Context, id string, force bool) (*models.PollResult, error) {
	source, err := s.repos.Source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, models.ErrNotFound
	}
	site, err := s.repos.Site.GetByID(ctx, source.SiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, models.ErrNotFound
	}

	if !force && !source.Due(s.now(), site.VelocityMode, s.cfg.EvergreenMinInterval) {
		return &models.PollResult{SourceID: source.ID, Skipped: true}, nil
	}
	if !s.acquire(source.ID) {
		return &models.PollResult{SourceID: source.ID, Skipped: true}, nil
	}
	defer s.release(source.ID)
	return s.poll(ctx, source, site), nil
}

// poll runs one cycle for a source the caller has acquired. The whole cycle,
// item loads included, is bounded by the source timeout.
func (s *pollerService) poll(ctx context.Context, source *models.Source, site *models.Site) *models.PollResult {
	result := &models.PollResult{SourceID: source.ID}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	log := s.log.With().Str("source_id", source.ID).Str("site_id", site.ID).Logger()
	started := s.now()
	result.PolledAt = started

	candidates, err := s.fetch(ctx, source)
	if err != nil {
		s.recordError(ctx, log, source, started, err)
		result.Error = err.Error()
		return result
	}
	result.Fetched = len(candidates)

	fresh, err := s.unseen(ctx, source, candidates)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check known items")
		result.Error = err.Error()
		return result
	}
	result.New = len(fresh)

	limit := source.MaxItemsPerPoll
	if limit <= 0 {
		limit = models.DefaultMaxItemsPerPoll
	}
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}

	hydrator, _ := s.fetchers[source.Type].(Hydrator)
	var loadFailures int
	var lastLoadErr error
	for _, c := range fresh {
		if hydrator != nil {
			if err := s.hydrate(ctx, hydrator, source, c); err != nil {
				log.Warn().Err(err).Str("url", c.URL).Msg("Failed to load item")
				loadFailures++
				lastLoadErr = err
				continue
			}
		}

		c.SiteID = site.ID
		c.SourceID = source.ID
		if _, err := s.pipeline.Intake(ctx, c); err != nil {
			if errors.Is(err, models.ErrAlreadyExists) {
				continue
			}
			log.Error().Err(err).Str("external_id", c.ExternalID).Msg("Failed to queue item")
			continue
		}
		result.Submitted++
	}

	// Nothing could be loaded: same as a failed fetch.
	if len(fresh) > 0 && loadFailures == len(fresh) {
		ferr := &models.FetchError{SourceID: source.ID, URL: source.URL, Err: lastLoadErr}
		s.recordError(ctx, log, source, started, ferr)
		result.Error = ferr.Error()
		return result
	}

	if err := s.repos.Source.MarkPolled(ctx, source.ID, started); err != nil {
		log.Error().Err(err).Msg("Failed to mark source polled")
	}

	log.Info().
		Int("fetched", result.Fetched).
		Int("new", result.New).
		Int("submitted", result.Submitted).
		Dur("duration", s.now().Sub(started)).
		Msg("Source polled")
	return result
}

// recordError stores a poll failure. last_polled_at stays put so the source
// is retried on the next tick.
func (s *pollerService) recordError(ctx context.Context, log zerolog.Logger, source *models.Source, at time.Time, err error) {
	log.Warn().Err(err).Str("url", source.URL).Msg("Source fetch failed")
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if rerr := s.repos.Source.RecordPollError(wctx, source.ID, err.Error(), at); rerr != nil {
		log.Error().Err(rerr).Msg("Failed to record poll error")
	}
}

func (s *pollerService) hydrate(ctx context.Context, h Hydrator, source *models.Source, c *models.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hctx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	return h.Hydrate(hctx, source, c)
}

func (s *pollerService) fetch(ctx context.Context, source *models.Source) ([]*models.Candidate, error) {
	fetcher, ok := s.fetchers[source.Type]
	if !ok {
		return nil, &models.FetchError{SourceID: source.ID, URL: source.URL, Err: fmt.Errorf("no fetcher for type %q", source.Type)}
	}

	fctx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	items, err := fetcher.List(fctx, source)
	if err != nil {
		var fe *models.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &models.FetchError{SourceID: source.ID, URL: source.URL, Err: err}
	}
	return items, nil
}

// unseen drops items already recorded for the source, keeping feed order.
// Items without an external id are keyed by URL.
func (s *pollerService) unseen(ctx context.Context, source *models.Source, items []*models.Candidate) ([]*models.Candidate, error) {
	ids := make([]string, 0, len(items))
	batch := make(map[string]bool, len(items))
	keep := make([]*models.Candidate, 0, len(items))
	for _, c := range items {
		if c.ExternalID == "" {
			c.ExternalID = c.URL
		}
		if c.ExternalID == "" || batch[c.ExternalID] {
			continue
		}
		batch[c.ExternalID] = true
		ids = append(ids, c.ExternalID)
		keep = append(keep, c)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	known, err := s.repos.Article.KnownExternalIDs(ctx, source.ID, ids)
	if err != nil {
		return nil, err
	}
	fresh := keep[:0]
	for _, c := range keep {
		if !known[c.ExternalID] {
			fresh = append(fresh, c)
		}
	}
	return fresh, nil
}

func (s *pollerService) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *pollerService) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
