package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

// dedupService is the concrete implementation of DedupService
type dedupService struct {
	articles repository.ArticleRepository
	embedder Embedder
	index    EmbeddingIndex
	cfg      config.DedupConfig
	log      zerolog.Logger

	locks keyedMutex
}

// NewDedupService creates the duplicate gate
func NewDedupService(articles repository.ArticleRepository, embedder Embedder, index EmbeddingIndex, cfg config.DedupConfig, log zerolog.Logger) DedupService {
	return &dedupService{
		articles: articles,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		log:      log.With().Str("service", "dedup").Logger(),
	}
}

// Admit runs the exact and semantic checks. A nil verdict error with
// Duplicate=false means the article is now admitted: its embedding is
// stored and indexed, and no later article of the site with the same
// fingerprint or a similar embedding can be admitted.
func (s *dedupService) Admit(ctx context.Context, article *models.Article) (*models.DedupVerdict, error) {
	// Cheap exact check first so obvious repeats never reach the embedding service.
	if verdict, err := s.exactMatch(ctx, article); err != nil || verdict != nil {
		return verdict, err
	}

	vec, err := s.embedder.Embed(ctx, article.EmbeddingText(s.cfg.EmbedChars))
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}
	if len(vec) == 0 {
		return nil, &models.EmbeddingError{Err: errors.New("empty embedding")}
	}
	if s.cfg.EmbeddingDim > 0 && len(vec) != s.cfg.EmbeddingDim {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("dimension %d, expected %d", len(vec), s.cfg.EmbeddingDim)}
	}

	unlock := s.locks.Lock(article.SiteID)
	defer unlock()

	// Re-check under the site lock: another worker may have admitted the
	// same fingerprint while we were embedding.
	if verdict, err := s.exactMatch(ctx, article); err != nil || verdict != nil {
		return verdict, err
	}

	neighbors, err := s.index.Query(ctx, article.SiteID, vec, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	for _, n := range neighbors {
		if n.ArticleID == article.ID {
			continue
		}
		if n.Similarity >= s.cfg.SimilarityThreshold {
			s.log.Info().
				Str("article_id", article.ID).
				Str("site_id", article.SiteID).
				Str("matched_id", n.ArticleID).
				Float64("similarity", n.Similarity).
				Msg("Similar article already admitted")
			return &models.DedupVerdict{
				Duplicate:  true,
				Reason:     models.DuplicateBySimilarity,
				MatchedID:  n.ArticleID,
				Similarity: n.Similarity,
			}, nil
		}
		break
	}

	if err := s.articles.MarkAdmitted(ctx, article.ID, vec); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// Another process admitted the same fingerprint.
			return &models.DedupVerdict{Duplicate: true, Reason: models.DuplicateByFingerprint}, nil
		}
		return nil, fmt.Errorf("mark admitted: %w", err)
	}
	if err := s.index.Insert(ctx, article.SiteID, article.ID, vec); err != nil {
		// The vector is persisted; the shard reloads it on next use.
		s.log.Warn().Err(err).Str("article_id", article.ID).Msg("Failed to insert into in-memory index")
		s.index.Forget(article.SiteID)
	}

	article.DedupPassed = true
	article.Embedding = vec
	return &models.DedupVerdict{Duplicate: false}, nil
}

func (s *dedupService) exactMatch(ctx context.Context, article *models.Article) (*models.DedupVerdict, error) {
	match, err := s.articles.FindAdmittedByFingerprint(ctx, article.SiteID, article.Fingerprint, article.ID)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if match == nil {
		return nil, nil
	}
	s.log.Info().
		Str("article_id", article.ID).
		Str("site_id", article.SiteID).
		Str("matched_id", match.ID).
		Msg("Exact duplicate by fingerprint")
	return &models.DedupVerdict{
		Duplicate:   true,
		Reason:      models.DuplicateByFingerprint,
		MatchedID:   match.ID,
		Similarity:  1,
		Fingerprint: article.Fingerprint,
	}, nil
}

// keyedMutex serializes work per key; different keys never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
