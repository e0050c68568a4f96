package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/vectorindex"
)

var (
	_ repository.SiteRepository    = (*MockSiteRepository)(nil)
	_ repository.SourceRepository  = (*MockSourceRepository)(nil)
	_ repository.ArticleRepository = (*MockArticleRepository)(nil)
)

// MockSiteRepository is a mock implementation of SiteRepository
type MockSiteRepository struct {
	mu    sync.Mutex
	Sites map[string]*models.Site
	Err   error
}

func NewMockSiteRepository() *MockSiteRepository {
	return &MockSiteRepository{Sites: make(map[string]*models.Site)}
}

func (m *MockSiteRepository) Create(ctx context.Context, site *models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *site
	m.Sites[site.ID] = &cp
	return nil
}

func (m *MockSiteRepository) Update(ctx context.Context, site *models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sites[site.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *site
	m.Sites[site.ID] = &cp
	return nil
}

func (m *MockSiteRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sites[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Sites, id)
	return nil
}

func (m *MockSiteRepository) GetByID(ctx context.Context, id string) (*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	site, ok := m.Sites[id]
	if !ok {
		return nil, nil
	}
	cp := *site
	return &cp, nil
}

func (m *MockSiteRepository) List(ctx context.Context) ([]*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sites := make([]*models.Site, 0, len(m.Sites))
	for _, s := range m.Sites {
		cp := *s
		sites = append(sites, &cp)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

func (m *MockSiteRepository) Count(ctx context.Context) (models.CountPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.CountPair
	for _, s := range m.Sites {
		c.Total++
		if s.Active {
			c.Active++
		}
	}
	return c, nil
}

// MockSourceRepository is a mock implementation of SourceRepository.
// Sites is consulted by ListActive to filter inactive sites. When Articles
// is set, Delete unlinks the source's articles the way the schema does.
type MockSourceRepository struct {
	mu        sync.Mutex
	Sources   map[string]*models.Source
	Sites     *MockSiteRepository
	Articles  *MockArticleRepository
	PolledAt  map[string]time.Time
	PollError map[string]string
}

func NewMockSourceRepository(sites *MockSiteRepository) *MockSourceRepository {
	return &MockSourceRepository{
		Sources:   make(map[string]*models.Source),
		Sites:     sites,
		PolledAt:  make(map[string]time.Time),
		PollError: make(map[string]string),
	}
}

func (m *MockSourceRepository) Create(ctx context.Context, source *models.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *source
	m.Sources[source.ID] = &cp
	return nil
}

func (m *MockSourceRepository) Update(ctx context.Context, source *models.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sources[source.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *source
	m.Sources[source.ID] = &cp
	return nil
}

func (m *MockSourceRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sources[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Sources, id)
	if m.Articles != nil {
		m.Articles.DetachSource(id)
	}
	return nil
}

// LastPolled returns the recorded last_polled_at of a source.
func (m *MockSourceRepository) LastPolled(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.PolledAt[id]
	return at, ok
}

// LastError returns the recorded poll error of a source.
func (m *MockSourceRepository) LastError(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PollError[id]
}

func (m *MockSourceRepository) GetByID(ctx context.Context, id string) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[id]
	if !ok {
		return nil, nil
	}
	cp := *src
	return &cp, nil
}

func (m *MockSourceRepository) List(ctx context.Context, siteID string) ([]*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Source
	for _, s := range m.Sources {
		if siteID != "" && s.SiteID != siteID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockSourceRepository) ListActive(ctx context.Context) ([]*models.DueSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DueSource
	for _, s := range m.Sources {
		if !s.Active {
			continue
		}
		site, _ := m.Sites.GetByID(ctx, s.SiteID)
		if site == nil || !site.Active {
			continue
		}
		cp := *s
		out = append(out, &models.DueSource{Source: &cp, Site: site})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.ID < out[j].Source.ID })
	return out, nil
}

func (m *MockSourceRepository) MarkPolled(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sources[id]; ok {
		t := at
		s.LastPolledAt = &t
		s.LastError = ""
	}
	m.PolledAt[id] = at
	return nil
}

func (m *MockSourceRepository) RecordPollError(ctx context.Context, id string, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sources[id]; ok {
		s.LastError = message
	}
	m.PollError[id] = message
	return nil
}

func (m *MockSourceRepository) Count(ctx context.Context, siteID string) (models.CountPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.CountPair
	for _, s := range m.Sources {
		if siteID != "" && s.SiteID != siteID {
			continue
		}
		c.Total++
		if s.Active {
			c.Active++
		}
	}
	return c, nil
}

// MockArticleRepository is an in-memory ArticleRepository that honours the
// same conditional-update semantics as the SQL implementation, including the
// admitted-fingerprint uniqueness constraint.
type MockArticleRepository struct {
	mu       sync.Mutex
	Articles map[string]*models.Article
	order    []string

	CreateErr error
	ClaimErr  error
	LoadCalls int
	// MarkPublishedErrs are returned by successive MarkPublished calls.
	MarkPublishedErrs []error
}

func NewMockArticleRepository() *MockArticleRepository {
	return &MockArticleRepository{Articles: make(map[string]*models.Article)}
}

func (m *MockArticleRepository) Create(ctx context.Context, article *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if article.SourceID != nil {
		for _, a := range m.Articles {
			if a.SourceID != nil && *a.SourceID == *article.SourceID && a.ExternalID == article.ExternalID {
				return models.ErrAlreadyExists
			}
		}
	}
	cp := *article
	m.Articles[article.ID] = &cp
	m.order = append(m.order, article.ID)
	return nil
}

func (m *MockArticleRepository) GetByID(ctx context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// Get returns the stored article for assertions.
func (m *MockArticleRepository) Get(id string) *models.Article {
	a, _ := m.GetByID(context.Background(), id)
	return a
}

func (m *MockArticleRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Articles[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Articles, id)
	return nil
}

func (m *MockArticleRepository) List(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.Article
	for i := len(m.order) - 1; i >= 0; i-- {
		a, ok := m.Articles[m.order[i]]
		if !ok {
			continue
		}
		if filter.SiteID != "" && a.SiteID != filter.SiteID {
			continue
		}
		if filter.SourceID != "" && (a.SourceID == nil || *a.SourceID != filter.SourceID) {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := total
	if filter.PerPage > 0 && start+filter.PerPage < end {
		end = start + filter.PerPage
	}
	return matched[start:end], total, nil
}

func (m *MockArticleRepository) KnownExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	known := make(map[string]bool)
	for _, a := range m.Articles {
		if a.SourceID != nil && *a.SourceID == sourceID && want[a.ExternalID] {
			known[a.ExternalID] = true
		}
	}
	return known, nil
}

func (m *MockArticleRepository) FindAdmittedByFingerprint(ctx context.Context, siteID, fingerprint, excludeID string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		a, ok := m.Articles[id]
		if !ok || id == excludeID {
			continue
		}
		if a.SiteID == siteID && a.Fingerprint == fingerprint && a.DedupPassed && a.Status != models.StatusDuplicate {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockArticleRepository) LoadEmbeddings(ctx context.Context, siteID string) ([]vectorindex.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls++
	var entries []vectorindex.Entry
	for _, id := range m.order {
		a, ok := m.Articles[id]
		if !ok {
			continue
		}
		if a.SiteID == siteID && a.DedupPassed && a.Status != models.StatusDuplicate && len(a.Embedding) > 0 {
			entries = append(entries, vectorindex.Entry{ArticleID: a.ID, Vector: a.Embedding})
		}
	}
	return entries, nil
}

func (m *MockArticleRepository) GetPending(ctx context.Context, limit int) ([]*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Article
	for _, id := range m.order {
		a, ok := m.Articles[id]
		if !ok || a.Status != models.StatusPending {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockArticleRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Article
	for _, id := range m.order {
		a, ok := m.Articles[id]
		if !ok || a.Status != models.StatusFailed || a.ErrorKind != models.ErrorKindTransient || a.PostID != 0 {
			continue
		}
		if maxAttempts > 0 && a.RetryCount >= maxAttempts {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockArticleRepository) Claim(ctx context.Context, id string, from models.ArticleStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimErr != nil {
		return false, m.ClaimErr
	}
	a, ok := m.Articles[id]
	if !ok || a.Status != from {
		return false, nil
	}
	t := at
	a.Status = models.StatusProcessing
	a.LastAttemptedAt = &t
	return true, nil
}

func (m *MockArticleRepository) MarkAdmitted(ctx context.Context, id string, embedding []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok || a.Status != models.StatusProcessing {
		return models.ErrNotFound
	}
	for _, other := range m.Articles {
		if other.ID != id && other.SiteID == a.SiteID && other.Fingerprint == a.Fingerprint &&
			other.DedupPassed && other.Status != models.StatusDuplicate {
			return models.ErrAlreadyExists
		}
	}
	a.DedupPassed = true
	a.Embedding = append([]float64(nil), embedding...)
	return nil
}

func (m *MockArticleRepository) SaveProcessed(ctx context.Context, article *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[article.ID]
	if !ok || a.Status != models.StatusProcessing {
		return models.ErrNotFound
	}
	a.SourceLanguage = article.SourceLanguage
	a.ProcessedTitle = article.ProcessedTitle
	a.ProcessedBody = article.ProcessedBody
	a.MetaDescription = article.MetaDescription
	a.Category = article.Category
	a.ImageSource = article.ImageSource
	a.ImageURL = article.ImageURL
	a.ProcessedAt = article.ProcessedAt
	return nil
}

func (m *MockArticleRepository) MarkDuplicate(ctx context.Context, id string, verdict *models.DedupVerdict) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok || a.Status != models.StatusProcessing {
		return false, nil
	}
	a.Status = models.StatusDuplicate
	if verdict.MatchedID != "" {
		matched := verdict.MatchedID
		a.DuplicateOf = &matched
	}
	if verdict.Reason == models.DuplicateBySimilarity {
		sim := verdict.Similarity
		a.Similarity = &sim
	}
	return true, nil
}

func (m *MockArticleRepository) MarkFailed(ctx context.Context, id string, failure models.Failure) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok || a.Status != models.StatusProcessing {
		return false, nil
	}
	a.Status = models.StatusFailed
	a.RetryCount++
	a.ErrorStage = failure.Stage
	a.ErrorKind = failure.Kind
	a.ErrorMessage = failure.Message
	if failure.PostID != 0 {
		a.PostID = failure.PostID
		a.PostURL = failure.PostURL
	}
	return true, nil
}

func (m *MockArticleRepository) MarkPublished(ctx context.Context, article *models.Article) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.MarkPublishedErrs) > 0 {
		err := m.MarkPublishedErrs[0]
		m.MarkPublishedErrs = m.MarkPublishedErrs[1:]
		return false, err
	}
	a, ok := m.Articles[article.ID]
	if !ok || a.Status != models.StatusProcessing {
		return false, nil
	}
	a.Status = models.StatusPublished
	a.PostID = article.PostID
	a.PostURL = article.PostURL
	a.PublishedAt = article.PublishedAt
	a.ImageSource = article.ImageSource
	a.ImageURL = article.ImageURL
	a.ErrorStage, a.ErrorKind, a.ErrorMessage = "", "", ""
	return true, nil
}

func (m *MockArticleRepository) ResetStuckProcessing(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.Articles {
		if a.Status == models.StatusProcessing {
			a.Status = models.StatusFailed
			a.RetryCount++
			a.ErrorStage = models.StageInterrupted
			a.ErrorKind = models.ErrorKindTransient
			if a.PostID != 0 {
				a.ErrorKind = models.ErrorKindRejected
			}
			n++
		}
	}
	return n, nil
}

func (m *MockArticleRepository) CountByStatus(ctx context.Context, siteID string) (map[models.ArticleStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.ArticleStatus]int)
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, a := range m.Articles {
		if siteID != "" && a.SiteID != siteID {
			continue
		}
		counts[a.Status]++
	}
	return counts, nil
}

func (m *MockArticleRepository) CountSince(ctx context.Context, siteID string, since time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var created, published int
	for _, a := range m.Articles {
		if siteID != "" && a.SiteID != siteID {
			continue
		}
		if !a.CreatedAt.Before(since) {
			created++
		}
		if a.PublishedAt != nil && !a.PublishedAt.Before(since) {
			published++
		}
	}
	return created, published, nil
}

func (m *MockArticleRepository) Recent(ctx context.Context, limit int) ([]*models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Activity
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		a, ok := m.Articles[m.order[i]]
		if !ok {
			continue
		}
		title := a.ProcessedTitle
		if title == "" {
			title = a.OriginalTitle
		}
		out = append(out, &models.Activity{
			ArticleID: a.ID, SiteID: a.SiteID, Title: title, Status: a.Status,
			PostURL: a.PostURL, Error: a.ErrorMessage, UpdatedAt: a.UpdatedAt,
		})
	}
	return out, nil
}

func (m *MockArticleRepository) DailyCounts(ctx context.Context, siteID string, since time.Time) ([]models.DailyCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since = since.UTC().Truncate(24 * time.Hour)
	created := map[string]int{}
	published := map[string]int{}
	for _, a := range m.Articles {
		if siteID != "" && a.SiteID != siteID {
			continue
		}
		if !a.CreatedAt.Before(since) {
			created[a.CreatedAt.UTC().Format("2006-01-02")]++
		}
		if a.PublishedAt != nil && !a.PublishedAt.Before(since) {
			published[a.PublishedAt.UTC().Format("2006-01-02")]++
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var series []models.DailyCount
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		series = append(series, models.DailyCount{Date: key, Created: created[key], Published: published[key]})
	}
	return series, nil
}

// DetachSource clears source_id on the articles of a deleted source.
func (m *MockArticleRepository) DetachSource(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Articles {
		if a.SourceID != nil && *a.SourceID == sourceID {
			a.SourceID = nil
		}
	}
}

// Put stores an article directly, bypassing Create's checks.
func (m *MockArticleRepository) Put(article *models.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *article
	if _, exists := m.Articles[article.ID]; !exists {
		m.order = append(m.order, article.ID)
	}
	m.Articles[article.ID] = &cp
}
