package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
)

// MockSiteService is a mock implementation of SiteService
type MockSiteService struct {
	mu             sync.Mutex
	Sites          map[string]*models.SiteView
	CreateFunc     func(ctx context.Context, req *models.SiteRequest) (*models.SiteView, error)
	UpdateFunc     func(ctx context.Context, id string, req *models.SiteRequest) (*models.SiteView, error)
	TestConnFunc   func(ctx context.Context, id string) (*models.ConnectionInfo, error)
	DeletedSiteIDs []string
}

// Verify interface compliance
var _ service.SiteService = (*MockSiteService)(nil)

func NewMockSiteService() *MockSiteService {
	return &MockSiteService{Sites: make(map[string]*models.SiteView)}
}

func (m *MockSiteService) Create(ctx context.Context, req *models.SiteRequest) (*models.SiteView, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	view := &models.SiteView{
		Site: &models.Site{
			ID:             fmt.Sprintf("site-%d", len(m.Sites)+1),
			Name:           req.Name,
			URL:            req.URL,
			Username:       req.Username,
			TargetLanguage: req.TargetLanguage,
			VelocityMode:   req.VelocityMode,
			Active:         true,
		},
		HasAppPassword: req.AppPassword != "",
	}
	m.Sites[view.ID] = view
	return view, nil
}

func (m *MockSiteService) Update(ctx context.Context, id string, req *models.SiteRequest) (*models.SiteView, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.Sites[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if req.Name != "" {
		view.Name = req.Name
	}
	return view, nil
}

func (m *MockSiteService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sites[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Sites, id)
	m.DeletedSiteIDs = append(m.DeletedSiteIDs, id)
	return nil
}

func (m *MockSiteService) Get(ctx context.Context, id string) (*models.SiteView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.Sites[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return view, nil
}

func (m *MockSiteService) List(ctx context.Context) ([]*models.SiteView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SiteView, 0, len(m.Sites))
	for _, v := range m.Sites {
		out = append(out, v)
	}
	return out, nil
}

func (m *MockSiteService) TestConnection(ctx context.Context, id string) (*models.ConnectionInfo, error) {
	if m.TestConnFunc != nil {
		return m.TestConnFunc(ctx, id)
	}
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return &models.ConnectionInfo{OK: true, UserID: 1, UserName: "admin"}, nil
}

// MockSourceService is a mock implementation of SourceService
type MockSourceService struct {
	mu         sync.Mutex
	Sources    map[string]*models.Source
	CreateFunc func(ctx context.Context, req *models.SourceRequest) (*models.Source, error)
}

var _ service.SourceService = (*MockSourceService)(nil)

func NewMockSourceService() *MockSourceService {
	return &MockSourceService{Sources: make(map[string]*models.Source)}
}

func (m *MockSourceService) Create(ctx context.Context, req *models.SourceRequest) (*models.Source, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src := &models.Source{
		ID:     fmt.Sprintf("source-%d", len(m.Sources)+1),
		SiteID: req.SiteID,
		Name:   req.Name,
		Type:   req.Type,
		URL:    req.URL,
		Active: true,
	}
	m.Sources[src.ID] = src
	return src, nil
}

func (m *MockSourceService) Update(ctx context.Context, id string, req *models.SourceRequest) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if req.Name != "" {
		src.Name = req.Name
	}
	if req.Active != nil {
		src.Active = *req.Active
	}
	return src, nil
}

func (m *MockSourceService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sources[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Sources, id)
	return nil
}

func (m *MockSourceService) Get(ctx context.Context, id string) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.Sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return src, nil
}

func (m *MockSourceService) List(ctx context.Context, siteID string) ([]*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Source, 0)
	for _, src := range m.Sources {
		if siteID == "" || src.SiteID == siteID {
			out = append(out, src)
		}
	}
	return out, nil
}

// MockArticleService is a mock implementation of ArticleService
type MockArticleService struct {
	mu         sync.Mutex
	Articles   map[string]*models.Article
	RetryFunc  func(ctx context.Context, id string) (*models.Article, error)
	SubmitFunc func(ctx context.Context, c *models.Candidate) (*models.Article, error)
	LastFilter models.ArticleFilter
	Retried    []string
}

var _ service.ArticleService = (*MockArticleService)(nil)

func NewMockArticleService() *MockArticleService {
	return &MockArticleService{Articles: make(map[string]*models.Article)}
}

func (m *MockArticleService) List(ctx context.Context, filter models.ArticleFilter) (*models.ArticleList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = filter
	items := make([]*models.Article, 0)
	for _, a := range m.Articles {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.SiteID != "" && a.SiteID != filter.SiteID {
			continue
		}
		items = append(items, a)
	}
	return &models.ArticleList{Items: items, Total: len(items), Page: filter.Page, PerPage: filter.PerPage}, nil
}

func (m *MockArticleService) Get(ctx context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (m *MockArticleService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Articles[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Articles, id)
	return nil
}

func (m *MockArticleService) Retry(ctx context.Context, id string) (*models.Article, error) {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if a.Status != models.StatusFailed {
		return nil, models.ErrNotRetryable
	}
	a.Status = models.StatusProcessing
	m.Retried = append(m.Retried, id)
	return a, nil
}

func (m *MockArticleService) Submit(ctx context.Context, c *models.Candidate) (*models.Article, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &models.Article{
		ID:            fmt.Sprintf("article-%d", len(m.Articles)+1),
		SiteID:        c.SiteID,
		OriginalTitle: c.Title,
		OriginalBody:  c.Body,
		OriginalURL:   c.URL,
		Status:        models.StatusPending,
		CreatedAt:     time.Now(),
	}
	m.Articles[a.ID] = a
	return a, nil
}

// MockPollerService is a mock implementation of PollerService
type MockPollerService struct {
	mu        sync.Mutex
	PollFunc  func(ctx context.Context, id string, force bool) (*models.PollResult, error)
	Polled    []string
	DueCalls  int
	DueResult int
	Stopped   bool
}

var _ service.PollerService = (*MockPollerService)(nil)

func NewMockPollerService() *MockPollerService {
	return &MockPollerService{}
}

func (m *MockPollerService) PollDue(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DueCalls++
	return m.DueResult
}

func (m *MockPollerService) PollSource(ctx context.Context, id string, force bool) (*models.PollResult, error) {
	if m.PollFunc != nil {
		return m.PollFunc(ctx, id, force)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Polled = append(m.Polled, id)
	return &models.PollResult{SourceID: id}, nil
}

func (m *MockPollerService) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = true
}

// DueCount returns how often PollDue ran.
func (m *MockPollerService) DueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DueCalls
}

// MockRetryService counts sweeps.
type MockRetryService struct {
	mu     sync.Mutex
	Calls  int
	Result int
}

var _ service.RetryService = (*MockRetryService)(nil)

func (m *MockRetryService) RetryDue(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.Result
}

// Count returns how often RetryDue ran.
func (m *MockRetryService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockStatsService is a mock implementation of StatsService
type MockStatsService struct {
	Stat       *models.DashboardStats
	Activity   []*models.Activity
	Series     []models.DailyCount
	StatsErr   error
	LastSiteID string
	LastLimit  int
	LastDays   int
}

var _ service.StatsService = (*MockStatsService)(nil)

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{
		Stat: &models.DashboardStats{Articles: make(map[models.ArticleStatus]int)},
	}
}

func (m *MockStatsService) Stats(ctx context.Context, siteID string) (*models.DashboardStats, error) {
	m.LastSiteID = siteID
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	return m.Stat, nil
}

func (m *MockStatsService) Recent(ctx context.Context, limit int) ([]*models.Activity, error) {
	m.LastLimit = limit
	return m.Activity, nil
}

func (m *MockStatsService) Daily(ctx context.Context, siteID string, days int) ([]models.DailyCount, error) {
	m.LastSiteID = siteID
	m.LastDays = days
	return m.Series, nil
}

// MockSchedule reports fixed next-run times.
type MockSchedule struct {
	Runs map[string]time.Time
}

var _ service.ScheduleInfo = (*MockSchedule)(nil)

func (m *MockSchedule) NextRuns() map[string]time.Time {
	return m.Runs
}
