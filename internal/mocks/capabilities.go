package mocks

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
)

// MockProcessor echoes its input unless ProcessFunc is set.
type MockProcessor struct {
	ProcessFunc func(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResult, error)
	calls       atomic.Int32
}

var _ service.ContentProcessor = (*MockProcessor)(nil)

func (m *MockProcessor) Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResult, error) {
	m.calls.Add(1)
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, req)
	}
	return &models.ProcessResult{
		Title:           "[" + req.TargetLanguage + "] " + req.Title,
		Body:            "<p>" + req.Body + "</p>",
		MetaDescription: req.Title,
		Model:           "mock",
	}, nil
}

// Calls returns how often Process ran.
func (m *MockProcessor) Calls() int { return int(m.calls.Load()) }

// MockLanguageDetector reports the same language for every article.
type MockLanguageDetector struct {
	Language string
}

var _ service.LanguageDetector = (*MockLanguageDetector)(nil)

func (m *MockLanguageDetector) Detect(title, body string) string { return m.Language }

// MockEmbedder returns vectors from a lookup table keyed by the first word
// of the text, falling back to a fixed vector.
type MockEmbedder struct {
	mu        sync.Mutex
	Vectors   map[string][]float64
	Default   []float64
	EmbedFunc func(ctx context.Context, text string) ([]float64, error)
	calls     int
}

var _ service.Embedder = (*MockEmbedder)(nil)

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Vectors: make(map[string][]float64), Default: []float64{1, 0, 0}}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	fn := m.EmbedFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, text)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if fields := strings.Fields(text); len(fields) > 0 {
		if v, ok := m.Vectors[fields[0]]; ok {
			return v, nil
		}
	}
	return m.Default, nil
}

// Calls returns how often Embed ran.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockImageResolver returns a fixed image, or none when Image is nil.
type MockImageResolver struct {
	Image       *models.ResolvedImage
	ResolveFunc func(ctx context.Context, req *models.ImageRequest) *models.ResolvedImage
}

var _ service.ImageResolver = (*MockImageResolver)(nil)

func (m *MockImageResolver) Resolve(ctx context.Context, req *models.ImageRequest) *models.ResolvedImage {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, req)
	}
	if m.Image == nil {
		return &models.ResolvedImage{Source: models.ImageSourceNone}
	}
	img := *m.Image
	return &img
}

// MockPublisher records published posts and assigns increasing post ids.
type MockPublisher struct {
	mu          sync.Mutex
	Posts       []*models.Post
	PublishFunc func(ctx context.Context, site *models.Site, post *models.Post) (*models.PublishResult, error)
	ConnInfo    *models.ConnectionInfo
	ConnErr     error
}

var _ service.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, site *models.Site, post *models.Post) (*models.PublishResult, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, site, post)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Posts = append(m.Posts, post)
	id := int64(100 + len(m.Posts))
	return &models.PublishResult{PostID: id, URL: site.URL + "/?p=" + strconv.FormatInt(id, 10)}, nil
}

func (m *MockPublisher) TestConnection(ctx context.Context, site *models.Site) (*models.ConnectionInfo, error) {
	if m.ConnErr != nil {
		return nil, m.ConnErr
	}
	if m.ConnInfo != nil {
		return m.ConnInfo, nil
	}
	return &models.ConnectionInfo{OK: true, UserID: 1, UserName: site.Username}, nil
}

// Published returns a snapshot of published posts.
func (m *MockPublisher) Published() []*models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Post(nil), m.Posts...)
}

// MockFetcher serves fixed candidates per source id.
type MockFetcher struct {
	mu       sync.Mutex
	Items    map[string][]*models.Candidate
	Err      map[string]error
	ListFunc func(ctx context.Context, source *models.Source) ([]*models.Candidate, error)
	Lists    int
}

var _ service.Fetcher = (*MockFetcher)(nil)

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Items: make(map[string][]*models.Candidate), Err: make(map[string]error)}
}

func (m *MockFetcher) List(ctx context.Context, source *models.Source) ([]*models.Candidate, error) {
	m.mu.Lock()
	m.Lists++
	fn := m.ListFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, source)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Err[source.ID]; err != nil {
		return nil, err
	}
	out := make([]*models.Candidate, 0, len(m.Items[source.ID]))
	for _, c := range m.Items[source.ID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ListCalls returns how often List ran.
func (m *MockFetcher) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Lists
}

// MockHydratingFetcher lists bare URLs and fills bodies on Hydrate.
// HydrateErr fails the load of the URLs it names.
type MockHydratingFetcher struct {
	*MockFetcher
	Hydrated   []string
	HydrateErr map[string]error
}

var _ service.Hydrator = (*MockHydratingFetcher)(nil)

// HydrateCalls returns the URLs Hydrate was called with.
func (m *MockHydratingFetcher) HydrateCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Hydrated...)
}

func (m *MockHydratingFetcher) Hydrate(ctx context.Context, source *models.Source, c *models.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hydrated = append(m.Hydrated, c.URL)
	if err := m.HydrateErr[c.URL]; err != nil {
		return err
	}
	c.Title = "Hydrated " + c.URL
	c.Body = "Body of " + c.URL
	return nil
}
