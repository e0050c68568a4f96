package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/content-syndication-pipeline/internal/api"
	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/mocks"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testServices struct {
	sites    *mocks.MockSiteService
	sources  *mocks.MockSourceService
	articles *mocks.MockArticleService
	poller   *mocks.MockPollerService
	stats    *mocks.MockStatsService
	schedule *mocks.MockSchedule
}

func setupTestRouter() (*gin.Engine, *testServices) {
	gin.SetMode(gin.TestMode)

	ts := &testServices{
		sites:    mocks.NewMockSiteService(),
		sources:  mocks.NewMockSourceService(),
		articles: mocks.NewMockArticleService(),
		poller:   mocks.NewMockPollerService(),
		stats:    mocks.NewMockStatsService(),
		schedule: &mocks.MockSchedule{Runs: map[string]time.Time{}},
	}

	services := &service.Services{
		Sites:    ts.sites,
		Sources:  ts.sources,
		Articles: ts.articles,
		Poller:   ts.poller,
		Retry:    &mocks.MockRetryService{},
		Stats:    ts.stats,
		Schedule: ts.schedule,
	}

	cfg := config.Defaults()
	router := api.NewRouter(services, cfg, zerolog.Nop())

	return router, ts
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter()

	w := doRequest(router, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decode(t, w)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "content-syndication-pipeline" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, ts := setupTestRouter()
	ts.stats.Stat.Articles[models.StatusPublished] = 12
	ts.stats.Stat.Articles[models.StatusFailed] = 2
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ts.schedule.Runs["poll"] = next

	w := doRequest(router, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decode(t, w)
	articles := response["articles"].(map[string]interface{})
	if articles["published"].(float64) != 12 || articles["failed"].(float64) != 2 {
		t.Errorf("unexpected article counts %v", articles)
	}
	runs := response["next_runs"].(map[string]interface{})
	if runs["poll"] != next.Format(time.RFC3339) {
		t.Errorf("unexpected next runs %v", runs)
	}
	if ts.stats.LastSiteID != "" {
		t.Errorf("metrics must not be scoped to a site, got %q", ts.stats.LastSiteID)
	}
}

func TestCreateSite(t *testing.T) {
	router, ts := setupTestRouter()

	w := doRequest(router, "POST", "/v1/sites", models.SiteRequest{
		Name: "Daily Planet", URL: "https://planet.example.com", Username: "editor", AppPassword: "secret",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	response := decode(t, w)
	if response["id"] != "site-1" || response["has_app_password"] != true {
		t.Errorf("unexpected response %v", response)
	}
	if _, leaked := response["app_password"]; leaked {
		t.Error("app password must not be serialised")
	}
	if len(ts.sites.Sites) != 1 {
		t.Errorf("expected 1 stored site, got %d", len(ts.sites.Sites))
	}
}

func TestCreateSite_ValidationErrors(t *testing.T) {
	router, ts := setupTestRouter()
	ts.sites.CreateFunc = func(ctx context.Context, req *models.SiteRequest) (*models.SiteView, error) {
		return nil, validation.Errors{
			{Field: "url", Message: "url is required"},
			{Field: "app_password", Message: "app_password is required"},
		}
	}

	w := doRequest(router, "POST", "/v1/sites", models.SiteRequest{Name: "No URL"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	response := decode(t, w)
	details := response["details"].([]interface{})
	if len(details) != 2 {
		t.Errorf("Expected 2 validation details, got %d", len(details))
	}
}

func TestCreateSite_MalformedJSON(t *testing.T) {
	router, _ := setupTestRouter()

	req := httptest.NewRequest("POST", "/v1/sites", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSiteLifecycle(t *testing.T) {
	router, ts := setupTestRouter()
	ts.sites.Sites["site-a"] = &models.SiteView{Site: &models.Site{ID: "site-a", Name: "A", Active: true}}

	if w := doRequest(router, "GET", "/v1/sites", nil); w.Code != http.StatusOK || decode(t, w)["total"].(float64) != 1 {
		t.Errorf("unexpected list response %d %s", w.Code, w.Body.String())
	}

	w := doRequest(router, "PUT", "/v1/sites/site-a", models.SiteRequest{Name: "Renamed"})
	if w.Code != http.StatusOK || decode(t, w)["name"] != "Renamed" {
		t.Errorf("unexpected update response %d %s", w.Code, w.Body.String())
	}

	if w := doRequest(router, "DELETE", "/v1/sites/site-a", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := doRequest(router, "GET", "/v1/sites/site-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
	if len(ts.sites.DeletedSiteIDs) != 1 {
		t.Errorf("expected delete to reach the service")
	}
}

func TestSiteTestConnection(t *testing.T) {
	router, ts := setupTestRouter()
	ts.sites.Sites["site-a"] = &models.SiteView{Site: &models.Site{ID: "site-a"}}

	w := doRequest(router, "POST", "/v1/sites/site-a/test-connection", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if response := decode(t, w); response["ok"] != true || response["user_name"] != "admin" {
		t.Errorf("unexpected connection info %v", response)
	}

	if w := doRequest(router, "POST", "/v1/sites/missing/test-connection", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestSources(t *testing.T) {
	router, ts := setupTestRouter()

	w := doRequest(router, "POST", "/v1/sources", models.SourceRequest{
		SiteID: "site-a", Name: "Wire", Type: models.SourceTypeFeed, URL: "https://wire.example.com/rss",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	ts.sources.Sources["source-x"] = &models.Source{ID: "source-x", SiteID: "site-b"}

	w = doRequest(router, "GET", "/v1/sources?site_id=site-a", nil)
	if w.Code != http.StatusOK || decode(t, w)["total"].(float64) != 1 {
		t.Errorf("expected one source for site-a, got %s", w.Body.String())
	}

	inactive := false
	w = doRequest(router, "PUT", "/v1/sources/source-1", models.SourceRequest{Active: &inactive})
	if w.Code != http.StatusOK || decode(t, w)["active"] != false {
		t.Errorf("unexpected update response %s", w.Body.String())
	}

	if w := doRequest(router, "DELETE", "/v1/sources/source-1", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := doRequest(router, "DELETE", "/v1/sources/source-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

func TestPollSource(t *testing.T) {
	router, ts := setupTestRouter()

	var forced bool
	ts.poller.PollFunc = func(ctx context.Context, id string, force bool) (*models.PollResult, error) {
		if id != "source-1" {
			return nil, models.ErrNotFound
		}
		forced = force
		return &models.PollResult{SourceID: id, Fetched: 5, New: 2, Submitted: 2}, nil
	}

	w := doRequest(router, "POST", "/v1/sources/source-1/poll", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if response := decode(t, w); response["submitted"].(float64) != 2 {
		t.Errorf("unexpected poll result %v", response)
	}
	if !forced {
		t.Error("manual poll should ignore the cadence")
	}

	if w := doRequest(router, "POST", "/v1/sources/unknown/poll", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListArticles(t *testing.T) {
	router, ts := setupTestRouter()
	ts.articles.Articles["a1"] = &models.Article{ID: "a1", SiteID: "site-a", Status: models.StatusFailed}
	ts.articles.Articles["a2"] = &models.Article{ID: "a2", SiteID: "site-a", Status: models.StatusPublished}

	w := doRequest(router, "GET", "/v1/articles?site_id=site-a&status=failed&page=2&per_page=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if response := decode(t, w); response["total"].(float64) != 1 {
		t.Errorf("expected 1 failed article, got %v", response["total"])
	}

	f := ts.articles.LastFilter
	if f.SiteID != "site-a" || f.Status != models.StatusFailed || f.Page != 2 || f.PerPage != 10 {
		t.Errorf("filter not forwarded: %+v", f)
	}
}

func TestListArticles_BadQuery(t *testing.T) {
	router, _ := setupTestRouter()

	tests := []string{
		"/v1/articles?status=archived",
		"/v1/articles?page=abc",
		"/v1/articles?per_page=-1",
	}
	for _, path := range tests {
		if w := doRequest(router, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: Expected status 400, got %d", path, w.Code)
		}
	}
}

func TestRetryArticle(t *testing.T) {
	router, ts := setupTestRouter()
	ts.articles.Articles["failed"] = &models.Article{ID: "failed", Status: models.StatusFailed}
	ts.articles.Articles["done"] = &models.Article{ID: "done", Status: models.StatusPublished}

	if w := doRequest(router, "POST", "/v1/articles/failed/retry", nil); w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if w := doRequest(router, "POST", "/v1/articles/done/retry", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for published article, got %d", w.Code)
	}
	if w := doRequest(router, "POST", "/v1/articles/missing/retry", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	ts.articles.RetryFunc = func(ctx context.Context, id string) (*models.Article, error) {
		return nil, models.ErrAlreadyClaimed
	}
	if w := doRequest(router, "POST", "/v1/articles/failed/retry", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 when another worker holds the claim, got %d", w.Code)
	}
	if len(ts.articles.Retried) != 1 {
		t.Errorf("expected exactly one retry, got %v", ts.articles.Retried)
	}
}

func TestSubmitArticle(t *testing.T) {
	router, ts := setupTestRouter()

	w := doRequest(router, "POST", "/v1/articles", models.Candidate{
		SiteID: "site-a", Title: "Rates held", Body: "The bank held rates.", URL: "https://news.example.com/rates",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	if response := decode(t, w); response["status"] != string(models.StatusPending) {
		t.Errorf("expected pending article, got %v", response["status"])
	}

	ts.articles.SubmitFunc = func(ctx context.Context, c *models.Candidate) (*models.Article, error) {
		return nil, errors.New("connection reset")
	}
	w = doRequest(router, "POST", "/v1/articles", models.Candidate{SiteID: "site-a", Title: "T"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if response := decode(t, w); response["error"] == "connection reset" {
		t.Error("internal error text must not leak")
	}
}

func TestArticleGetAndDelete(t *testing.T) {
	router, ts := setupTestRouter()
	original := "a0"
	ts.articles.Articles["a1"] = &models.Article{ID: "a1", Status: models.StatusDuplicate, DuplicateOf: &original}

	w := doRequest(router, "GET", "/v1/articles/a1", nil)
	if w.Code != http.StatusOK || decode(t, w)["duplicate_of"] != "a0" {
		t.Errorf("unexpected article response %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(router, "DELETE", "/v1/articles/a1", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := doRequest(router, "GET", "/v1/articles/a1", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDashboard(t *testing.T) {
	router, ts := setupTestRouter()
	ts.stats.Stat.Sites = models.CountPair{Total: 3, Active: 2}
	ts.stats.Activity = []*models.Activity{{ArticleID: "a1", Status: models.StatusPublished}}
	ts.stats.Series = []models.DailyCount{{Date: "2026-01-01", Created: 4, Published: 3}}

	w := doRequest(router, "GET", "/v1/dashboard/stats?site_id=site-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	sites := decode(t, w)["sites"].(map[string]interface{})
	if sites["total"].(float64) != 3 || ts.stats.LastSiteID != "site-a" {
		t.Errorf("unexpected stats %v (site %q)", sites, ts.stats.LastSiteID)
	}

	w = doRequest(router, "GET", "/v1/dashboard/recent?limit=5", nil)
	if w.Code != http.StatusOK || len(decode(t, w)["items"].([]interface{})) != 1 || ts.stats.LastLimit != 5 {
		t.Errorf("unexpected recent response %s", w.Body.String())
	}

	w = doRequest(router, "GET", "/v1/dashboard/daily?days=14", nil)
	if w.Code != http.StatusOK || ts.stats.LastDays != 14 {
		t.Errorf("unexpected daily response %d days=%d", w.Code, ts.stats.LastDays)
	}

	if w := doRequest(router, "GET", "/v1/dashboard/daily?days=many", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	ts.stats.StatsErr = models.ErrNotFound
	if w := doRequest(router, "GET", "/v1/dashboard/stats?site_id=gone", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	router, _ := setupTestRouter()

	w := doRequest(router, "OPTIONS", "/v1/sites", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("unexpected methods header %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}
