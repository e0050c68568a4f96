package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/google/uuid"
)

func validSiteRequest() *models.SiteRequest {
	return &models.SiteRequest{
		Name:        "Daily Planet",
		URL:         "https://planet.example.com/",
		Username:    "editor",
		AppPassword: "secret",
		Categories:  []models.CategoryMapping{{ID: "7", Name: "Economy"}},
	}
}

func TestSiteService_CreateAndUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.svc.Sites.Create(ctx, validSiteRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if view.URL != "https://planet.example.com" || view.TargetLanguage != "en" || view.VelocityMode != models.VelocityNews {
		t.Errorf("defaults not applied: %+v", view.Site)
	}
	if !view.Active || !view.HasAppPassword || view.CategoryMap["7"] != "Economy" {
		t.Errorf("unexpected view %+v", view)
	}

	update := validSiteRequest()
	update.AppPassword = ""
	update.TargetLanguage = "pt-br"
	update.VelocityMode = models.VelocityEvergreen
	updated, err := h.svc.Sites.Update(ctx, view.ID, update)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.TargetLanguage != "pt-BR" || updated.VelocityMode != models.VelocityEvergreen {
		t.Errorf("update not applied: %+v", updated.Site)
	}
	if stored, _ := h.sites.GetByID(ctx, view.ID); stored.AppPassword != "secret" {
		t.Error("empty password on update must keep the stored one")
	}
}

func TestSiteService_Validation(t *testing.T) {
	h := newHarness(t)
	req := validSiteRequest()
	req.AppPassword = ""
	req.VelocityMode = "turbo"

	_, err := h.svc.Sites.Create(context.Background(), req)
	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("expected 2 validation errors, got %v", err)
	}

	if _, err := h.svc.Sites.Update(context.Background(), uuid.NewString(), validSiteRequest()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on unknown site, got %v", err)
	}
}

func TestSiteService_DeleteForgetsIndex(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)
	a := h.intake(t, site.ID, "Rates held", "https://news.example.com/rates")
	h.process(t, a.ID)
	if h.index.Size(site.ID) != 1 {
		t.Fatalf("expected index entry before delete")
	}

	if err := h.svc.Sites.Delete(context.Background(), site.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if h.index.Size(site.ID) != 0 {
		t.Error("expected site shard to be dropped")
	}
	if _, err := h.svc.Sites.Get(context.Background(), site.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSiteService_TestConnection(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)

	info, err := h.svc.Sites.TestConnection(context.Background(), site.ID)
	if err != nil || !info.OK {
		t.Fatalf("expected ok connection, got %+v %v", info, err)
	}

	h.publisher.ConnErr = errors.New("dial tcp: connection refused")
	info, err = h.svc.Sites.TestConnection(context.Background(), site.ID)
	if err != nil || info.OK || info.Error == "" {
		t.Errorf("expected failed connection info, got %+v %v", info, err)
	}
}

func TestSourceService(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)
	ctx := context.Background()

	_, err := h.svc.Sources.Create(ctx, &models.SourceRequest{
		SiteID: uuid.NewString(), Name: "Wire", Type: models.SourceTypeFeed, URL: "https://wire.example.com/rss",
	})
	var verrs validation.Errors
	if !errors.As(err, &verrs) || verrs[0].Field != "site_id" {
		t.Fatalf("expected site_id validation error, got %v", err)
	}

	src, err := h.svc.Sources.Create(ctx, &models.SourceRequest{
		SiteID: site.ID, Name: "Wire", Type: models.SourceTypeFeed, URL: "https://wire.example.com/rss",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if src.PollInterval != models.DefaultPollInterval || src.MaxItemsPerPoll != models.DefaultMaxItemsPerPoll || !src.Active {
		t.Errorf("defaults not applied: %+v", src)
	}

	inactive := false
	updated, err := h.svc.Sources.Update(ctx, src.ID, &models.SourceRequest{
		Name: "Wire (paused)", Type: models.SourceTypeFeed, URL: src.URL, PollInterval: 30, Active: &inactive,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Active || updated.PollInterval != 30 || updated.SiteID != site.ID {
		t.Errorf("unexpected update %+v", updated)
	}

	list, err := h.svc.Sources.List(ctx, site.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 source, got %d %v", len(list), err)
	}
	if view, _ := h.svc.Sites.Get(ctx, site.ID); view.SourceCount != 1 {
		t.Errorf("expected source count 1, got %d", view.SourceCount)
	}

	if err := h.svc.Sources.Delete(ctx, src.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := h.svc.Sources.Get(ctx, src.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if list, _ := h.svc.Sources.List(ctx, site.ID); list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestSourceService_DeleteKeepsArticles(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)
	src := h.addSource(t, site.ID)
	other := h.addSource(t, site.ID)
	ctx := context.Background()

	kept, err := h.svc.Pipeline.Intake(ctx, &models.Candidate{
		SiteID: site.ID, SourceID: src.ID, ExternalID: "guid-1",
		Title: "Rates held", Body: "Body", URL: "https://wire.example.com/1",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	untouched, err := h.svc.Pipeline.Intake(ctx, &models.Candidate{
		SiteID: site.ID, SourceID: other.ID, ExternalID: "guid-2",
		Title: "Markets open", Body: "Body", URL: "https://wire.example.com/2",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	if err := h.svc.Sources.Delete(ctx, src.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	a := h.articles.Get(kept.ID)
	if a == nil {
		t.Fatal("deleting a source must not delete its articles")
	}
	if a.SourceID != nil {
		t.Errorf("expected source_id to be cleared, got %q", *a.SourceID)
	}
	if a.Status != models.StatusPending || a.SiteID != site.ID {
		t.Errorf("article should be otherwise unchanged: %+v", a)
	}
	if b := h.articles.Get(untouched.ID); b == nil || b.SourceID == nil || *b.SourceID != other.ID {
		t.Errorf("articles of other sources must keep their source: %+v", b)
	}
}

func TestArticleService(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)
	ctx := context.Background()

	_, err := h.svc.Articles.Submit(ctx, &models.Candidate{SiteID: site.ID})
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}

	a, err := h.svc.Articles.Submit(ctx, &models.Candidate{SiteID: site.ID, Title: "Rates held", Body: "Body", URL: "https://news.example.com/rates"})
	if err != nil || a.Status != models.StatusPending {
		t.Fatalf("Submit failed: %+v %v", a, err)
	}

	list, err := h.svc.Articles.List(ctx, models.ArticleFilter{PerPage: 1000})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.PerPage != 100 || list.Page != 1 || list.Total != 1 {
		t.Errorf("unexpected pagination %+v", list)
	}

	if _, err := h.svc.Articles.Retry(ctx, a.ID); !errors.Is(err, models.ErrNotRetryable) {
		t.Errorf("pending article is not retryable, got %v", err)
	}

	h.process(t, a.ID)
	if got, err := h.svc.Articles.Get(ctx, a.ID); err != nil || got.Status != models.StatusPublished {
		t.Fatalf("expected published article, got %+v %v", got, err)
	}
	if err := h.svc.Articles.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if h.index.Size(site.ID) != 0 {
		t.Error("deleted article should leave the similarity index")
	}
	if _, err := h.svc.Articles.Get(ctx, a.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStatsService(t *testing.T) {
	h := newHarness(t)
	site := h.addSite(t)
	h.addSite(t, func(s *models.Site) { s.Active = false })
	h.addSource(t, site.ID)
	ctx := context.Background()

	published := h.intake(t, site.ID, "Rates held", "https://news.example.com/rates")
	h.process(t, published.ID)
	h.intake(t, site.ID, "Still pending", "https://news.example.com/pending")
	h.articles.Put(&models.Article{ID: "old", SiteID: site.ID, Status: models.StatusFailed, CreatedAt: time.Now().AddDate(0, 0, -3)})

	stats, err := h.svc.Stats.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Sites.Total != 2 || stats.Sites.Active != 1 || stats.Sources.Total != 1 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if stats.TotalArticles != 3 || stats.Articles[models.StatusPublished] != 1 || stats.Articles[models.StatusDuplicate] != 0 {
		t.Errorf("unexpected article counts %v", stats.Articles)
	}
	if stats.CreatedToday != 2 || stats.PublishedToday != 1 {
		t.Errorf("unexpected today counts %d/%d", stats.CreatedToday, stats.PublishedToday)
	}

	scoped, err := h.svc.Stats.Stats(ctx, site.ID)
	if err != nil || scoped.Sites.Total != 1 || scoped.Sites.Active != 1 {
		t.Errorf("unexpected scoped stats %+v %v", scoped, err)
	}
	if _, err := h.svc.Stats.Stats(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown site, got %v", err)
	}

	series, err := h.svc.Stats.Daily(ctx, "", 0)
	if err != nil || len(series) != 7 {
		t.Fatalf("expected 7 daily points, got %d %v", len(series), err)
	}
	last := series[len(series)-1]
	if last.Date != time.Now().UTC().Format("2006-01-02") || last.Created != 2 || last.Published != 1 {
		t.Errorf("unexpected today point %+v", last)
	}

	recent, err := h.svc.Stats.Recent(ctx, 0)
	if err != nil || len(recent) != 3 {
		t.Errorf("expected 3 recent items, got %d %v", len(recent), err)
	}
}
