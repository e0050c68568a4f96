package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/content-syndication-pipeline/internal/models"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example News</title>
  <link>https://news.example.com/</link>
  <item>
    <title>Rates held steady</title>
    <link>/economy/rates</link>
    <guid>rates-2024</guid>
    <pubDate>Mon, 02 Sep 2024 10:00:00 GMT</pubDate>
    <description><![CDATA[<p>The central bank held rates.</p><script>track()</script><p>Markets rose.</p>]]></description>
    <media:content url="https://cdn.example.com/rates.jpg" medium="image"/>
  </item>
  <item>
    <title>No guid here</title>
    <link>https://news.example.com/no-guid</link>
    <description><![CDATA[<p>Body text <img src="/img/inline.png"></p>]]></description>
  </item>
  <item>
    <title>With enclosure</title>
    <link>https://news.example.com/enclosure</link>
    <enclosure url="https://cdn.example.com/enc.png" type="image/png" length="10"/>
    <content:encoded><![CDATA[<ul><li>One</li><li>Two</li></ul>]]></content:encoded>
  </item>
  <item>
    <title>   </title>
    <link>https://news.example.com/untitled</link>
  </item>
</channel>
</rss>`

func TestFeedFetcherList(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	f := NewFeedFetcher(5*time.Second, "syndicator/1.0")
	items, err := f.List(context.Background(), &models.Source{ID: "src-1", URL: srv.URL + "/feed.xml"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if gotUA != "syndicator/1.0" {
		t.Errorf("expected user agent to be sent, got %q", gotUA)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (untitled skipped), got %d", len(items))
	}

	first := items[0]
	if first.ExternalID != "rates-2024" || first.URL != srv.URL+"/economy/rates" {
		t.Errorf("unexpected identity: %q %q", first.ExternalID, first.URL)
	}
	if first.Body != "The central bank held rates.\n\nMarkets rose." {
		t.Errorf("unexpected body %q", first.Body)
	}
	if first.ImageURL != "https://cdn.example.com/rates.jpg" {
		t.Errorf("expected media image, got %q", first.ImageURL)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Errorf("expected published date, got %v", first.PublishedAt)
	}

	if items[1].ExternalID != "https://news.example.com/no-guid" {
		t.Errorf("expected link as external id, got %q", items[1].ExternalID)
	}
	if items[1].ImageURL != srv.URL+"/img/inline.png" {
		t.Errorf("expected resolved inline image, got %q", items[1].ImageURL)
	}

	if items[2].ImageURL != "https://cdn.example.com/enc.png" || items[2].Body != "One\n\nTwo" {
		t.Errorf("unexpected enclosure item %+v", items[2])
	}
}

func TestFeedFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFeedFetcher(time.Second, "").List(context.Background(), &models.Source{ID: "src-1", URL: srv.URL})
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.SourceID != "src-1" {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

const indexPage = `<html><body>
<nav><a href="/about">About</a></nav>
<div class="list">
  <h2 class="headline"><a href="/posts/one">First post</a></h2>
  <h2 class="headline"><a href="/posts/two#comments">Second post</a></h2>
  <h2 class="headline"><a href="/posts/one">First again</a></h2>
  <h2 class="headline"><a href="javascript:void(0)">Broken</a></h2>
</div>
</body></html>`

const articlePage = `<html><head>
<title>Site | First post</title>
<meta property="og:image" content="/og/one.jpg">
</head><body>
<header><h1>First post</h1></header>
<article>
  <p>Opening paragraph.</p>
  <aside>Related links</aside>
  <p>Second   paragraph.</p>
  <img src="/media/one.jpg">
</article>
<footer>Copyright</footer>
</body></html>`

const bareArticlePage = `<html><head>
<meta property="og:title" content="Bare page">
<meta property="og:image" content="https://cdn.example.com/bare.jpg">
</head><body><main><p>Only main content.</p></main></body></html>`

func pageServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/blog", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(indexPage)) })
	mux.HandleFunc("/posts/one", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(articlePage)) })
	mux.HandleFunc("/posts/bare", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(bareArticlePage)) })
	mux.HandleFunc("/posts/empty", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html><body></body></html>`)) })
	return httptest.NewServer(mux)
}

func TestPageFetcherListSingleURL(t *testing.T) {
	p := NewPageFetcher(time.Second, "")
	items, err := p.List(context.Background(), &models.Source{URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].ExternalID != "https://example.com/a" || items[0].URL != "https://example.com/a" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestPageFetcherListIndex(t *testing.T) {
	srv := pageServer()
	defer srv.Close()

	p := NewPageFetcher(5*time.Second, "")
	src := &models.Source{ID: "s", URL: srv.URL + "/blog", ScrapeConfig: models.ScrapeConfig{LinkSelector: "h2.headline a"}}
	items, err := p.List(context.Background(), src)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 unique links, got %d", len(items))
	}
	if items[0].URL != srv.URL+"/posts/one" || items[1].URL != srv.URL+"/posts/two" {
		t.Errorf("unexpected links %q %q", items[0].URL, items[1].URL)
	}
	if items[0].Title != "First post" {
		t.Errorf("expected link text as provisional title, got %q", items[0].Title)
	}
}

func TestPageFetcherHydrate(t *testing.T) {
	srv := pageServer()
	defer srv.Close()
	p := NewPageFetcher(5*time.Second, "")
	src := &models.Source{ID: "s", URL: srv.URL + "/blog"}

	c := &models.Candidate{URL: srv.URL + "/posts/one"}
	if err := p.Hydrate(context.Background(), src, c); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if c.Title != "First post" {
		t.Errorf("unexpected title %q", c.Title)
	}
	if c.Body != "Opening paragraph.\n\nSecond paragraph." {
		t.Errorf("unexpected body %q", c.Body)
	}
	if c.ImageURL != srv.URL+"/media/one.jpg" {
		t.Errorf("unexpected image %q", c.ImageURL)
	}

	bare := &models.Candidate{URL: srv.URL + "/posts/bare"}
	if err := p.Hydrate(context.Background(), src, bare); err != nil {
		t.Fatalf("Hydrate bare failed: %v", err)
	}
	if bare.Title != "Bare page" || bare.Body != "Only main content." || bare.ImageURL != "https://cdn.example.com/bare.jpg" {
		t.Errorf("unexpected fallback extraction %+v", bare)
	}
}

func TestPageFetcherHydrateErrors(t *testing.T) {
	srv := pageServer()
	defer srv.Close()
	p := NewPageFetcher(5*time.Second, "")
	src := &models.Source{ID: "s"}

	for _, path := range []string{"/posts/empty", "/missing"} {
		err := p.Hydrate(context.Background(), src, &models.Candidate{URL: srv.URL + path})
		var fetchErr *models.FetchError
		if !errors.As(err, &fetchErr) {
			t.Errorf("%s: expected FetchError, got %v", path, err)
		}
	}
}

func TestTextFromHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>a</p><p> b  c </p>", "a\n\nb c"},
		{"plain text", "just   text", "just text"},
		{"drops scripts", "<div>keep<script>drop()</script></div>", "keep"},
		{"nested list", "<ul><li><p>x</p></li></ul>", "x"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextFromHTML(tt.in); got != tt.want {
				t.Errorf("TextFromHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page")
	cases := map[string]string{
		"other":               "https://example.com/dir/other",
		"/root#frag":          "https://example.com/root",
		"mailto:a@b.c":        "",
		"#top":                "",
		"https://x.org/y":     "https://x.org/y",
		"  ":                  "",
		"data:image/png;base": "",
	}
	for ref, want := range cases {
		if got := resolve(base, ref); got != want {
			t.Errorf("resolve(%q) = %q, want %q", ref, got, want)
		}
	}
}
