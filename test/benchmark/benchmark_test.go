package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/content-syndication-pipeline/internal/fingerprint"
	"github.com/content-syndication-pipeline/internal/ingest"
	"github.com/content-syndication-pipeline/internal/mocks"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/validation"
	"github.com/content-syndication-pipeline/internal/vectorindex"
)

const dim = 384

func randomVector(r *rand.Rand) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = r.Float64()*2 - 1
	}
	return v
}

// seedIndex stores n admitted articles with embeddings for one site.
func seedIndex(n int) *vectorindex.Index {
	r := rand.New(rand.NewSource(42))
	repo := mocks.NewMockArticleRepository()
	for i := 0; i < n; i++ {
		repo.Put(&models.Article{
			ID:          fmt.Sprintf("article-%06d", i),
			SiteID:      "site-1",
			Status:      models.StatusPublished,
			DedupPassed: true,
			Embedding:   randomVector(r),
		})
	}
	return vectorindex.New(repo, dim)
}

// BenchmarkIndexQuery benchmarks nearest-neighbour search over one site shard
func BenchmarkIndexQuery(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			ix := seedIndex(n)
			ctx := context.Background()
			query := randomVector(rand.New(rand.NewSource(7)))

			// Warm the shard so loading is not measured
			if _, err := ix.Query(ctx, "site-1", query, 5); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ix.Query(ctx, "site-1", query, 5)
			}
			b.ReportMetric(float64(n*b.N)/b.Elapsed().Seconds(), "vectors/sec")
		})
	}
}

// BenchmarkFingerprint benchmarks title and URL normalisation
func BenchmarkFingerprint(b *testing.B) {
	titles := make([]string, 1000)
	urls := make([]string, 1000)
	for i := range titles {
		titles[i] = fmt.Sprintf("  Breaking: Central Bank Holds Rates, Story %d  ", i)
		urls[i] = fmt.Sprintf("HTTPS://News.Example.com/economy/%d/?utm_source=feed#top", i)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for j := range titles {
			fingerprint.Compute(titles[j], urls[j])
		}
	}
	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "items/sec")
}

// BenchmarkTextFromHTML benchmarks article body extraction
func BenchmarkTextFromHTML(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("<html><body><nav>Menu</nav><article><h1>Headline</h1>")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "<p>Paragraph %d with <a href=\"/x\">a link</a> and <em>emphasis</em>.</p>", i)
	}
	sb.WriteString("</article><script>track()</script><footer>Footer</footer></body></html>")
	html := sb.String()

	b.SetBytes(int64(len(html)))
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ingest.TextFromHTML(html)
	}
}

// BenchmarkValidateCandidate benchmarks candidate validation
func BenchmarkValidateCandidate(b *testing.B) {
	candidates := make([]*models.Candidate, 1000)
	for i := range candidates {
		candidates[i] = &models.Candidate{
			SiteID: "550e8400-e29b-41d4-a716-446655440000",
			Title:  fmt.Sprintf("Story %d", i),
			Body:   "Body text",
			URL:    fmt.Sprintf("https://news.example.com/%d", i),
		}
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, c := range candidates {
			validation.ValidateCandidate(c)
		}
	}
	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "rows/sec")
}
