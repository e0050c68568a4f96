package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/content-syndication-pipeline/internal/database"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/vectorindex"
	"github.com/lib/pq"
)

// articleRepo is the concrete implementation of ArticleRepository
type articleRepo struct {
	db *database.DB
}

// NewArticleRepo creates a new article repository
func NewArticleRepo(db *database.DB) ArticleRepository {
	return &articleRepo{db: db}
}

var articleColumns = []string{
	"id", "site_id", "source_id", "external_id", "original_url", "original_title", "original_body",
	"original_image_url", "source_language", "processed_title", "processed_body", "meta_description", "category",
	"fingerprint", "dedup_passed", "duplicate_of", "similarity", "image_source", "image_url",
	"post_id", "post_url", "status", "retry_count", "error_stage", "error_kind", "error_message",
	"created_at", "last_attempted_at", "processed_at", "published_at", "updated_at",
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Create inserts a new pending article
func (r *articleRepo) Create(ctx context.Context, article *models.Article) error {
	query := `
		INSERT INTO articles (id, site_id, source_id, external_id, original_url, original_title,
			original_body, original_image_url, fingerprint, image_source, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	var sourceID sql.NullString
	if article.SourceID != nil {
		sourceID = nullString(*article.SourceID)
	}
	_, err := r.db.ExecContext(ctx, query,
		article.ID, article.SiteID, sourceID, article.ExternalID, article.OriginalURL,
		article.OriginalTitle, article.OriginalBody, nullString(article.OriginalImageURL),
		article.Fingerprint, article.ImageSource, article.Status, article.CreatedAt, article.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return models.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves an article by ID
func (r *articleRepo) GetByID(ctx context.Context, id string) (*models.Article, error) {
	query, args, err := psql.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return article, err
}

// Delete removes an article
func (r *articleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// List returns a filtered page of articles, newest first, and the total match count
func (r *articleRepo) List(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, int, error) {
	where := sq.And{}
	if filter.SiteID != "" {
		where = append(where, sq.Eq{"site_id": filter.SiteID})
	}
	if filter.SourceID != "" {
		where = append(where, sq.Eq{"source_id": filter.SourceID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": string(filter.Status)})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("articles").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(filter.PerPage)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	articles, err := r.query(ctx, query, args...)
	return articles, total, err
}

// KnownExternalIDs returns the subset of ids already recorded for the source
func (r *articleRepo) KnownExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT external_id FROM articles WHERE source_id = $1 AND external_id = ANY($2)`,
		sourceID, pq.StringArray(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("query known ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

// FindAdmittedByFingerprint looks up an admitted article with the same fingerprint
func (r *articleRepo) FindAdmittedByFingerprint(ctx context.Context, siteID, fingerprint, excludeID string) (*models.Article, error) {
	builder := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"site_id": siteID, "fingerprint": fingerprint, "dedup_passed": true}).
		Where(sq.NotEq{"status": string(models.StatusDuplicate)}).
		OrderBy("created_at").
		Limit(1)
	if excludeID != "" {
		builder = builder.Where(sq.NotEq{"id": excludeID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return article, err
}

// LoadEmbeddings returns the stored vectors of a site's admitted articles
func (r *articleRepo) LoadEmbeddings(ctx context.Context, siteID string) ([]vectorindex.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, embedding FROM articles
		WHERE site_id = $1 AND dedup_passed AND status <> 'duplicate' AND embedding IS NOT NULL
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []vectorindex.Entry
	for rows.Next() {
		var id string
		var vec pq.Float64Array
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		entries = append(entries, vectorindex.Entry{ArticleID: id, Vector: []float64(vec)})
	}
	return entries, rows.Err()
}

// GetPending returns the oldest pending articles
func (r *articleRepo) GetPending(ctx context.Context, limit int) ([]*models.Article, error) {
	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(models.StatusPending)}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

// ListRetryable returns transient failures below the attempt limit (0 = unlimited).
// Articles that already created a post are never returned.
func (r *articleRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*models.Article, error) {
	builder := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(models.StatusFailed), "error_kind": models.ErrorKindTransient, "post_id": nil}).
		OrderBy("last_attempted_at NULLS FIRST").
		Limit(uint64(limit))
	if maxAttempts > 0 {
		builder = builder.Where(sq.Lt{"retry_count": maxAttempts})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

// Claim atomically moves an article from the given status to processing
func (r *articleRepo) Claim(ctx context.Context, id string, from models.ArticleStatus, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET status = 'processing', last_attempted_at = $1, updated_at = $1
		WHERE id = $2 AND status = $3
	`, at, id, string(from))
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkAdmitted records that the article passed the duplicate gate and stores its embedding
func (r *articleRepo) MarkAdmitted(ctx context.Context, id string, embedding []float64) error {
	var vec interface{}
	if len(embedding) > 0 {
		vec = pq.Float64Array(embedding)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET dedup_passed = TRUE, embedding = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, vec, id)
	if isUniqueViolation(err) {
		return models.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	return expectRow(result)
}

// SaveProcessed stores the detected language, transformed content and resolved image
func (r *articleRepo) SaveProcessed(ctx context.Context, article *models.Article) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET
			processed_title = $1, processed_body = $2, meta_description = $3, category = $4,
			image_source = $5, image_url = $6, processed_at = $7, source_language = $8, updated_at = NOW()
		WHERE id = $9 AND status = 'processing'
	`, nullString(article.ProcessedTitle), nullString(article.ProcessedBody),
		nullString(article.MetaDescription), nullString(article.Category),
		article.ImageSource, nullString(article.ImageURL), nullTime(article.ProcessedAt),
		nullString(article.SourceLanguage), article.ID)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// MarkDuplicate moves a processing article to duplicate
func (r *articleRepo) MarkDuplicate(ctx context.Context, id string, verdict *models.DedupVerdict) (bool, error) {
	var similarity sql.NullFloat64
	if verdict.Reason == models.DuplicateBySimilarity {
		similarity = sql.NullFloat64{Float64: verdict.Similarity, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET status = 'duplicate', duplicate_of = $1, similarity = $2,
			error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = NOW()
		WHERE id = $3 AND status = 'processing'
	`, nullString(verdict.MatchedID), similarity, id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkFailed moves a processing article to failed and increments its retry count
func (r *articleRepo) MarkFailed(ctx context.Context, id string, failure models.Failure) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET status = 'failed', retry_count = retry_count + 1,
			error_stage = $1, error_kind = $2, error_message = $3,
			post_id = COALESCE($4, post_id), post_url = COALESCE($5, post_url), updated_at = NOW()
		WHERE id = $6 AND status = 'processing'
	`, failure.Stage, failure.Kind, failure.Message, nullInt64(failure.PostID), nullString(failure.PostURL), id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkPublished moves a processing article to published
func (r *articleRepo) MarkPublished(ctx context.Context, article *models.Article) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET status = 'published', post_id = $1, post_url = $2, published_at = $3,
			image_source = $4, image_url = $5,
			error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = NOW()
		WHERE id = $6 AND status = 'processing'
	`, nullInt64(article.PostID), nullString(article.PostURL), nullTime(article.PublishedAt),
		article.ImageSource, nullString(article.ImageURL), article.ID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ResetStuckProcessing fails articles left in processing by an interrupted
// process. Rows that already hold a post are rejected rather than transient.
func (r *articleRepo) ResetStuckProcessing(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET status = 'failed', retry_count = retry_count + 1,
			error_stage = $1,
			error_kind = CASE WHEN post_id IS NULL THEN $2 ELSE $3 END,
			error_message = $4, updated_at = NOW()
		WHERE status = 'processing'
	`, models.StageInterrupted, models.ErrorKindTransient, models.ErrorKindRejected, "processing interrupted by shutdown")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus returns article counts per status, optionally for one site
func (r *articleRepo) CountByStatus(ctx context.Context, siteID string) (map[models.ArticleStatus]int, error) {
	builder := psql.Select("status", "COUNT(*)").From("articles").GroupBy("status")
	if siteID != "" {
		builder = builder.Where(sq.Eq{"site_id": siteID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ArticleStatus]int, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.ArticleStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountSince returns how many articles were created and published since a point in time
func (r *articleRepo) CountSince(ctx context.Context, siteID string, since time.Time) (int, int, error) {
	builder := psql.Select().
		Column(sq.Expr("COUNT(*) FILTER (WHERE created_at >= ?)", since)).
		Column(sq.Expr("COUNT(*) FILTER (WHERE published_at >= ?)", since)).
		From("articles")
	if siteID != "" {
		builder = builder.Where(sq.Eq{"site_id": siteID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, 0, err
	}

	var created, published int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&created, &published)
	return created, published, err
}

// Recent returns the most recently updated articles
func (r *articleRepo) Recent(ctx context.Context, limit int) ([]*models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.site_id, s.name, COALESCE(a.processed_title, a.original_title), a.status,
			a.post_url, a.error_message, a.updated_at
		FROM articles a JOIN sites s ON s.id = a.site_id
		ORDER BY a.updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Activity
	for rows.Next() {
		var a models.Activity
		var postURL, errMsg sql.NullString
		if err := rows.Scan(&a.ArticleID, &a.SiteID, &a.SiteName, &a.Title, &a.Status,
			&postURL, &errMsg, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.PostURL = postURL.String
		a.Error = errMsg.String
		items = append(items, &a)
	}
	return items, rows.Err()
}

// DailyCounts returns created/published counts per UTC day from since until today
func (r *articleRepo) DailyCounts(ctx context.Context, siteID string, since time.Time) ([]models.DailyCount, error) {
	since = since.UTC().Truncate(24 * time.Hour)

	created, err := r.countByDay(ctx, "created_at", siteID, since)
	if err != nil {
		return nil, fmt.Errorf("count created per day: %w", err)
	}
	published, err := r.countByDay(ctx, "published_at", siteID, since)
	if err != nil {
		return nil, fmt.Errorf("count published per day: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var series []models.DailyCount
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		series = append(series, models.DailyCount{Date: key, Created: created[key], Published: published[key]})
	}
	return series, nil
}

func (r *articleRepo) countByDay(ctx context.Context, column, siteID string, since time.Time) (map[string]int, error) {
	day := fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD')", column)
	builder := psql.Select(day, "COUNT(*)").
		From("articles").
		Where(sq.GtOrEq{column: since}).
		GroupBy(day)
	if siteID != "" {
		builder = builder.Where(sq.Eq{"site_id": siteID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (r *articleRepo) query(ctx context.Context, query string, args ...interface{}) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var a models.Article
	var sourceID, originalImage, sourceLanguage, processedTitle, processedBody, meta, category sql.NullString
	var duplicateOf, imageURL, postURL, errStage, errKind, errMsg sql.NullString
	var similarity sql.NullFloat64
	var postID sql.NullInt64
	var lastAttempted, processedAt, publishedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.SiteID, &sourceID, &a.ExternalID, &a.OriginalURL, &a.OriginalTitle, &a.OriginalBody,
		&originalImage, &sourceLanguage, &processedTitle, &processedBody, &meta, &category,
		&a.Fingerprint, &a.DedupPassed, &duplicateOf, &similarity, &a.ImageSource, &imageURL,
		&postID, &postURL, &a.Status, &a.RetryCount, &errStage, &errKind, &errMsg,
		&a.CreatedAt, &lastAttempted, &processedAt, &publishedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceID.Valid {
		a.SourceID = &sourceID.String
	}
	if duplicateOf.Valid {
		a.DuplicateOf = &duplicateOf.String
	}
	if similarity.Valid {
		a.Similarity = &similarity.Float64
	}
	if lastAttempted.Valid {
		a.LastAttemptedAt = &lastAttempted.Time
	}
	if processedAt.Valid {
		a.ProcessedAt = &processedAt.Time
	}
	if publishedAt.Valid {
		a.PublishedAt = &publishedAt.Time
	}
	a.OriginalImageURL = originalImage.String
	a.SourceLanguage = sourceLanguage.String
	a.ProcessedTitle = processedTitle.String
	a.ProcessedBody = processedBody.String
	a.MetaDescription = meta.String
	a.Category = category.String
	a.ImageURL = imageURL.String
	a.PostID = postID.Int64
	a.PostURL = postURL.String
	a.ErrorStage = errStage.String
	a.ErrorKind = errKind.String
	a.ErrorMessage = errMsg.String
	return &a, nil
}
