package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/content-syndication-pipeline/internal/database"
	"github.com/content-syndication-pipeline/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sourceRepo is the concrete implementation of SourceRepository
type sourceRepo struct {
	db *database.DB
}

// NewSourceRepo creates a new source repository
func NewSourceRepo(db *database.DB) SourceRepository {
	return &sourceRepo{db: db}
}

var sourceColumns = []string{
	"s.id", "s.site_id", "s.name", "s.type", "s.url", "s.scrape_config", "s.poll_interval",
	"s.max_items_per_poll", "s.active", "s.last_polled_at", "s.last_error", "s.last_error_at",
	"s.created_at", "s.updated_at",
}

// Create inserts a new source
func (r *sourceRepo) Create(ctx context.Context, source *models.Source) error {
	scrape, err := json.Marshal(source.ScrapeConfig)
	if err != nil {
		return fmt.Errorf("encode scrape config: %w", err)
	}

	query := `
		INSERT INTO sources (id, site_id, name, type, url, scrape_config, poll_interval,
			max_items_per_poll, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		source.ID, source.SiteID, source.Name, source.Type, source.URL, scrape,
		source.PollInterval, source.MaxItemsPerPoll, source.Active, source.CreatedAt, source.UpdatedAt,
	)
	return err
}

// Update replaces the mutable fields of a source
func (r *sourceRepo) Update(ctx context.Context, source *models.Source) error {
	scrape, err := json.Marshal(source.ScrapeConfig)
	if err != nil {
		return fmt.Errorf("encode scrape config: %w", err)
	}

	query := `
		UPDATE sources SET
			name = $1, type = $2, url = $3, scrape_config = $4, poll_interval = $5,
			max_items_per_poll = $6, active = $7, updated_at = $8
		WHERE id = $9
	`
	result, err := r.db.ExecContext(ctx, query,
		source.Name, source.Type, source.URL, scrape, source.PollInterval,
		source.MaxItemsPerPoll, source.Active, source.UpdatedAt, source.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// Delete removes a source. Its articles keep their history with source_id cleared.
func (r *sourceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// GetByID retrieves a source by ID
func (r *sourceRepo) GetByID(ctx context.Context, id string) (*models.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources s").
		Where(sq.Eq{"s.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	source, err := scanSource(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return source, err
}

// List returns sources, optionally restricted to one site
func (r *sourceRepo) List(ctx context.Context, siteID string) ([]*models.Source, error) {
	builder := psql.Select(sourceColumns...).From("sources s").OrderBy("s.created_at")
	if siteID != "" {
		builder = builder.Where(sq.Eq{"s.site_id": siteID})
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

	var sources []*models.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// ListActive returns active sources of active sites along with their site
func (r *sourceRepo) ListActive(ctx context.Context) ([]*models.DueSource, error) {
	columns := append([]string{}, sourceColumns...)
	columns = append(columns,
		"t.id", "t.name", "t.url", "t.username", "t.app_password", "t.target_language",
		"t.velocity_mode", "t.category_map", "t.image_cookie", "t.watermark_text",
		"t.default_author_id", "t.active", "t.created_at", "t.updated_at",
	)
	query, args, err := psql.Select(columns...).
		From("sources s").
		Join("sites t ON t.id = s.site_id").
		Where(sq.Eq{"s.active": true, "t.active": true}).
		OrderBy("s.last_polled_at NULLS FIRST").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*models.DueSource
	for rows.Next() {
		var src models.Source
		var site models.Site
		var scrape, categories []byte
		var lastPolled, lastErrorAt sql.NullTime
		var lastError, imageCookie, watermark sql.NullString
		var authorID sql.NullInt64

		if err := rows.Scan(
			&src.ID, &src.SiteID, &src.Name, &src.Type, &src.URL, &scrape, &src.PollInterval,
			&src.MaxItemsPerPoll, &src.Active, &lastPolled, &lastError, &lastErrorAt,
			&src.CreatedAt, &src.UpdatedAt,
			&site.ID, &site.Name, &site.URL, &site.Username, &site.AppPassword, &site.TargetLanguage,
			&site.VelocityMode, &categories, &imageCookie, &watermark, &authorID, &site.Active,
			&site.CreatedAt, &site.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan active source: %w", err)
		}

		if err := decodeScrapeConfig(scrape, &src.ScrapeConfig); err != nil {
			return nil, err
		}
		if lastPolled.Valid {
			src.LastPolledAt = &lastPolled.Time
		}
		if lastErrorAt.Valid {
			src.LastErrorAt = &lastErrorAt.Time
		}
		src.LastError = lastError.String

		site.CategoryMap = map[string]string{}
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &site.CategoryMap); err != nil {
				return nil, fmt.Errorf("decode category map: %w", err)
			}
		}
		site.ImageCookie = imageCookie.String
		site.WatermarkText = watermark.String
		site.DefaultAuthorID = authorID.Int64

		due = append(due, &models.DueSource{Source: &src, Site: &site})
	}
	return due, rows.Err()
}

// MarkPolled records a successful poll and clears the last error
func (r *sourceRepo) MarkPolled(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET last_polled_at = $1, last_error = NULL, last_error_at = NULL WHERE id = $2`,
		at, id,
	)
	return err
}

// RecordPollError stores a fetch failure without advancing last_polled_at
func (r *sourceRepo) RecordPollError(ctx context.Context, id string, message string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET last_error = $1, last_error_at = $2 WHERE id = $3`,
		message, at, id,
	)
	return err
}

// Count returns total and active source counts, optionally for one site
func (r *sourceRepo) Count(ctx context.Context, siteID string) (models.CountPair, error) {
	builder := psql.Select("COUNT(*)", "COUNT(*) FILTER (WHERE active)").From("sources")
	if siteID != "" {
		builder = builder.Where(sq.Eq{"site_id": siteID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return models.CountPair{}, err
	}

	var c models.CountPair
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&c.Total, &c.Active)
	return c, err
}

func scanSource(row rowScanner) (*models.Source, error) {
	var src models.Source
	var scrape []byte
	var lastPolled, lastErrorAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&src.ID, &src.SiteID, &src.Name, &src.Type, &src.URL, &scrape, &src.PollInterval,
		&src.MaxItemsPerPoll, &src.Active, &lastPolled, &lastError, &lastErrorAt,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeScrapeConfig(scrape, &src.ScrapeConfig); err != nil {
		return nil, err
	}
	if lastPolled.Valid {
		src.LastPolledAt = &lastPolled.Time
	}
	if lastErrorAt.Valid {
		src.LastErrorAt = &lastErrorAt.Time
	}
	src.LastError = lastError.String
	return &src, nil
}

func decodeScrapeConfig(data []byte, cfg *models.ScrapeConfig) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode scrape config: %w", err)
	}
	return nil
}
