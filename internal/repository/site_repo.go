package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/content-syndication-pipeline/internal/database"
	"github.com/content-syndication-pipeline/internal/models"
)

// siteRepo is the concrete implementation of SiteRepository
type siteRepo struct {
	db *database.DB
}

// NewSiteRepo creates a new site repository
func NewSiteRepo(db *database.DB) SiteRepository {
	return &siteRepo{db: db}
}

const siteColumns = `id, name, url, username, app_password, target_language, velocity_mode,
	category_map, image_cookie, watermark_text, default_author_id, active, created_at, updated_at`

// Create inserts a new site
func (r *siteRepo) Create(ctx context.Context, site *models.Site) error {
	categories, err := json.Marshal(categoryMapOrEmpty(site.CategoryMap))
	if err != nil {
		return fmt.Errorf("encode category map: %w", err)
	}

	query := `
		INSERT INTO sites (` + siteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		site.ID, site.Name, site.URL, site.Username, site.AppPassword, site.TargetLanguage,
		site.VelocityMode, categories, nullString(site.ImageCookie), nullString(site.WatermarkText),
		nullInt64(site.DefaultAuthorID), site.Active, site.CreatedAt, site.UpdatedAt,
	)
	return err
}

// Update replaces the mutable fields of a site
func (r *siteRepo) Update(ctx context.Context, site *models.Site) error {
	categories, err := json.Marshal(categoryMapOrEmpty(site.CategoryMap))
	if err != nil {
		return fmt.Errorf("encode category map: %w", err)
	}

	query := `
		UPDATE sites SET
			name = $1, url = $2, username = $3, app_password = $4, target_language = $5,
			velocity_mode = $6, category_map = $7, image_cookie = $8, watermark_text = $9,
			default_author_id = $10, active = $11, updated_at = $12
		WHERE id = $13
	`
	result, err := r.db.ExecContext(ctx, query,
		site.Name, site.URL, site.Username, site.AppPassword, site.TargetLanguage,
		site.VelocityMode, categories, nullString(site.ImageCookie), nullString(site.WatermarkText),
		nullInt64(site.DefaultAuthorID), site.Active, site.UpdatedAt, site.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// Delete removes a site together with its sources and articles
func (r *siteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// GetByID retrieves a site by ID
func (r *siteRepo) GetByID(ctx context.Context, id string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`
	site, err := scanSite(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

// List returns all sites ordered by name
func (r *siteRepo) List(ctx context.Context) ([]*models.Site, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY name, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Count returns total and active site counts
func (r *siteRepo) Count(ctx context.Context) (models.CountPair, error) {
	var c models.CountPair
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE active) FROM sites`,
	).Scan(&c.Total, &c.Active)
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	var site models.Site
	var categories []byte
	var imageCookie, watermark sql.NullString
	var authorID sql.NullInt64

	err := row.Scan(
		&site.ID, &site.Name, &site.URL, &site.Username, &site.AppPassword, &site.TargetLanguage,
		&site.VelocityMode, &categories, &imageCookie, &watermark, &authorID, &site.Active,
		&site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	site.CategoryMap = map[string]string{}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &site.CategoryMap); err != nil {
			return nil, fmt.Errorf("decode category map: %w", err)
		}
	}
	site.ImageCookie = imageCookie.String
	site.WatermarkText = watermark.String
	site.DefaultAuthorID = authorID.Int64
	return &site, nil
}

func categoryMapOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
