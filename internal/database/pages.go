package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pagemirror/internal/models"
)

const pageColumns = `id, external_id, title, slug, blocks, status, published_at, synced_at, created_at, updated_at`

// UpsertPageByExternalID stores the fetched page content, keyed by the source
// page id. Existing rows keep their local id.
func (db *DB) UpsertPageByExternalID(ctx context.Context, content models.PageContent) (*models.Page, error) {
	now := time.Now()
	query := `
        INSERT INTO pages (external_id, title, slug, blocks, status, published_at, synced_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(external_id) DO UPDATE SET
            title = excluded.title,
            slug = excluded.slug,
            blocks = excluded.blocks,
            status = excluded.status,
            published_at = excluded.published_at,
            synced_at = excluded.synced_at,
            updated_at = excluded.updated_at
    `

	var publishedAt *time.Time
	if !content.PublishedAt.IsZero() {
		publishedAt = &content.PublishedAt
	}

	_, err := db.ExecContext(ctx, query,
		content.ExternalID,
		content.Title,
		content.Slug,
		content.Blocks,
		models.PageStatusPublished,
		publishedAt,
		now,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert page %s: %w", content.ExternalID, err)
	}

	return db.GetPageByExternalID(ctx, content.ExternalID)
}

func (db *DB) GetPageByExternalID(ctx context.Context, externalID string) (*models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE external_id = ?`
	page, err := scanPage(db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", externalID, err)
	}
	return page, nil
}

func (db *DB) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE slug = ? AND status = ? ORDER BY id DESC LIMIT 1`
	page, err := scanPage(db.QueryRowContext(ctx, query, slug, models.PageStatusPublished))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page by slug %s: %w", slug, err)
	}
	return page, nil
}

func (db *DB) ListPublishedPages(ctx context.Context) ([]models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE status = ? ORDER BY title ASC`
	rows, err := db.QueryContext(ctx, query, models.PageStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list published pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *page)
	}
	return pages, rows.Err()
}

func scanPage(row rowScanner) (*models.Page, error) {
	var p models.Page
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.Title, &p.Slug, &p.Blocks, &p.Status,
		&p.PublishedAt, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
