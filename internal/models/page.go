package models

import "time"

// Page statuses in the local store.
const (
	PageStatusPublished = "published"
	PageStatusArchived  = "archived"
)

// PageContent is what the source client returns for a single page. Blocks are
// kept opaque; rendering happens outside this system.
type PageContent struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Blocks      string    `json:"blocks"`
	PublishedAt time.Time `json:"published_at"`
}

// Page is the locally stored mirror of a source page.
type Page struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Blocks      string     `json:"blocks"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at"`
	SyncedAt    time.Time  `json:"synced_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
