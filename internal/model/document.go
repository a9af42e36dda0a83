package model

import "time"

// Document represents a stored file in the catalog.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
type Document struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	StoredName string    `json:"stored_name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadDate time.Time `json:"upload_date"`
	ContentRef string    `json:"content_ref"`
}
