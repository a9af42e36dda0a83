package repository

import (
	"context"

	"doccatalog/internal/model"
)

// Sort fields accepted by List. Any other value falls back to SortByUploadDate.
const (
	SortByTitle      = "title"
	SortBySize       = "size"
	SortByUploadDate = "uploadDate"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record. The ID is assigned by the database
	// and set on the returned document; the row is visible to reads as soon as
	// Create returns.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID. A missing row surfaces as
	// sql.ErrNoRows for the caller to translate.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns one page of documents matching the query plus the total
	// count of all matching rows (not just the returned page).
	List(ctx context.Context, q ListQuery) (*PageResult[model.Document], error)
}

// ListQuery holds the search, sort, and pagination parameters for List.
// Search is a case-insensitive substring match against title; empty matches all.
// SortBy and Order outside the accepted values fall back to uploadDate / desc.
type ListQuery struct {
	Search string
	SortBy string
	Order  string
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
