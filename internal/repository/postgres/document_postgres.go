package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"doccatalog/internal/model"
	"doccatalog/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// sortColumns is the fixed allow-list of sortable fields. Caller input only
// selects an entry here; it is never interpolated into query text itself.
var sortColumns = map[string]string{
	repository.SortByTitle:      "title",
	repository.SortBySize:       "size",
	repository.SortByUploadDate: "upload_date",
}

// resolveSort maps the requested sort field and direction to safe SQL
// fragments, falling back to upload_date DESC for anything unrecognized.
func resolveSort(sortBy, order string) (column, direction string) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = sortColumns[repository.SortByUploadDate]
	}
	if strings.EqualFold(order, repository.OrderAsc) {
		return column, "ASC"
	}
	return column, "DESC"
}

// likePattern wraps the search term in wildcards and escapes LIKE
// metacharacters so user input matches literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// Create inserts a new document row and returns the stored record with its
// database-assigned ID.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (title, stored_name, size, mime_type, upload_date, content_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, title, stored_name, size, mime_type, upload_date, content_ref
	`
	row := r.db.QueryRowContext(ctx, q,
		doc.Title,
		doc.StoredName,
		doc.Size,
		doc.MimeType,
		doc.UploadDate,
		doc.ContentRef,
	)
	var out model.Document
	if err := row.Scan(
		&out.ID,
		&out.Title,
		&out.StoredName,
		&out.Size,
		&out.MimeType,
		&out.UploadDate,
		&out.ContentRef,
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `
		SELECT id, title, stored_name, size, mime_type, upload_date, content_ref
		FROM documents
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, q, id)
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.Title,
		&d.StoredName,
		&d.Size,
		&d.MimeType,
		&d.UploadDate,
		&d.ContentRef,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns documents using LIMIT/OFFSET pagination plus the total count of
// all rows matching the same search predicate. Ties on the sort column are
// broken by id ASC so repeated queries paginate deterministically.
func (r *DocumentPostgres) List(ctx context.Context, q repository.ListQuery) (*repository.PageResult[model.Document], error) {
	column, direction := resolveSort(q.SortBy, q.Order)

	where := ""
	args := []any{}
	if q.Search != "" {
		where = " WHERE title ILIKE $1"
		args = append(args, likePattern(q.Search))
	}

	qCount := "SELECT COUNT(*) FROM documents" + where
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	qList := fmt.Sprintf(`
		SELECT id, title, stored_name, size, mime_type, upload_date, content_ref
		FROM documents%s
		ORDER BY %s %s, id ASC
		LIMIT $%d OFFSET $%d
	`, where, column, direction, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, qList, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID,
			&d.Title,
			&d.StoredName,
			&d.Size,
			&d.MimeType,
			&d.UploadDate,
			&d.ContentRef,
		); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}
