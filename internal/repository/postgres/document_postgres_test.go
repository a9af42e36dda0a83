package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"doccatalog/internal/model"
	"doccatalog/internal/repository"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var docColumns = []string{"id", "title", "stored_name", "size", "mime_type", "upload_date", "content_ref"}

func TestDocumentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{
		Title:      "report.pdf",
		StoredName: "1700000000000000000-uuid.pdf",
		Size:       123,
		MimeType:   "application/pdf",
		UploadDate: now,
		ContentRef: "documents/1700000000000000000-uuid.pdf",
	}

	rows := sqlmock.NewRows(docColumns).
		AddRow(int64(42), doc.Title, doc.StoredName, doc.Size, doc.MimeType, doc.UploadDate, doc.ContentRef)

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.Title, doc.StoredName, doc.Size, doc.MimeType, doc.UploadDate, doc.ContentRef).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, doc)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, int64(42), result.ID)
	assert.Equal(t, doc.ContentRef, result.ContentRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(docColumns).
			AddRow(int64(7), "file.txt", "stored.txt", int64(100), "text/plain", time.Now(), "documents/stored.txt")

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(7)).
			WillReturnRows(rows)

		doc, err := repo.FindByID(ctx, 7)

		assert.NoError(t, err)
		assert.NotNil(t, doc)
		assert.Equal(t, int64(7), doc.ID)
		assert.Equal(t, "file.txt", doc.Title)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, 99)

		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.Nil(t, doc)
	})
}

func TestDocumentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("default sort and no search", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		rows := sqlmock.NewRows(docColumns).
			AddRow(int64(1), "file.txt", "stored.txt", int64(100), "text/plain", time.Now(), "documents/stored.txt")

		mock.ExpectQuery(`SELECT (.+) FROM documents\s+ORDER BY upload_date DESC, id ASC`).
			WithArgs(10, 0).
			WillReturnRows(rows)

		res, err := repo.List(ctx, repository.ListQuery{Limit: 10, Offset: 0})

		assert.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Len(t, res.Items, 1)
	})

	t.Run("search feeds both count and page queries", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents WHERE title ILIKE`).
			WithArgs("%report%").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		rows := sqlmock.NewRows(docColumns).
			AddRow(int64(1), "Annual Report.pdf", "a.pdf", int64(10), "application/pdf", time.Now(), "documents/a.pdf").
			AddRow(int64(2), "report_final.txt", "b.txt", int64(20), "text/plain", time.Now(), "documents/b.txt")

		mock.ExpectQuery(`(?s)SELECT (.+) FROM documents WHERE title ILIKE (.+)ORDER BY upload_date DESC, id ASC`).
			WithArgs("%report%", 10, 0).
			WillReturnRows(rows)

		res, err := repo.List(ctx, repository.ListQuery{Search: "report", Limit: 10, Offset: 0})

		assert.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Len(t, res.Items, 2)
	})

	t.Run("size ascending keeps id tie-break", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		mock.ExpectQuery(`ORDER BY size ASC, id ASC`).
			WithArgs(5, 0).
			WillReturnRows(sqlmock.NewRows(docColumns))

		_, err := repo.List(ctx, repository.ListQuery{SortBy: repository.SortBySize, Order: repository.OrderAsc, Limit: 5, Offset: 0})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown sort column falls back to upload_date", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		mock.ExpectQuery(`ORDER BY upload_date DESC, id ASC`).
			WithArgs(10, 0).
			WillReturnRows(sqlmock.NewRows(docColumns))

		_, err := repo.List(ctx, repository.ListQuery{SortBy: "malicious_column; DROP TABLE documents", Order: "sideways", Limit: 10, Offset: 0})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolveSort(t *testing.T) {
	tests := []struct {
		name    string
		sortBy  string
		order   string
		wantCol string
		wantDir string
	}{
		{"title asc", repository.SortByTitle, "asc", "title", "ASC"},
		{"size desc", repository.SortBySize, "desc", "size", "DESC"},
		{"uploadDate default order", repository.SortByUploadDate, "", "upload_date", "DESC"},
		{"order case-insensitive", repository.SortBySize, "ASC", "size", "ASC"},
		{"unknown column falls back", "mime_type", "asc", "upload_date", "ASC"},
		{"unknown order falls back", repository.SortByTitle, "upwards", "title", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, dir := resolveSort(tt.sortBy, tt.order)
			assert.Equal(t, tt.wantCol, col)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%report%", likePattern("report"))
	assert.Equal(t, `%100\%\_done\\%`, likePattern(`100%_done\`))
}
