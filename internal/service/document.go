package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doccatalog/internal/model"
	"doccatalog/internal/repository"
	"doccatalog/internal/storage"
)

var (
	ErrReaderNil = errors.New("reader is nil")
	ErrInvalidID = errors.New("invalid document id")
	ErrNotFound  = errors.New("document not found")
	// ErrContentMissing means the metadata row exists but its content
	// reference no longer resolves in storage. Reported distinctly from
	// ErrNotFound so operators can tell drift from a bad id.
	ErrContentMissing = errors.New("document content missing")
)

const defaultPageSize = 10

var tracer = otel.Tracer("doccatalog/internal/service")

// UploadInput is one file of an upload batch.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// UploadResult is the outcome for a single file of a batch. Exactly one of
// Document and Err is set.
type UploadResult struct {
	Filename string
	Document *model.Document
	Err      error
}

// BatchResult aggregates per-file outcomes of one upload request.
// Files are independent: one failure never rolls back its siblings.
type BatchResult struct {
	Results []UploadResult
}

// Succeeded returns the number of files that were fully persisted.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of files whose persistence failed.
func (b *BatchResult) Failed() int {
	return len(b.Results) - b.Succeeded()
}

// ListParams are the raw listing parameters before normalization.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	SortBy   string
	Order    string
}

// Pagination is the envelope returned alongside every listing page.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items      []model.Document `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload persists the content to object storage first, then commits the
	// metadata row; if the commit fails the orphaned object is deleted
	// (best-effort) before the error is returned. The recorded size is the
	// byte count the store reports, not the client-supplied one.
	Upload(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error)

	// UploadBatch runs Upload for each input and collects per-file outcomes.
	UploadBatch(ctx context.Context, files []UploadInput) *BatchResult

	// List normalizes paging parameters, delegates to the repository, and
	// computes the pagination envelope.
	List(ctx context.Context, p ListParams) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id int64) (*model.Document, error)

	// Download verifies the document's content still resolves and returns a
	// streaming reader plus the metadata needed for response headers.
	Download(ctx context.Context, id int64) (io.ReadCloser, *model.Document, error)

	// PresignDownload returns a time-limited URL for the document's content
	// after the same existence checks as Download.
	PresignDownload(ctx context.Context, id int64, expiry time.Duration) (string, *model.Document, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	pageSize int
	maxPage  int
}

// Option customizes a DocumentService.
type Option func(*documentService)

// WithPageSizes overrides the default and maximum listing page sizes.
func WithPageSizes(def, max int) Option {
	return func(s *documentService) {
		if def > 0 {
			s.pageSize = def
		}
		if max > 0 {
			s.maxPage = max
		}
	}
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{store: store, repo: repo, pageSize: defaultPageSize, maxPage: 100}
	for _, o := range opts {
		o(s)
	}
	return s
}

// storedName generates a collision-resistant object name from a
// high-resolution timestamp and a random component, keeping the original
// extension. Concurrent uploads of identically named files never collide.
func storedName(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
}

func (s *documentService) Upload(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	ctx, span := tracer.Start(ctx, "document.upload",
		trace.WithAttributes(attribute.String("document.filename", originalFilename)))
	defer span.End()

	genName := storedName(originalFilename)
	key := filepath.ToSlash(filepath.Join("documents", genName))

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Content first: no metadata row may ever reference absent bytes.
	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": originalFilename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	doc := &model.Document{
		Title:      originalFilename,
		StoredName: genName,
		Size:       objInfo.Size,
		MimeType:   contentType,
		UploadDate: time.Now().UTC(),
		ContentRef: objInfo.Key,
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		// Rollback: delete the now-orphaned object from storage.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

// UploadBatch processes files sequentially with independent outcomes; a
// failure for one file neither stops nor rolls back the others.
func (s *documentService) UploadBatch(ctx context.Context, files []UploadInput) *BatchResult {
	res := &BatchResult{Results: make([]UploadResult, 0, len(files))}
	for _, f := range files {
		doc, err := s.Upload(ctx, f.Reader, f.Filename, f.ContentType, f.Size)
		res.Results = append(res.Results, UploadResult{
			Filename: f.Filename,
			Document: doc,
			Err:      err,
		})
	}
	return res
}

// List clamps paging parameters to sane bounds before delegating, then builds
// the pagination envelope from the repository's total count.
func (s *documentService) List(ctx context.Context, p ListParams) (*DocumentListResult, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = s.pageSize
	}
	if p.PageSize > s.maxPage {
		p.PageSize = s.maxPage
	}

	res, err := s.repo.List(ctx, repository.ListQuery{
		Search: p.Search,
		SortBy: p.SortBy,
		Order:  p.Order,
		Limit:  p.PageSize,
		Offset: (p.Page - 1) * p.PageSize,
	})
	if err != nil {
		return nil, err
	}

	return &DocumentListResult{
		Items: res.Items,
		Pagination: Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			TotalItems: res.Total,
			TotalPages: int(math.Ceil(float64(res.Total) / float64(p.PageSize))),
		},
	}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Download re-checks content existence at call time before streaming. The
// pre-check is best-effort: content vanishing between Stat and Get surfaces
// through Get and maps to the same content-missing condition.
func (s *documentService) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.Stat(ctx, doc.ContentRef); err != nil {
		return nil, nil, s.contentError(doc, err)
	}
	rc, _, err := s.store.Get(ctx, doc.ContentRef)
	if err != nil {
		return nil, nil, s.contentError(doc, err)
	}
	return rc, doc, nil
}

// PresignDownload runs the same checks as Download but hands back a
// time-limited URL instead of streaming through the service.
func (s *documentService) PresignDownload(ctx context.Context, id int64, expiry time.Duration) (string, *model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.store.Stat(ctx, doc.ContentRef); err != nil {
		return "", nil, s.contentError(doc, err)
	}
	u, err := s.store.PresignGet(ctx, doc.ContentRef, expiry)
	if err != nil {
		return "", nil, fmt.Errorf("presign download: %w", err)
	}
	return u, doc, nil
}

// contentError maps a storage miss for an existing row to ErrContentMissing
// and logs it as a consistency warning.
func (s *documentService) contentError(doc *model.Document, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		logConsistencyWarning(doc)
		return fmt.Errorf("%w: %s", ErrContentMissing, doc.ContentRef)
	}
	return fmt.Errorf("resolve content: %w", err)
}

func logConsistencyWarning(doc *model.Document) {
	entry := map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "warn",
		"component":   "service",
		"event":       "content_missing",
		"document_id": doc.ID,
		"content_ref": doc.ContentRef,
		"msg":         "metadata row references absent content",
	}
	if b, err := json.Marshal(entry); err == nil {
		log.SetFlags(0)
		log.Println(string(b))
	}
}
