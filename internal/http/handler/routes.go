package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"doccatalog/internal/model"
	"doccatalog/internal/service"
)

const presignExpiry = 15 * time.Minute

// uploadedFile is the per-file entry of the upload response. Either ID or
// Error is set, never both.
type uploadedFile struct {
	ID       int64  `json:"id,omitempty"`
	Filename string `json:"filename"`
	Error    string `json:"error,omitempty"`
}

type uploadResponse struct {
	Message string         `json:"message"`
	Files   []uploadedFile `json:"files"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parameter parsing and error translation only.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/documents", UploadDocuments(docSvc))
	app.Get("/documents", ListDocuments(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Get("/documents/:id/download", DownloadDocument(docSvc))
}

// HealthCheck verifies DB connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadDocuments accepts one or more multipart file parts (field "files";
// a single "file" part is also accepted) and reports per-file outcomes.
func UploadDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "NO_FILES", "no files uploaded")
		}

		headers := form.File["files"]
		headers = append(headers, form.File["file"]...)
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "NO_FILES", "no files uploaded")
		}

		inputs := make([]service.UploadInput, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer f.Close()

			inputs = append(inputs, service.UploadInput{
				Reader:      f,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
			})
		}

		batch := docSvc.UploadBatch(c.UserContext(), inputs)

		res := uploadResponse{Files: make([]uploadedFile, 0, len(batch.Results))}
		for _, r := range batch.Results {
			entry := uploadedFile{Filename: r.Filename}
			if r.Err != nil {
				entry.Error = "failed to persist file"
			} else {
				entry.ID = r.Document.ID
			}
			res.Files = append(res.Files, entry)
		}

		if batch.Succeeded() == 0 {
			res.Message = "upload failed"
			return c.Status(fiber.StatusInternalServerError).JSON(res)
		}
		if batch.Failed() > 0 {
			res.Message = "some files failed to upload"
		} else {
			res.Message = "files uploaded successfully"
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListDocuments serves the searchable, sortable, paginated listing.
// All parameters are optional; malformed numbers fall back to defaults
// rather than erroring, matching the permissive listing contract.
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := service.ListParams{
			Page:     atoiOrDefault(c.Query("page"), 1),
			PageSize: atoiOrDefault(c.Query("pageSize"), 0),
			Search:   c.Query("q"),
			SortBy:   c.Query("sortBy"),
			Order:    c.Query("order"),
		}

		res, err := docSvc.List(c.UserContext(), params)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetDocument returns a single document's metadata by ID.
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), id)
		if err != nil {
			return translateDocError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument streams a document's content with its original title and
// stored mime type. With ?presign=1 it returns a time-limited URL instead.
func DownloadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		if c.QueryBool("presign") {
			url, _, err := docSvc.PresignDownload(c.UserContext(), id, presignExpiry)
			if err != nil {
				return translateDocError(c, err)
			}
			return c.JSON(fiber.Map{"url": url})
		}

		rc, doc, err := docSvc.Download(c.UserContext(), id)
		if err != nil {
			return translateDocError(c, err)
		}

		setDownloadHeaders(c, doc)
		if doc.Size > 0 {
			return c.SendStream(rc, int(doc.Size))
		}
		return c.SendStream(rc)
	}
}

func setDownloadHeaders(c *fiber.Ctx, doc *model.Document) {
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.Title+`"`)
	ct := doc.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Set(fiber.HeaderContentType, ct)
}

// translateDocError maps service sentinel errors to HTTP error responses.
// The two not-found conditions keep distinct codes so clients can tell a bad
// id from metadata/content drift.
func translateDocError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrContentMissing):
		return writeError(c, fiber.StatusNotFound, "CONTENT_MISSING", "document content is missing")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func parseID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func atoiOrDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
