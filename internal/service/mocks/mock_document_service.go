package mocks

import (
	"context"
	"io"
	"time"

	"doccatalog/internal/model"
	"doccatalog/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error) {
	args := m.Called(ctx, r, originalFilename, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) UploadBatch(ctx context.Context, files []service.UploadInput) *service.BatchResult {
	args := m.Called(ctx, files)
	return args.Get(0).(*service.BatchResult)
}

func (m *MockDocumentService) List(ctx context.Context, p service.ListParams) (*service.DocumentListResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*model.Document), args.Error(2)
}

func (m *MockDocumentService) PresignDownload(ctx context.Context, id int64, expiry time.Duration) (string, *model.Document, error) {
	args := m.Called(ctx, id, expiry)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*model.Document), args.Error(2)
}
