package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/healthspend/apiserver/config"
)

const (
	BackendMinio  = "minio"
	BackendGCS    = "gcs"
	BackendMemory = "memory"

	reportContentType = "text/plain; charset=utf-8"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ReportArchive stores the raw model narrative of each prediction under
// reports/<user id>/<prediction id>.txt.
type ReportArchive struct {
	backend ObjectStorage
}

func NewReportArchive(backend ObjectStorage) *ReportArchive {
	return &ReportArchive{backend: backend}
}

// Open builds the archive configured by cfg.Backend and makes sure its bucket
// exists. It returns nil, nil when archiving is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*ReportArchive, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case BackendMemory:
		backend = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return NewReportArchive(backend), nil
}

// ReportKey returns the object key of a prediction report.
func ReportKey(userID, predictionID string) string {
	return fmt.Sprintf("reports/%s/%s.txt", userID, predictionID)
}

// PutReport uploads the narrative text of a prediction.
func (a *ReportArchive) PutReport(ctx context.Context, userID, predictionID, text string) error {
	data := []byte(text)
	return a.backend.Put(ctx, ReportKey(userID, predictionID), bytes.NewReader(data), int64(len(data)), reportContentType)
}

// GetReport reads back the narrative text of a prediction.
func (a *ReportArchive) GetReport(ctx context.Context, userID, predictionID string) (string, error) {
	rc, err := a.backend.Get(ctx, ReportKey(userID, predictionID))
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, rc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DeleteReport removes the narrative text of a prediction.
func (a *ReportArchive) DeleteReport(ctx context.Context, userID, predictionID string) error {
	return a.backend.Delete(ctx, ReportKey(userID, predictionID))
}

// Close releases the backend client.
func (a *ReportArchive) Close() error {
	return a.backend.Close()
}
