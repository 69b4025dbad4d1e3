package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SnapshotResult summarizes one archive export.
type SnapshotResult struct {
	ItemsPath     string
	PositionsPath string
	Items         int64
	Positions     int64
	Sales         int64
}

// Archiver exports the market's records to cold storage.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, at time.Time) (SnapshotResult, error)
}
