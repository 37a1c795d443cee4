// Package storage puts chat images into object storage and hands back fetchable URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"tutorhub/internal/config"
)

// Storage is the object store the hub writes images to.
type Storage interface {
	// Write stores content from r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a URL for the content, presigned for expires where the backend supports it.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "", "local":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
