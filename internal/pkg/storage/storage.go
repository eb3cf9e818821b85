// internal/pkg/storage/storage.go
package storage

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("document not found")

// DocumentStore persists uploaded verification documents under opaque keys.
type DocumentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Backend string // fs | s3

	Dir string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (DocumentStore, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "", "fs":
		return NewFSStore(cfg.Dir)
	default:
		return nil, errors.New("unknown document storage backend: " + cfg.Backend)
	}
}
