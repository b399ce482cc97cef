package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dukerupert/feedgen/internal"
)

// Storage is a destination finished feed files are published to, so that
// marketplaces can fetch them from a stable public URL.
type Storage interface {
	// Put stores content under key, replacing any previous object, and
	// returns its public URL.
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)

	// Get retrieves an object. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public URL of key.
	URL(key string) string

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewStorage creates the publishing backend named by cfg.Provider.
// Provider "none" (or empty) disables publishing and returns a nil Storage.
func NewStorage(cfg internal.StorageConfig) (Storage, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "local":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	case "r2":
		return NewR2Storage(R2Config{
			AccountID:   cfg.R2AccountID,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretKey,
			BucketName:  cfg.R2BucketName,
			PublicURL:   cfg.R2PublicURL,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}

// ContentType returns the MIME type served for a feed format.
func ContentType(format string) string {
	switch format {
	case "csv":
		return "text/csv; charset=utf-8"
	case "xml", "yml":
		return "application/xml"
	}
	return "application/octet-stream"
}

// PublishFile uploads the file at path under key.
func PublishFile(ctx context.Context, s Storage, key, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open feed for publishing: %w", err)
	}
	defer f.Close()

	return s.Put(ctx, key, f, contentType)
}

// RetireKeys removes objects still published under keys a feed has moved
// away from. It returns the keys that were actually removed.
func RetireKeys(ctx context.Context, s Storage, keys []string) ([]string, error) {
	var removed []string
	for _, key := range keys {
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if err := s.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}
