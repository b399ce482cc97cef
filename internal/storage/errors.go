package storage

import (
	"fmt"

	"github.com/dukerupert/feedgen/internal/domain"
)

// ============================================================================
// STORAGE DOMAIN ERRORS
// ============================================================================

var (
	// ErrR2AccountIDRequired is returned when R2 account ID is missing.
	ErrR2AccountIDRequired = &domain.Error{Code: domain.EINVALID, Op: "storage.r2", Message: "R2 account ID is required"}

	// ErrR2CredentialsRequired is returned when R2 credentials are missing.
	ErrR2CredentialsRequired = &domain.Error{Code: domain.EINVALID, Op: "storage.r2", Message: "R2 credentials are required"}

	// ErrR2BucketRequired is returned when R2 bucket name is missing.
	ErrR2BucketRequired = &domain.Error{Code: domain.EINVALID, Op: "storage.r2", Message: "R2 bucket name is required"}
)

// ErrFileNotFound creates an error for a missing object.
func ErrFileNotFound(key string) error {
	return domain.NotFound("storage.get", "file", key)
}

// ErrUnknownProvider creates an error for unknown storage providers.
func ErrUnknownProvider(provider string) error {
	return domain.Errorf(domain.EINVALID, "storage.new", "unknown storage provider: %s", provider)
}

// ErrInvalidKey is returned for keys that escape the storage root.
func ErrInvalidKey(key string) error {
	return &domain.Error{Code: domain.EINVALID, Op: "storage.key", Message: fmt.Sprintf("invalid storage key: %q", key)}
}
