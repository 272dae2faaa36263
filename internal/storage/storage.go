package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// ThumbnailPrefix is the object key prefix of thumbnails the service uploaded
// itself. Only keys under it are ever deleted.
const ThumbnailPrefix = "thumbnails/"

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows PUT requests
	// for uploading an object directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading/viewing an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

// NewThumbnailKey returns a fresh object key for a thumbnail uploaded by ownerID.
func NewThumbnailKey(ownerID, ext string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate thumbnail key: %w", err)
	}
	ext = strings.TrimPrefix(ext, ".")
	return path.Join(strings.TrimSuffix(ThumbnailPrefix, "/"), ownerID, id.String()+"."+ext), nil
}

// IsManagedKey reports whether a workout's thumbnail value is an object key
// created by NewThumbnailKey, as opposed to an external URL.
func IsManagedKey(thumbnail string) bool {
	return strings.HasPrefix(thumbnail, ThumbnailPrefix) && !strings.Contains(thumbnail, "..")
}
