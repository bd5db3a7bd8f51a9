package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

// Caller identifies the authenticated user a request runs as
type Caller struct {
	UserID string
	Role   string
}

// ImageStore is implemented by storage.Uploader
type ImageStore interface {
	Upload(ctx context.Context, purpose storage.Purpose, folder string, files []storage.File, maxFiles int) (*storage.UploadResult, error)
	SignedURL(ctx context.Context, purpose storage.Purpose, path string) (string, error)
	Remove(ctx context.Context, purpose storage.Purpose, path string) error
}

// EventPublisher is implemented by realtime.Hub
type EventPublisher interface {
	Publish(ctx context.Context, e realtime.Event) error
}

// signPath swaps a stored object path for a signed URL. A signing failure
// is logged and leaves the value nil rather than failing the read.
func signPath(ctx context.Context, images ImageStore, logger *slog.Logger, purpose storage.Purpose, path *string) *string {
	if path == nil || *path == "" || images == nil {
		return path
	}
	url, err := images.SignedURL(ctx, purpose, *path)
	if err != nil {
		logger.Warn("failed to sign image url", slog.String("purpose", string(purpose)), slog.Any("error", err))
		return nil
	}
	return &url
}

// uploadOne stores a single image and returns its path
func uploadOne(ctx context.Context, images ImageStore, purpose storage.Purpose, folder string, file storage.File) (string, error) {
	result, err := images.Upload(ctx, purpose, folder, []storage.File{file}, 1)
	if err != nil {
		return "", err
	}
	if len(result.Uploaded) == 0 {
		return "", &UploadRejectedError{Errors: result.Errors}
	}
	return result.Uploaded[0].Path, nil
}
