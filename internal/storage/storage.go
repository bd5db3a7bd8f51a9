package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Purpose selects the bucket an upload lands in
type Purpose string

const (
	PurposePortfolio    Purpose = "portfolio-images"
	PurposeAnimal       Purpose = "animal-images"
	PurposeConsultation Purpose = "consultation-images"
	PurposeProfile      Purpose = "profile-images"
)

const (
	DefaultMaxFileBytes    = 5 * 1024 * 1024
	DefaultSignedURLExpiry = time.Hour
)

// allowedTypes maps accepted content types to the stored file extension
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrTooManyFiles    = errors.New("too many files")
	ErrEmptyFile       = errors.New("file is empty")
)

// ObjectStore is the blob backend. S3Store is the production implementation.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}

// File is one uploaded part, read fully into memory
type File struct {
	Name string
	Data []byte
}

// Object is a stored file. Path is persisted; URL is a time-limited signed link.
type Object struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// FileError reports why a single file was skipped
type FileError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// UploadResult lists what was stored and what was skipped
type UploadResult struct {
	Uploaded []Object    `json:"uploaded"`
	Errors   []FileError `json:"errors"`
}

// Paths returns the stored paths of the uploaded objects
func (r *UploadResult) Paths() []string {
	paths := make([]string, 0, len(r.Uploaded))
	for _, o := range r.Uploaded {
		paths = append(paths, o.Path)
	}
	return paths
}

type Config struct {
	BucketPrefix    string
	MaxFileBytes    int64
	SignedURLExpiry time.Duration
}

// Uploader validates image uploads and writes them to the object store
type Uploader struct {
	store  ObjectStore
	config Config
	logger *slog.Logger
}

func NewUploader(store ObjectStore, config Config, logger *slog.Logger) *Uploader {
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = DefaultMaxFileBytes
	}
	if config.SignedURLExpiry <= 0 {
		config.SignedURLExpiry = DefaultSignedURLExpiry
	}
	return &Uploader{store: store, config: config, logger: logger}
}

// MaxFileBytes is the per-file size limit
func (u *Uploader) MaxFileBytes() int64 {
	return u.config.MaxFileBytes
}

func (u *Uploader) bucket(p Purpose) string {
	return u.config.BucketPrefix + string(p)
}

// ValidateFile checks size and sniffed content type and returns the
// extension to store the file under. The client's declared type is ignored.
func (u *Uploader) ValidateFile(f File) (string, error) {
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%s is empty: %w", f.Name, ErrEmptyFile)
	}
	if int64(len(f.Data)) > u.config.MaxFileBytes {
		return "", fmt.Errorf("%s exceeds %dMB limit: %w", f.Name, u.config.MaxFileBytes/(1024*1024), ErrFileTooLarge)
	}

	detected := mimetype.Detect(f.Data)
	ext, ok := allowedTypes[detected.String()]
	if !ok {
		return "", fmt.Errorf("%s must be JPEG, PNG, or WebP: %w", f.Name, ErrInvalidFileType)
	}
	return ext, nil
}

// Upload stores files under folder/<random>.<ext> in the purpose's bucket.
// A file that fails validation or upload is skipped and reported in Errors.
// maxFiles of zero means no limit; exceeding it rejects the whole batch.
func (u *Uploader) Upload(ctx context.Context, purpose Purpose, folder string, files []File, maxFiles int) (*UploadResult, error) {
	if maxFiles > 0 && len(files) > maxFiles {
		return nil, fmt.Errorf("maximum %d files allowed: %w", maxFiles, ErrTooManyFiles)
	}

	result := &UploadResult{Uploaded: []Object{}, Errors: []FileError{}}
	bucket := u.bucket(purpose)

	for _, f := range files {
		ext, err := u.ValidateFile(f)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Name: f.Name, Message: validationMessage(err)})
			continue
		}

		key := fmt.Sprintf("%s/%s.%s", folder, uuid.NewString(), ext)
		contentType := mimetype.Detect(f.Data).String()
		if err := u.store.Put(ctx, bucket, key, f.Data, contentType); err != nil {
			u.logger.Error("upload failed",
				slog.String("bucket", bucket),
				slog.String("file", f.Name),
				slog.Any("error", err))
			result.Errors = append(result.Errors, FileError{Name: f.Name, Message: "Failed to upload " + f.Name})
			continue
		}

		url, err := u.store.PresignGet(ctx, bucket, key, u.config.SignedURLExpiry)
		if err != nil {
			u.logger.Warn("failed to sign uploaded object", slog.String("key", key), slog.Any("error", err))
		}

		result.Uploaded = append(result.Uploaded, Object{Name: f.Name, Path: key, URL: url})
	}

	return result, nil
}

// SignedURL returns a time-limited GET link for a stored path
func (u *Uploader) SignedURL(ctx context.Context, purpose Purpose, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	// Values written before paths were stored may already be full URLs
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	return u.store.PresignGet(ctx, u.bucket(purpose), path, u.config.SignedURLExpiry)
}

// Remove deletes a stored object. Missing objects are not an error.
func (u *Uploader) Remove(ctx context.Context, purpose Purpose, path string) error {
	if path == "" {
		return nil
	}
	return u.store.Delete(ctx, u.bucket(purpose), path)
}

func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
