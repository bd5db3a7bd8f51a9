package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
)

// multipartMemory bounds the form held in memory; larger parts spill to disk
const multipartMemory = 8 << 20

// multipartOverhead covers boundaries, part headers and text fields
const multipartOverhead = 1 << 20

var errNoFiles = errors.New("no files")

// isMultipart reports whether the request carries a multipart form
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readImages parses a multipart request and returns the parts under field.
// The body is capped at maxFiles files of maxBytes plus overhead, so an
// oversized request fails before anything reaches disk. Each part is read up
// to maxBytes+1 so the uploader can reject oversized files by length.
func readImages(w http.ResponseWriter, r *http.Request, field string, maxBytes int64, maxFiles int) ([]storage.File, error) {
	if maxFiles < 1 {
		maxFiles = 1
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*(maxBytes+1)+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	if r.MultipartForm == nil {
		return nil, errNoFiles
	}

	headers := r.MultipartForm.File[field]
	files := make([]storage.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, storage.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

// writeUploadError answers a failed readImages: 413 when the body was
// too large, 400 otherwise
func writeUploadError(w http.ResponseWriter, err error, maxBytes int64, fallback string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("Upload too large. Each file must be at most %d MB.", maxBytes>>20))
		return
	}
	pkghttp.WriteBadRequest(w, fallback)
}

func readPart(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return data, nil
}

// readSingleImage reads exactly one file from field, writing the 400 itself
func readSingleImage(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (storage.File, bool) {
	files, err := readImages(w, r, field, maxBytes, 1)
	if err != nil {
		writeUploadError(w, err, maxBytes, fmt.Sprintf("a file is required in the %q field", field))
		return storage.File{}, false
	}
	if len(files) == 0 {
		pkghttp.WriteBadRequest(w, fmt.Sprintf("a file is required in the %q field", field))
		return storage.File{}, false
	}
	if len(files) > 1 {
		pkghttp.WriteBadRequest(w, "maximum 1 files allowed")
		return storage.File{}, false
	}
	return files[0], true
}

// formString returns a trimmed multipart value, or nil when absent
func formString(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}
