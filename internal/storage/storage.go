// Package storage persists deliverable files and returns their public URLs.
package storage

import (
	"context"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sudo-init-do/bidhub/internal/apperr"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 10 << 20

const msgInvalidType = "Invalid file type. Only images, PDFs, documents, spreadsheets, zip files, and text files are allowed."

var allowedTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip": true,
	"text/plain":      true,
}

// File is an upload held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader stores a file and returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Allowed reports whether a content type may be uploaded.
func Allowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mt == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mt, "image/") || allowedTypes[mt]
}

// markupTypes are text formats a browser may execute.
var markupTypes = []string{"text/html", "image/svg+xml", "text/xml", "text/javascript", "text/x-php"}

// Check enforces the size limit and type filter. The declared content type
// is ignored: the type is sniffed from the bytes and stored on f.
func Check(f *File) error {
	if len(f.Data) > MaxFileSize {
		return apperr.Validation("File too large. Maximum size is 10MB.")
	}
	mt := mimetype.Detect(f.Data)
	f.ContentType = mt.String()
	if !sniffedAllowed(mt) {
		return apperr.Validation(msgInvalidType)
	}
	return nil
}

// sniffedAllowed accepts the allowed types plus any plain text subtype
// (csv, json, ...) that is not markup or script.
func sniffedAllowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, t := range markupTypes {
			if m.Is(t) {
				return false
			}
		}
		if m == mt && Allowed(m.String()) {
			return true
		}
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// extension returns the file extension matching the sniffed content.
func extension(data []byte) string {
	return mimetype.Detect(data).Extension()
}
