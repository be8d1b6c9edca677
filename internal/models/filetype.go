package models

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Extensions accepted for ingest, mapped to their canonical MIME type.
var supportedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

// DefaultMimeType is used when neither content nor extension is conclusive.
const DefaultMimeType = "application/octet-stream"

// SupportedExtensions returns the accepted extensions without the dot.
func SupportedExtensions() []string {
	return []string{"pdf", "jpg", "jpeg", "png", "webp", "heic"}
}

// IsSupportedFile reports whether path has an accepted extension.
func IsSupportedFile(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// MimeTypeForPath maps a file extension to a MIME type.
func MimeTypeForPath(path string) string {
	if mt, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return DefaultMimeType
}

// DetectMimeType sniffs the file content and falls back to the extension
// table when the content is not recognised.
func DetectMimeType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt.Is(DefaultMimeType) || mt.Is("text/plain") {
		return MimeTypeForPath(path)
	}
	return mt.String()
}
