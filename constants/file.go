package constants

import "strings"

// AllowedImageExtensions holds the upload extensions accepted for analysis.
var AllowedImageExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// MaxImageMBDefault caps a single uploaded image sent to the vision model.
const MaxImageMBDefault = 10

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeForExt returns the MIME type for an allowed image extension.
func MimeForExt(ext string) (string, bool) {
	mt, ok := AllowedImageExtensions[NormalizeExt(ext)]
	return mt, ok
}
