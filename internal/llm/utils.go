package llm

import (
	"encoding/base64"
	"net/http"
	"path/filepath"

	"github.com/joseph-ayodele/cbam-tracker/constants"
)

// DetectMIME picks the image MIME type from the filename extension and falls
// back to content sniffing.
func DetectMIME(filename string, data []byte) string {
	if mt, ok := constants.MimeForExt(filepath.Ext(filename)); ok {
		return mt
	}
	return http.DetectContentType(data)
}

// DataURL encodes an image for inline transport.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ImageTooLarge reports whether data exceeds maxMB (0 means the default).
func ImageTooLarge(data []byte, maxMB int) bool {
	if maxMB <= 0 {
		maxMB = constants.MaxImageMBDefault
	}
	return int64(len(data)) > int64(maxMB)*1024*1024
}
