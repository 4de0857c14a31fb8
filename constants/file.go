package constants

import "strings"

const (
	MIMETypePDF  = "application/pdf"
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeWebP = "image/webp"
	MIMETypeGIF  = "image/gif"
)

// MaxUploadMBDefault is the largest source file accepted for ingestion.
const MaxUploadMBDefault = 10

// AllowedMIMETypes holds the content types accepted for ingestion.
var AllowedMIMETypes = map[string]struct{}{
	MIMETypePDF:  {},
	MIMETypeJPEG: {},
	MIMETypePNG:  {},
	MIMETypeWebP: {},
	MIMETypeGIF:  {},
}

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"gif":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMETypeForExt maps a file extension to its content type, or "" when unsupported.
func MIMETypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return MIMETypePDF
	case "jpg", "jpeg":
		return MIMETypeJPEG
	case "png":
		return MIMETypePNG
	case "webp":
		return MIMETypeWebP
	case "gif":
		return MIMETypeGIF
	}
	return ""
}

func IsPDF(mimeType string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), MIMETypePDF)
}

func IsRaster(mimeType string) bool {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(m, "image/")
}
