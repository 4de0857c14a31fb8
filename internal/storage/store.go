package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore persists processed invoice images.
type ObjectStore interface {
	// Put stores data under key and returns the key actually written.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds invoices/<user>/<yyyy>/<mm>/<job-id>.<ext>.
func ObjectKey(userID string, jobID uuid.UUID, at time.Time, ext string) string {
	user := sanitizeSegment(userID)
	if user == "" {
		user = "anonymous"
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	at = at.UTC()
	return fmt.Sprintf("invoices/%s/%04d/%02d/%s.%s", user, at.Year(), int(at.Month()), jobID, ext)
}

// ExtForContentType maps an image content type to a key extension.
func ExtForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "application/pdf":
		return "pdf"
	}
	return "jpg"
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}
