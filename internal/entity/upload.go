package entity

import (
	"time"
)

// SourceFile is an uploaded document as received from the user.
type SourceFile struct {
	Name       string    `json:"name" validate:"required"`
	MIMEType   string    `json:"mime_type" validate:"required,oneof=application/pdf image/jpeg image/png image/webp image/gif"`
	Size       int64     `json:"size" validate:"gt=0"`
	SHA256     string    `json:"sha256,omitempty"`
	Data       []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// ImageArtifact is a raster image produced by one pipeline stage.
type ImageArtifact struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Page     int    `json:"page,omitempty"` // 1-based; 0 for stitched or pass-through images
}

func (a *ImageArtifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}
