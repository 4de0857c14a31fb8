package constants

// UploadStatus is the canonical state of an upload job.
type UploadStatus string

// Stable values (store these exact strings in DB).
const (
	StatusNotUploaded      UploadStatus = "NOT_UPLOADED"
	StatusProcessingPDF    UploadStatus = "PROCESSING_PDF"
	StatusCompressingImage UploadStatus = "COMPRESSING_IMAGE"
	StatusUploadingToS3    UploadStatus = "UPLOADING_TO_S3"
	StatusAIProcessing     UploadStatus = "AI_PROCESSING"
	StatusCompleted        UploadStatus = "COMPLETED" // terminal
	StatusFailed           UploadStatus = "FAILED"    // retryable via NOT_UPLOADED
)

var allStatuses = []UploadStatus{
	StatusNotUploaded,
	StatusProcessingPDF,
	StatusCompressingImage,
	StatusUploadingToS3,
	StatusAIProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every upload status in pipeline order.
func AllStatuses() []UploadStatus {
	out := make([]UploadStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s UploadStatus) Terminal() bool { return s == StatusCompleted }
