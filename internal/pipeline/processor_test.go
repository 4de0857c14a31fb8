package pipeline

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

func TestProcess_PDF(t *testing.T) {
	h := newHarness()
	job := upload.NewJob("u1", pdfSource())
	seen := trackStatuses(job)

	inv, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, []constants.UploadStatus{
		constants.StatusProcessingPDF,
		constants.StatusCompressingImage,
		constants.StatusUploadingToS3,
		constants.StatusAIProcessing,
		constants.StatusCompleted,
	}, *seen)

	snap := job.Snapshot()
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.InvoiceID)
	assert.Equal(t, inv.ID, *snap.InvoiceID)
	assert.True(t, strings.HasPrefix(snap.ObjectKey, "invoices/u1/2024/05/"), snap.ObjectKey)
	assert.True(t, strings.HasSuffix(snap.ObjectKey, job.ID().String()+".jpg"), snap.ObjectKey)
	assert.Equal(t, []byte("jpeg:png-page-1"), h.store.objects[snap.ObjectKey])

	assert.Equal(t, 2, h.extractor.got.PageCount)
	assert.Equal(t, "AUD", h.extractor.got.DefaultCurrency)
	require.Len(t, h.extractor.got.Images, 1)
	assert.Equal(t, constants.MIMETypeJPEG, h.extractor.got.Images[0].MIMEType)

	require.Len(t, h.saver.saved, 1)
	saved := h.saver.saved[0]
	assert.Equal(t, snap.ObjectKey, saved.ObjectKey)
	assert.True(t, saved.Validation.IsValid)
	assert.False(t, saved.NeedsReview)
	assert.Equal(t, constants.Communications, saved.Category.SuggestedCategory)
	assert.Equal(t, "fake:model", saved.ExtractionProvider)
	assert.Equal(t, job.ID(), saved.JobID)
}

func TestProcess_MultiPageSendsEveryPage(t *testing.T) {
	h := newHarness()
	h.raster.res = rasterize.Result{
		Success:   true,
		PageCount: 5,
		Images: []entity.ImageArtifact{
			{Data: []byte("png-page-1"), MIMEType: constants.MIMETypePNG, Page: 1},
			{Data: []byte("png-page-2"), MIMEType: constants.MIMETypePNG, Page: 2},
			{Data: []byte("png-page-3"), MIMEType: constants.MIMETypePNG, Page: 3},
		},
	}
	job := upload.NewJob("u1", pdfSource())

	_, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, h.extractor.got.Images, 3)
	for i, img := range h.extractor.got.Images {
		assert.Equal(t, constants.MIMETypeJPEG, img.MIMEType)
		assert.Equal(t, []byte("jpeg:png-page-"+strconv.Itoa(i+1)), img.Data)
	}
	assert.Equal(t, 5, h.extractor.got.PageCount)

	snap := job.Snapshot()
	require.Len(t, h.store.objects, 1)
	assert.Equal(t, []byte("jpeg:png-page-1"), h.store.objects[snap.ObjectKey])
	assert.Equal(t, 1, job.Compressed().Page)
}

func TestProcess_ImageSkipsRasterizer(t *testing.T) {
	h := newHarness()
	job := upload.NewJob("u1", pngSource())
	seen := trackStatuses(job)

	_, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Zero(t, h.raster.calls)
	assert.Equal(t, constants.StatusCompressingImage, (*seen)[0])
	assert.Equal(t, constants.StatusCompleted, job.Status())
	assert.Equal(t, 1, h.extractor.got.PageCount)
}

func TestProcess_SourceRejected(t *testing.T) {
	tests := []struct {
		name string
		src  entity.SourceFile
		code string
	}{
		{"too large", entity.SourceFile{Name: "big.pdf", MIMEType: constants.MIMETypePDF, Size: 4096, Data: []byte("x")}, common.CodeFileTooLarge},
		{"wrong type", entity.SourceFile{Name: "a.txt", MIMEType: "text/plain", Size: 1, Data: []byte("x")}, common.CodeInvalidFileType},
		{"empty", entity.SourceFile{Name: "a.png", MIMEType: constants.MIMETypePNG}, common.CodeInvalidFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			job := upload.NewJob("u1", tt.src)
			_, err := h.proc.Process(context.Background(), job)
			require.Error(t, err)
			assert.Equal(t, tt.code, common.CodeOf(err))
			assert.Equal(t, constants.StatusFailed, job.Status())
			assert.Equal(t, tt.code, job.Err().Code)
			assert.Empty(t, h.store.objects)
		})
	}
}

func TestProcess_PDFRenderFails(t *testing.T) {
	h := newHarness()
	h.raster.res.Success = false
	h.raster.res.Error = "pdf has no pages"
	job := upload.NewJob("u1", pdfSource())

	_, err := h.proc.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, common.CodePDFProcessingFailed, common.CodeOf(err))
	assert.Equal(t, constants.StatusFailed, job.Status())
	assert.Empty(t, h.store.objects)
	assert.Empty(t, h.saver.saved)
}

func TestProcess_CompressionFallsBack(t *testing.T) {
	h := newHarness()
	h.comp.err = common.NewAppError(common.CodeImageCompressionFailed, "bad image", errBoom)
	job := upload.NewJob("u1", pdfSource())

	_, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.True(t, strings.HasSuffix(snap.ObjectKey, ".png"), snap.ObjectKey)
	assert.Equal(t, []byte("png-page-1"), h.store.objects[snap.ObjectKey])
	assert.Equal(t, []byte("png-page-1"), job.Compressed().Data)
}

func TestProcess_UploadFails(t *testing.T) {
	h := newHarness()
	h.store.putErr = errBoom
	job := upload.NewJob("u1", pngSource())

	_, err := h.proc.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, common.CodeUploadFailed, common.CodeOf(err))
	assert.Empty(t, job.ObjectKey())
	assert.Equal(t, 50, job.Progress(), "progress stays at the upload stage entry")
}

func TestProcess_CancelledDuringUpload(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.store.onPut = cancel
	job := upload.NewJob("u1", pngSource())

	_, err := h.proc.Process(ctx, job)
	require.Error(t, err)
	assert.Equal(t, common.CodeUploadAborted, common.CodeOf(err))
	assert.Equal(t, constants.StatusFailed, job.Status())
	assert.Empty(t, job.ObjectKey(), "key must not be committed after cancellation")
	require.Len(t, h.store.deleted, 1)
	assert.Empty(t, h.store.objects)
	assert.Empty(t, h.saver.saved)
}

func TestProcess_CancelledBeforeStart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := upload.NewJob("u1", pdfSource())

	_, err := h.proc.Process(ctx, job)
	require.Error(t, err)
	assert.Equal(t, common.CodeUploadAborted, common.CodeOf(err))
	assert.Empty(t, h.store.objects)
}

func TestProcess_ExtractionError(t *testing.T) {
	h := newHarness()
	h.extractor.err = common.NewAppError(common.CodeAIRateLimit, "busy", errBoom)
	job := upload.NewJob("u1", pngSource())

	_, err := h.proc.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, common.CodeAIRateLimit, common.CodeOf(err))
	assert.Equal(t, constants.StatusFailed, job.Status())
	assert.NotEmpty(t, job.ObjectKey(), "the stored object stays committed")
}

func TestProcess_SaveFails(t *testing.T) {
	h := newHarness()
	h.saver.err = errBoom
	job := upload.NewJob("u1", pngSource())

	_, err := h.proc.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, common.CodeSaveFailed, common.CodeOf(err))
	assert.Equal(t, "The invoice could not be saved.", common.PublicMessage(err))
}

func TestProcess_HistoryUnavailable(t *testing.T) {
	h := newHarness()
	h.detector.err = errBoom
	job := upload.NewJob("u1", pngSource())

	inv, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, inv.Anomalies.Flagged())
	assert.NotNil(t, inv.Anomalies.Details)
	assert.Equal(t, constants.StatusCompleted, job.Status())
}

func TestProcess_NeedsReview(t *testing.T) {
	t.Run("invalid data", func(t *testing.T) {
		h := newHarness()
		h.extractor.data.TotalAmount = nil
		inv, err := h.proc.Process(context.Background(), upload.NewJob("u1", pngSource()))
		require.NoError(t, err)
		assert.False(t, inv.Validation.IsValid)
		assert.True(t, inv.NeedsReview)
	})
	t.Run("anomaly flagged", func(t *testing.T) {
		h := newHarness()
		h.detector.res.Add(entity.AnomalyDetail{Type: entity.AnomalyNewSupplier, Severity: entity.SeverityLow})
		h.detector.res.Add(entity.AnomalyDetail{Type: entity.AnomalyAmountSpike, Severity: entity.SeverityMedium})
		inv, err := h.proc.Process(context.Background(), upload.NewJob("u1", pngSource()))
		require.NoError(t, err)
		assert.True(t, inv.Validation.IsValid)
		assert.True(t, inv.NeedsReview)
	})
	t.Run("low only anomalies are informational", func(t *testing.T) {
		h := newHarness()
		h.detector.res.Add(entity.AnomalyDetail{Type: entity.AnomalyNewSupplier, Severity: entity.SeverityLow})
		h.detector.res.Add(entity.AnomalyDetail{Type: entity.AnomalyOldDate, Severity: entity.SeverityLow})
		inv, err := h.proc.Process(context.Background(), upload.NewJob("u1", pngSource()))
		require.NoError(t, err)
		assert.True(t, inv.Anomalies.Flagged())
		assert.False(t, inv.NeedsReview)
	})
}

func TestProcess_RejectsNonFreshJob(t *testing.T) {
	h := newHarness()
	job := upload.NewJob("u1", pngSource())
	require.NoError(t, job.Fire(upload.EventCompress))

	_, err := h.proc.Process(context.Background(), job)
	require.ErrorIs(t, err, upload.ErrInvalidTransition)
	assert.Equal(t, constants.StatusCompressingImage, job.Status())
}

func TestProcess_RetryAfterFailure(t *testing.T) {
	h := newHarness()
	h.store.putErr = errBoom
	job := upload.NewJob("u1", pngSource())
	_, err := h.proc.Process(context.Background(), job)
	require.Error(t, err)

	h.store.putErr = nil
	require.NoError(t, job.Retry())
	_, err = h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.Equal(t, constants.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Attempt)
	assert.Empty(t, snap.ErrorCode)
}
