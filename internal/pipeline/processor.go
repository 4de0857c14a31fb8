package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/compress"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/storage"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// Rasterizer renders a document into images.
type Rasterizer interface {
	Convert(ctx context.Context, data []byte, mimeType string, opts rasterize.Options) rasterize.Result
}

// Compressor shrinks an image towards a byte budget.
type Compressor interface {
	Compress(ctx context.Context, data []byte, mimeType string, opts compress.Options) (compress.Result, error)
}

type Validator interface {
	Validate(d entity.ExtractedInvoiceData) entity.ValidationResult
}

type AnomalyDetector interface {
	Detect(ctx context.Context, userID string, data entity.ExtractedInvoiceData, excludeID uuid.UUID) (entity.AnomalyDetectionResult, error)
}

type CategorySuggester interface {
	Suggest(in category.Input) entity.CategorySuggestion
}

// InvoiceSaver persists the finished record.
type InvoiceSaver interface {
	Save(ctx context.Context, inv entity.Invoice) (uuid.UUID, error)
}

// Deps are the collaborators a Processor drives. All are required.
type Deps struct {
	Rasterizer Rasterizer
	Compressor Compressor
	Store      storage.ObjectStore
	Extractor  llm.InvoiceExtractor
	Validator  Validator
	Detector   AnomalyDetector
	Suggester  CategorySuggester
	Invoices   InvoiceSaver
}

// Options tunes the stages.
type Options struct {
	MaxFileBytes    int64
	Raster          rasterize.Options
	Compress        compress.Options
	DefaultCurrency string
	// CleanupTimeout bounds the best-effort delete of an object uploaded after cancellation.
	CleanupTimeout time.Duration
}

// Processor runs one upload job through every stage, in order, on the calling goroutine.
type Processor struct {
	deps Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

func NewProcessor(deps Deps, opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 10 * time.Second
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "AUD"
	}
	return &Processor{deps: deps, opts: opts, log: logger, now: time.Now}
}

// Process drives job from NOT_UPLOADED to COMPLETED or FAILED. On failure the returned
// error is the *common.AppError recorded on the job.
func (p *Processor) Process(ctx context.Context, job *upload.Job) (*entity.Invoice, error) {
	if st := job.Status(); st != constants.StatusNotUploaded {
		return nil, fmt.Errorf("job %s is %s: %w", job.ID(), st, upload.ErrInvalidTransition)
	}
	start := time.Now()
	src := job.Source()
	log := p.log.With("job_id", job.ID(), "user_id", job.UserID(), "file", src.Name)
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	log.Info("pipeline.start", "mime_type", src.MIMEType, "size", src.Size)

	if err := p.checkSource(src); err != nil {
		return nil, p.fail(log, job, err)
	}

	rasters, pages, err := p.rasterize(ctx, log, job, src)
	if err != nil {
		return nil, p.fail(log, job, err)
	}

	imgs, err := p.compress(ctx, log, job, rasters)
	if err != nil {
		return nil, p.fail(log, job, err)
	}

	// only the first page is stored; every page goes to the model
	if err := p.upload(ctx, log, job, &imgs[0]); err != nil {
		return nil, p.fail(log, job, err)
	}

	if err := job.Fire(upload.EventExtract); err != nil {
		return nil, err
	}
	images := make([]llm.Image, len(imgs))
	for i, img := range imgs {
		images[i] = llm.Image{Data: img.Data, MIMEType: img.MIMEType}
	}
	data, _, err := p.deps.Extractor.Extract(ctx, llm.ExtractRequest{
		Images:          images,
		FileName:        src.Name,
		PageCount:       pages,
		DefaultCurrency: p.opts.DefaultCurrency,
	})
	if err != nil {
		return nil, p.fail(log, job, llm.Classify(err))
	}
	job.SetProgress(85)

	inv := p.analyze(ctx, log, job, data)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(log, job, common.Aborted(err))
	}

	id, err := p.deps.Invoices.Save(ctx, inv)
	if err != nil {
		if ctx.Err() != nil || common.IsContextError(err) {
			return nil, p.fail(log, job, common.Aborted(err))
		}
		return nil, p.fail(log, job, common.NewAppError(common.CodeSaveFailed, "The invoice could not be saved.", err))
	}
	inv.ID = id
	job.SetInvoiceID(id)
	if err := job.Fire(upload.EventComplete); err != nil {
		return nil, err
	}

	log.Info("pipeline.ok",
		"invoice_id", id,
		"object_key", inv.ObjectKey,
		"is_valid", inv.Validation.IsValid,
		"anomalies", len(inv.Anomalies.Details),
		"category", inv.Category.SuggestedCategory,
		"needs_review", inv.NeedsReview,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &inv, nil
}

func (p *Processor) checkSource(src entity.SourceFile) *common.AppError {
	if p.opts.MaxFileBytes > 0 && src.Size > p.opts.MaxFileBytes {
		return common.NewAppError(common.CodeFileTooLarge, "The file is larger than the upload limit.",
			fmt.Errorf("%d bytes exceeds %d: %w", src.Size, p.opts.MaxFileBytes, common.ErrInvalidInput))
	}
	if _, ok := constants.AllowedMIMETypes[src.MIMEType]; !ok {
		return common.NewAppError(common.CodeInvalidFileType,
			"Only PDF and image files can be uploaded.", common.ErrInvalidInput)
	}
	if len(src.Data) == 0 {
		return common.NewAppError(common.CodeInvalidFileType, "The file is empty.", common.ErrInvalidInput)
	}
	return nil
}

// rasterize renders PDFs; images go straight to compression. Multi-page mode yields one
// artifact per rendered page, every other mode exactly one.
func (p *Processor) rasterize(ctx context.Context, log *slog.Logger, job *upload.Job, src entity.SourceFile) ([]entity.ImageArtifact, int, error) {
	if !constants.IsPDF(src.MIMEType) {
		if err := job.Fire(upload.EventCompress); err != nil {
			return nil, 0, err
		}
		a := entity.ImageArtifact{Data: src.Data, MIMEType: src.MIMEType, Page: 1}
		job.SetRaster(&a)
		return []entity.ImageArtifact{a}, 1, nil
	}

	if err := job.Fire(upload.EventProcessPDF); err != nil {
		return nil, 0, err
	}
	res := p.deps.Rasterizer.Convert(ctx, src.Data, src.MIMEType, p.opts.Raster)
	if err := ctx.Err(); err != nil {
		return nil, 0, common.Aborted(err)
	}
	first := res.First()
	if first == nil {
		log.Warn("pipeline.rasterize.failed", "error", res.Error)
		return nil, 0, common.NewAppError(common.CodePDFProcessingFailed,
			"The PDF could not be converted to an image.", errors.New(res.Error))
	}
	job.SetRaster(first)
	job.SetProgress(20)
	log.Debug("pipeline.rasterize.ok",
		"pages", res.PageCount,
		"images", len(res.Images),
		"width", first.Width,
		"height", first.Height,
	)

	if err := job.Fire(upload.EventCompress); err != nil {
		return nil, 0, err
	}
	return res.Images, res.PageCount, nil
}

// compress shrinks every raster. A page whose encoding fails falls back to its uncompressed artifact.
func (p *Processor) compress(ctx context.Context, log *slog.Logger, job *upload.Job, rasters []entity.ImageArtifact) ([]entity.ImageArtifact, error) {
	out := make([]entity.ImageArtifact, 0, len(rasters))
	for _, raster := range rasters {
		res, err := p.deps.Compressor.Compress(ctx, raster.Data, raster.MIMEType, p.opts.Compress)
		if ctx.Err() != nil {
			return nil, common.Aborted(ctx.Err())
		}
		if err != nil {
			if common.IsCode(err, common.CodeUploadAborted) {
				return nil, err
			}
			log.Warn("pipeline.compress.fallback", "page", raster.Page, "error", err)
			out = append(out, raster)
			continue
		}
		out = append(out, entity.ImageArtifact{
			Data:     res.Data,
			MIMEType: res.MIMEType,
			Width:    res.Width,
			Height:   res.Height,
			Page:     raster.Page,
		})
	}
	job.SetCompressed(&out[0])
	job.SetProgress(45)
	return out, nil
}

// upload stores img and commits the key only if the job is still live afterwards.
func (p *Processor) upload(ctx context.Context, log *slog.Logger, job *upload.Job, img *entity.ImageArtifact) error {
	if err := job.Fire(upload.EventUpload); err != nil {
		return err
	}
	key := storage.ObjectKey(job.UserID(), job.ID(), p.now(), storage.ExtForContentType(img.MIMEType))
	location, err := p.deps.Store.Put(ctx, key, img.Data, img.MIMEType)
	if err != nil {
		if ctx.Err() != nil || common.IsContextError(err) {
			return common.Aborted(err)
		}
		return common.NewAppError(common.CodeUploadFailed, "The file could not be uploaded to storage.", err)
	}
	if err := ctx.Err(); err != nil {
		p.discard(log, key)
		return common.Aborted(err)
	}
	job.CommitObjectKey(key)
	job.SetProgress(65)
	log.Debug("pipeline.upload.ok", "object_key", key, "location", location, "size", len(img.Data))
	return nil
}

// discard removes an object whose job was cancelled while it uploaded.
func (p *Processor) discard(log *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.CleanupTimeout)
	defer cancel()
	if err := p.deps.Store.Delete(ctx, key); err != nil {
		log.Warn("pipeline.upload.cleanup_failed", "object_key", key, "error", err)
		return
	}
	log.Info("pipeline.upload.discarded", "object_key", key)
}

// analyze runs validation, anomaly detection and categorization. None of them can fail the job.
func (p *Processor) analyze(ctx context.Context, log *slog.Logger, job *upload.Job, data entity.ExtractedInvoiceData) entity.Invoice {
	src := job.Source()
	inv := entity.Invoice{
		ID:                 uuid.New(),
		UserID:             job.UserID(),
		JobID:              job.ID(),
		ObjectKey:          job.ObjectKey(),
		FileName:           src.Name,
		Extracted:          data,
		ExtractionProvider: p.deps.Extractor.ProviderName(),
		CreatedAt:          p.now().UTC(),
	}

	inv.Validation = p.deps.Validator.Validate(data)

	anomalies, err := p.deps.Detector.Detect(ctx, job.UserID(), data, inv.ID)
	if err != nil {
		log.Warn("pipeline.anomaly.history_unavailable", "error", err)
		anomalies = entity.AnomalyDetectionResult{Details: []entity.AnomalyDetail{}}
	}
	inv.Anomalies = anomalies

	inv.Category = p.deps.Suggester.Suggest(category.InputFrom(data))
	inv.NeedsReview = !inv.Validation.IsValid || inv.Anomalies.NeedsReview()
	job.SetProgress(90)

	log.Debug("pipeline.analyze.ok",
		"errors", len(inv.Validation.Errors),
		"warnings", len(inv.Validation.Warnings),
		"anomalies", len(inv.Anomalies.Details),
		"category", inv.Category.SuggestedCategory,
		"category_confidence", inv.Category.Confidence,
	)
	return inv
}

func (p *Processor) fail(log *slog.Logger, job *upload.Job, err error) error {
	appErr, ok := common.AsAppError(err)
	if !ok {
		// invalid transitions are programming errors and are returned as-is
		if errors.Is(err, upload.ErrInvalidTransition) {
			return err
		}
		appErr = common.NewAppError(common.CodeAIExtractionFailed, "Processing failed.", err)
	}
	if ferr := job.Fail(appErr); ferr != nil {
		log.Error("pipeline.fail_transition", "error", ferr)
	}
	log.Error("pipeline.failed",
		"attempt", job.Snapshot().Attempt,
		"code", appErr.Code,
		"error", appErr,
	)
	return appErr
}
