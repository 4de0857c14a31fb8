package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/compress"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validation"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeRasterizer struct {
	res   rasterize.Result
	calls int
}

func (f *fakeRasterizer) Convert(context.Context, []byte, string, rasterize.Options) rasterize.Result {
	f.calls++
	return f.res
}

type fakeCompressor struct {
	err error
}

func (f *fakeCompressor) Compress(_ context.Context, data []byte, _ string, _ compress.Options) (compress.Result, error) {
	if f.err != nil {
		return compress.Result{}, f.err
	}
	return compress.Result{Data: append([]byte("jpeg:"), data...), MIMEType: constants.MIMETypeJPEG, Width: 10, Height: 20}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
	onPut   func()
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	if s.onPut != nil {
		s.onPut()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "mem://" + key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type fakeExtractor struct {
	data entity.ExtractedInvoiceData
	err  error
	got  llm.ExtractRequest
	// holding, when set, receives each call which then waits for ctx to end
	holding chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, req llm.ExtractRequest) (entity.ExtractedInvoiceData, []byte, error) {
	f.got = req
	if f.holding != nil {
		f.holding <- struct{}{}
		<-ctx.Done()
		return entity.ExtractedInvoiceData{}, nil, ctx.Err()
	}
	if f.err != nil {
		return entity.ExtractedInvoiceData{}, nil, f.err
	}
	return f.data, []byte("{}"), nil
}

func (f *fakeExtractor) ProviderName() string { return "fake:model" }

type fakeDetector struct {
	res entity.AnomalyDetectionResult
	err error
}

func (f *fakeDetector) Detect(context.Context, string, entity.ExtractedInvoiceData, uuid.UUID) (entity.AnomalyDetectionResult, error) {
	return f.res, f.err
}

type fakeSaver struct {
	saved []entity.Invoice
	err   error
}

func (f *fakeSaver) Save(_ context.Context, inv entity.Invoice) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.saved = append(f.saved, inv)
	return inv.ID, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []async.Job
	cancelled []uuid.UUID
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Upload.ID() == id {
			q.cancelled = append(q.cancelled, id)
			return true
		}
	}
	return false
}

func (q *fakeQueue) Shutdown(context.Context) {}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []upload.Snapshot
	err   error
}

func (r *fakeRecorder) Upsert(_ context.Context, s upload.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

func (r *fakeRecorder) statuses() []constants.UploadStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]constants.UploadStatus, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.Status
	}
	return out
}

var errBoom = errors.New("boom")

func goodInvoice() entity.ExtractedInvoiceData {
	return entity.ExtractedInvoiceData{
		InvoiceNumber: entity.StringPtr("INV-100"),
		SupplierName:  entity.StringPtr("Telstra Mobile"),
		Subtotal:      entity.FloatPtr(100),
		TaxAmount:     entity.FloatPtr(10),
		TotalAmount:   entity.FloatPtr(110),
		Currency:      entity.StringPtr("AUD"),
		InvoiceDate:   entity.StringPtr("2024-05-01"),
	}
}

type harness struct {
	raster    *fakeRasterizer
	comp      *fakeCompressor
	store     *fakeStore
	extractor *fakeExtractor
	detector  *fakeDetector
	saver     *fakeSaver
	proc      *Processor
}

func newHarness() *harness {
	h := &harness{
		raster: &fakeRasterizer{res: rasterize.Result{
			Success:   true,
			PageCount: 2,
			Images:    []entity.ImageArtifact{{Data: []byte("png-page-1"), MIMEType: constants.MIMETypePNG, Width: 100, Height: 140, Page: 1}},
		}},
		comp:      &fakeCompressor{},
		store:     newFakeStore(),
		extractor: &fakeExtractor{data: goodInvoice()},
		detector:  &fakeDetector{res: entity.AnomalyDetectionResult{Details: []entity.AnomalyDetail{}}},
		saver:     &fakeSaver{},
	}
	engine := validation.NewEngine(validation.DefaultConfig()).
		WithClock(func() time.Time { return time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC) })
	h.proc = NewProcessor(Deps{
		Rasterizer: h.raster,
		Compressor: h.comp,
		Store:      h.store,
		Extractor:  h.extractor,
		Validator:  engine,
		Detector:   h.detector,
		Suggester:  category.NewSuggester(testLogger()),
		Invoices:   h.saver,
	}, Options{MaxFileBytes: 1024}, testLogger())
	h.proc.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return h
}

func pdfSource() entity.SourceFile {
	return entity.SourceFile{Name: "bill.pdf", MIMEType: constants.MIMETypePDF, Size: 8, Data: []byte("%PDF-1.7")}
}

func pngSource() entity.SourceFile {
	return entity.SourceFile{Name: "photo.png", MIMEType: constants.MIMETypePNG, Size: 9, Data: []byte("png-bytes")}
}

// trackStatuses records every status a job passes through.
func trackStatuses(job *upload.Job) *[]constants.UploadStatus {
	var mu sync.Mutex
	seen := []constants.UploadStatus{}
	job.OnTransition(func(s upload.Snapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})
	return &seen
}
