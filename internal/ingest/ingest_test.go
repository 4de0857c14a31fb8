package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSubmitter struct {
	mu   sync.Mutex
	got  []entity.SourceFile
	user string
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, userID string, src entity.SourceFile) (upload.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return upload.Snapshot{}, f.err
	}
	f.user = userID
	f.got = append(f.got, src)
	return upload.NewJob(userID, src).Snapshot(), nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: shade, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bill.PNG")
	data := pngBytes(t, 10)
	writeFile(t, p, data)

	src, err := LoadFile(p, 0)
	require.NoError(t, err)
	assert.Equal(t, "bill.PNG", src.Name)
	assert.Equal(t, constants.MIMETypePNG, src.MIMEType)
	assert.Equal(t, int64(len(data)), src.Size)
	assert.Len(t, src.SHA256, 64)
	assert.False(t, src.ReceivedAt.IsZero())
}

func TestLoadFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	writeFile(t, txt, []byte("hello"))
	big := filepath.Join(dir, "big.png")
	writeFile(t, big, pngBytes(t, 1))
	empty := filepath.Join(dir, "empty.pdf")
	writeFile(t, empty, nil)
	sub := filepath.Join(dir, "folder.pdf")
	require.NoError(t, os.Mkdir(sub, 0o755))

	_, err := LoadFile(txt, 0)
	assert.Equal(t, common.CodeInvalidFileType, common.CodeOf(err))

	_, err = LoadFile(big, 8)
	assert.Equal(t, common.CodeFileTooLarge, common.CodeOf(err))

	_, err = LoadFile(empty, 0)
	assert.Equal(t, common.CodeInvalidFileType, common.CodeOf(err))

	_, err = LoadFile(sub, 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = LoadFile(filepath.Join(dir, "missing.pdf"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, constants.MIMETypePNG, DetectMIME(pngBytes(t, 3), "image/jpeg"))
	assert.Equal(t, constants.MIMETypePDF, DetectMIME([]byte("%PDF-1.7\n"), ""))
	assert.Equal(t, constants.MIMETypeJPEG, DetectMIME([]byte("not sniffable"), "Image/JPEG; charset=binary"))
	assert.Equal(t, "image/webp", DetectMIME(nil, " image/webp "))
}

func TestFSIngestor_IngestPathDeduplicates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "copy-of-a.png")
	data := pngBytes(t, 7)
	writeFile(t, a, data)
	writeFile(t, b, data)

	sub := &fakeSubmitter{}
	ing := NewFSIngestor(sub, 0, testLogger())

	first, err := ing.IngestPath(context.Background(), "u1", a)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.NotEmpty(t, first.JobID)

	second, err := ing.IngestPath(context.Background(), "u1", b)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, first.HashHex, second.HashHex)
	assert.Equal(t, 1, sub.count())
	assert.Equal(t, "u1", sub.user)
}

func TestFSIngestor_SubmitFailureReleasesHash(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.png")
	writeFile(t, p, pngBytes(t, 9))

	sub := &fakeSubmitter{err: errors.New("queue full")}
	ing := NewFSIngestor(sub, 0, testLogger())

	_, err := ing.IngestPath(context.Background(), "u1", p)
	require.Error(t, err)

	sub.err = nil
	r, err := ing.IngestPath(context.Background(), "u1", p)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
	assert.Equal(t, 1, sub.count())
}

func TestFSIngestor_IngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.png"), pngBytes(t, 1))
	writeFile(t, filepath.Join(root, "nested", "two.png"), pngBytes(t, 2))
	writeFile(t, filepath.Join(root, "nested", "dup.png"), pngBytes(t, 1))
	writeFile(t, filepath.Join(root, "nested", "readme.md"), []byte("# notes"))
	writeFile(t, filepath.Join(root, ".cache", "hidden.png"), pngBytes(t, 3))
	writeFile(t, filepath.Join(root, "broken.pdf"), nil)

	sub := &fakeSubmitter{}
	ing := NewFSIngestor(sub, 0, testLogger())

	results, stats, err := ing.IngestDirectory(context.Background(), "u1", root, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Len(t, results, 4)
	assert.Equal(t, 2, sub.count())

	for _, r := range results {
		assert.NotContains(t, r.SourcePath, ".cache")
	}
}

func TestFSIngestor_IngestDirectoryRequiresRoot(t *testing.T) {
	ing := NewFSIngestor(&fakeSubmitter{}, 0, testLogger())
	_, _, err := ing.IngestDirectory(context.Background(), "u1", "  ", false)
	assert.Error(t, err)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/a/.git"))
	assert.False(t, IsHidden("."))
	assert.False(t, IsHidden("/a/b.pdf"))
	assert.True(t, IsHidden("/a/~$invoice.pdf"))
	assert.True(t, IsHidden("/a/invoice.pdf.crdownload"))
	assert.True(t, AllowedExt(".JPEG"))
	assert.False(t, AllowedExt("txt"))
}
