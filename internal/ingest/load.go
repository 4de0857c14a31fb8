package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// LoadFile reads path into a SourceFile. maxBytes <= 0 disables the size limit.
func LoadFile(path string, maxBytes int64) (entity.SourceFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.SourceFile{}, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return entity.SourceFile{}, common.NewAppError(common.CodeInvalidFileType,
			"Only PDF and image files can be uploaded.", fmt.Errorf("extension %q: %w", ext, common.ErrInvalidInput))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return entity.SourceFile{}, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return entity.SourceFile{}, fmt.Errorf("%s is a directory: %w", abs, common.ErrInvalidInput)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return entity.SourceFile{}, common.NewAppError(common.CodeFileTooLarge, "The file is larger than the upload limit.",
			fmt.Errorf("%d bytes exceeds %d: %w", info.Size(), maxBytes, common.ErrInvalidInput))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return entity.SourceFile{}, fmt.Errorf("read: %w", err)
	}
	return NewSource(filepath.Base(abs), data, constants.MIMETypeForExt(ext))
}

// NewSource builds and validates a SourceFile from in-memory bytes. The sniffed content
// type wins over the declared one when it names a supported type.
func NewSource(name string, data []byte, declared string) (entity.SourceFile, error) {
	mime := DetectMIME(data, declared)
	sum := sha256.Sum256(data)
	src := entity.SourceFile{
		Name:       name,
		MIMEType:   mime,
		Size:       int64(len(data)),
		SHA256:     hex.EncodeToString(sum[:]),
		Data:       data,
		ReceivedAt: time.Now().UTC(),
	}
	if err := common.ValidateStruct(src); err != nil {
		return entity.SourceFile{}, common.NewAppError(common.CodeInvalidFileType,
			"Only PDF and image files can be uploaded.", err)
	}
	return src, nil
}

// DetectMIME sniffs data and falls back to declared.
func DetectMIME(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if len(data) == 0 {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if _, ok := constants.AllowedMIMETypes[sniffed]; ok {
		return sniffed
	}
	return declared
}
