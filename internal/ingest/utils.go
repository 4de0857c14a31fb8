package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// AllowedExt reports whether ext names an uploadable invoice format. The dot is optional.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports dot entries plus the lock and partial files editors and browsers
// leave next to a document while it is still being written.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == "." || base == "..":
		return false
	case strings.HasPrefix(base, "."), strings.HasPrefix(base, "~$"):
		return true
	case strings.HasSuffix(base, ".crdownload"), strings.HasSuffix(base, ".part"):
		return true
	}
	return false
}
