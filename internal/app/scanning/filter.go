package scanning

import (
	"path"
	"strings"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// DefaultMaxObjectSize is the size ceiling applied when no override is
// configured (100 MiB).
const DefaultMaxObjectSize = 100 * 1024 * 1024

// defaultAllowedExtensions is the closed set of text formats the detector
// engine understands. Binary formats are skipped rather than scanned
// byte-wise.
var defaultAllowedExtensions = map[string]struct{}{
	"txt":  {},
	"csv":  {},
	"json": {},
	"log":  {},
}

// ObjectFilter decides object eligibility before any bytes are downloaded.
// Both checks run on head metadata only; an ineligible object costs one
// head request, never a download.
type ObjectFilter struct {
	allowed map[string]struct{}
	maxSize int64
}

// NewObjectFilter creates a filter with the default extension allowlist and
// the given size ceiling. A non-positive maxSize falls back to
// DefaultMaxObjectSize.
func NewObjectFilter(maxSize int64) *ObjectFilter {
	if maxSize <= 0 {
		maxSize = DefaultMaxObjectSize
	}
	return &ObjectFilter{allowed: defaultAllowedExtensions, maxSize: maxSize}
}

// MaxSize returns the configured size ceiling in bytes.
func (f *ObjectFilter) MaxSize() int64 { return f.maxSize }

// Check validates a candidate against the allowlist and the size ceiling.
// The extension check runs first, so an oversized object with a disallowed
// extension reports ErrUnsupportedType.
func (f *ObjectFilter) Check(candidate scanning.ObjectCandidate) error {
	if _, ok := f.allowed[candidate.Extension]; !ok {
		return scanning.ErrUnsupportedType
	}
	if candidate.SizeBytes > f.maxSize {
		return scanning.ErrObjectTooLarge
	}
	return nil
}

// ExtensionOf extracts the lowercase extension of a key without its leading
// dot. Keys with no extension, or ending in a dot, yield "".
func ExtensionOf(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}
