package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// DefaultMaxFileBytes is the default element file size ceiling (50 MiB).
const DefaultMaxFileBytes = 50 << 20

// #region json-file
// JSONFile reads an element document from disk. The size ceiling is checked
// before reading and enforced again while reading.
type JSONFile struct {
	path     string
	maxBytes int64

	mu    sync.Mutex
	label string
}

// NewJSONFile creates a file source. maxBytes <= 0 selects DefaultMaxFileBytes.
func NewJSONFile(path string, maxBytes int64) *JSONFile {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &JSONFile{path: path, maxBytes: maxBytes}
}

// Path returns the file path.
func (f *JSONFile) Path() string {
	return f.path
}

// Elements reads and decodes the file.
func (f *JSONFile) Elements(ctx context.Context) ([]element.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(f.path), ".json") {
		return nil, fmt.Errorf("%w: %s is not a .json file", ErrUnsupportedFile, filepath.Base(f.path))
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open element file: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat element file: %w", err)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, info.Size(), f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(fh, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read element file: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: grew past %d bytes while reading", ErrTooLarge, f.maxBytes)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(f.path), err)
	}

	f.mu.Lock()
	f.label = doc.Label
	f.mu.Unlock()
	return doc.Elements, nil
}

// Label is the document label if the last read had one, else the file name.
func (f *JSONFile) Label() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.label != "" {
		return f.label
	}
	return filepath.Base(f.path)
}

// #endregion json-file
