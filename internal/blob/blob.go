// Package blob reads and writes whole simulator documents on disk.
//
// A document whose name ends in ".gz" is gzip-compressed JSON; anything else
// is plain JSON. Writes go to a temporary file in the target directory and
// are renamed into place, so readers never observe a partial document.
package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// MaxDocumentSize bounds how much a document may decompress to (1GB).
const MaxDocumentSize = 1 << 30

// Store reads and writes documents by name.
type Store interface {
	// Write encodes v as JSON and stores it under name, returning the
	// absolute path written.
	Write(ctx context.Context, name string, v any) (string, error)

	// Read decodes the document stored under name into v.
	Read(ctx context.Context, name string, v any) error

	// Path returns the absolute path name refers to.
	Path(name string) (string, error)
}

// FileStore keeps documents under a root directory.
type FileStore struct {
	root    string
	maxSize int64
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, simerr.IO("create", RedactPath(root), err)
	}
	return &FileStore{root: root, maxSize: MaxDocumentSize}, nil
}

// Root returns the document directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path resolves name inside the store without touching the file.
func (s *FileStore) Path(name string) (string, error) {
	path, err := resolve(s.root, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", simerr.ErrIO, err)
	}
	return path, nil
}

func (s *FileStore) Write(ctx context.Context, name string, v any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	payload, err := encode(v, isCompressed(path))
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", RedactPath(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", simerr.IO("create directory for", RedactPath(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return "", simerr.IO("create", RedactPath(path), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", simerr.IO("write", RedactPath(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", simerr.IO("sync", RedactPath(path), err)
	}
	if err := tmp.Close(); err != nil {
		return "", simerr.IO("close", RedactPath(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", simerr.IO("rename", RedactPath(path), err)
	}
	return path, nil
}

func (s *FileStore) Read(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return simerr.IO("open", RedactPath(path), err)
	}
	defer f.Close()

	var r io.Reader = f
	if isCompressed(path) {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return simerr.IO("decompress", RedactPath(path), err)
		}
		defer gzr.Close()
		r = gzr
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return simerr.IO("read", RedactPath(path), err)
	}
	if int64(len(data)) > s.maxSize {
		return simerr.IO("read", RedactPath(path), fmt.Errorf("document exceeds %d bytes", s.maxSize))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", RedactPath(path), err)
	}
	return nil
}

func encode(v any, compress bool) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !compress {
		return payload, nil
	}

	var buf bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func isCompressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// RunInputName is the conventional name of a run's input document.
func RunInputName(runID int64, compress bool) string {
	return runName(runID, "input", compress)
}

// RunOutputName is the conventional name of a run's output document.
func RunOutputName(runID int64, compress bool) string {
	return runName(runID, "output", compress)
}

func runName(runID int64, kind string, compress bool) string {
	name := filepath.Join("runs", fmt.Sprint(runID), kind+".json")
	if compress {
		name += ".gz"
	}
	return name
}
