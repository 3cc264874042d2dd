// Package backup writes and restores snapshots of the curated dataset.
//
// A snapshot holds every record store.Repository.Export returns: networks,
// demand definitions, parameter sets and runs. Generated agents and run
// results are derived data and are not included; restoring a snapshot into
// an empty store yields populations that must be generated again.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
)

const (
	filePrefix = "metrosim-snapshot-"
	fileSuffix = ".snapshot"
)

// Exporter is the store side of Create.
type Exporter interface {
	Export(ctx context.Context) (*models.Dataset, error)
}

// Importer is the store side of Restore.
type Importer interface {
	Import(ctx context.Context, ds *models.Dataset) error
}

// Result describes a snapshot written by Create or applied by Restore.
type Result struct {
	Path   string  `json:"path"`
	Header *Header `json:"header"`
}

// SnapshotPath returns a timestamped snapshot path in dir that does not
// exist yet.
func SnapshotPath(dir string, now time.Time) string {
	base := filePrefix + now.UTC().Format("20060102-150405")
	path := filepath.Join(dir, base+fileSuffix)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, fileSuffix))
	}
}

// Create exports the store into a new snapshot in dir.
func Create(ctx context.Context, src Exporter, dir string, metadata map[string]string) (*Result, error) {
	ds, err := src.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export dataset: %w", err)
	}

	now := time.Now()
	path := SnapshotPath(dir, now)
	header, err := Write(path, ds, now, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return &Result{Path: path, Header: header}, nil
}

// Restore verifies the snapshot at path and imports it into dst. Records
// already present are updated in place.
func Restore(ctx context.Context, dst Importer, path string) (*Result, error) {
	header, ds, err := Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := dst.Import(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return &Result{Path: path, Header: header}, nil
}

func isSnapshotFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
