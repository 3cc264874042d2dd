package blob

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

type doc struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func newTestStore(t *testing.T, root string) *FileStore {
	t.Helper()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	return s
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "documents"))

	for _, name := range []string{"plain.json", "runs/1/input.json.gz"} {
		t.Run(name, func(t *testing.T) {
			want := doc{Name: name, Values: []float64{0, 300, 600}}
			path, err := s.Write(ctx, name, want)
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(path), "Write() path %q is not absolute", path)

			var got doc
			require.NoError(t, s.Read(ctx, name, &got))
			assert.Equal(t, want, got)

			// The absolute path returned by Write reads back too.
			assert.NoError(t, s.Read(ctx, path, &got))
		})
	}
}

func TestFileStore_GzipOnDisk(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	path, err := s.Write(context.Background(), "doc.json.gz", doc{Name: "x"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2], "document is not gzip-compressed")
}

func TestFileStore_WriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newTestStore(t, root)

	for i := 0; i < 2; i++ {
		_, err := s.Write(ctx, "doc.json", doc{Name: "v"})
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"doc.json"}, names)
}

func TestFileStore_UnencodableLeavesOldDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	_, err := s.Write(ctx, "doc.json", doc{Name: "old"})
	require.NoError(t, err)
	_, err = s.Write(ctx, "doc.json", map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	var got doc
	require.NoError(t, s.Read(ctx, "doc.json", &got))
	assert.Equal(t, "old", got.Name)
}

func TestFileStore_Errors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newTestStore(t, root)

	var v doc
	err := s.Read(ctx, "missing.json", &v)
	assert.ErrorIs(t, err, simerr.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.json.gz"), []byte("not gzip"), 0644))
	assert.ErrorIs(t, s.Read(ctx, "bad.json.gz", &v), simerr.ErrIO)

	_, err = s.Write(ctx, "../escape.json", v)
	assert.ErrorIs(t, err, simerr.ErrIO)
	_, err = s.Write(ctx, "", v)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Write(cancelled, "doc.json", v)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore_SizeLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	s.maxSize = 16

	_, err := s.Write(ctx, "big.json", doc{Name: strings.Repeat("x", 64)})
	require.NoError(t, err)
	var v doc
	assert.ErrorIs(t, s.Read(ctx, "big.json", &v), simerr.ErrIO)
}

func TestResolve_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := resolve(root, "link/doc.json")
	assert.Error(t, err, "resolve() followed a symlink out of the root")
	_, err = resolve(root, "runs/2/input.json")
	assert.NoError(t, err, "a not-yet-existing path resolves")
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"doc.json", "doc.json"},
		{"/home/user/.metrosim/documents/input.json", ".../documents/input.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactPath(tt.in), "RedactPath(%q)", tt.in)
	}
}

func TestRunNames(t *testing.T) {
	assert.Equal(t, filepath.Join("runs", "3", "input.json"), RunInputName(3, false))
	assert.Equal(t, filepath.Join("runs", "3", "output.json.gz"), RunOutputName(3, true))
}
