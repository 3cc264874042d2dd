package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for error
// messages. "/home/user/.metrosim/documents/input.json" becomes
// ".../documents/input.json".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// resolve maps a document name to an absolute path inside root. Relative
// names are taken relative to root; absolute names must already lie inside
// it. Symlinked parents are resolved before the containment check.
func resolve(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("document name is empty")
	}
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("document name contains null byte")
	}

	rootAbs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("cannot resolve document root: %w", err)
	}
	rootResolved, err := resolveExistingParent(rootAbs)
	if err != nil {
		return "", err
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootAbs, path)
	}
	path = filepath.Clean(path)

	// The file itself may not exist yet; resolve its directory.
	dir, err := resolveExistingParent(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(path))

	if !isSubpath(resolved, rootResolved) || resolved == rootResolved {
		return "", fmt.Errorf("document %q is outside %s", RedactPath(path), RedactPath(rootAbs))
	}
	return resolved, nil
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path is base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
