package store

import (
	"path/filepath"
)

// DirName is the per-project state directory.
const DirName = ".metrosim"

// LocalPath returns the .metrosim directory of a project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}
