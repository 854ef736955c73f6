package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath makes a configured path absolute. Empty stays empty, a leading
// "~/" expands to the home directory, and other relative paths are joined
// onto baseDir.
func ResolvePath(path, baseDir string) string {
	switch {
	case path == "":
		return ""
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	case filepath.IsAbs(path):
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
