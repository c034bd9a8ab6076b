// Package file holds small path helpers shared by the commands.
package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext. A leading dot on ext is optional.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if lastDot := strings.LastIndex(name, "."); lastDot > 0 {
		name = name[:lastDot]
	}
	return filepath.Join(dir, name+ext)
}
