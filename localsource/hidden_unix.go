//go:build !windows

package localsource

import (
	"path"
	"strings"
)

// isHiddenPath reports whether name, relative to root, or any directory above it is a dot file.
func isHiddenPath(root, name string) (bool, error) {
	if name == "." || name == "" {
		return false, nil
	}
	if strings.HasPrefix(path.Base(name), ".") {
		return true, nil
	}
	return isHiddenPath(root, path.Dir(name))
}
