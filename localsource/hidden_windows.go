package localsource

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

const hiddenAttributes = windows.FILE_ATTRIBUTE_HIDDEN | windows.FILE_ATTRIBUTE_SYSTEM

func isHiddenPath(root, name string) (hidden bool, err error) {
	if name == "." || name == "" {
		return false, nil
	}
	p, err := windows.UTF16PtrFromString(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return
	}
	attrs, err := windows.GetFileAttributes(p)
	if err == nil {
		hidden = attrs&hiddenAttributes != 0
	}
	return
}
