package fsutil

import (
	"errors"
	"io/fs"
	"os"
)

// RenameNoReplace moves oldpath to newpath only if newpath does not exist.
//
// When newpath already exists the call fails with an error matching
// fs.ErrExist and oldpath is left in place. On success oldpath no longer
// exists. The operation is atomic on platforms with a native no-replace
// rename and on filesystems that support hard links; see renameNoReplace.
func RenameNoReplace(oldpath, newpath string) error {
	err := renameNoReplace(oldpath, newpath)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	}
	return err
}

// linkThenRemove publishes oldpath by hard-linking it to newpath, which
// fails with EEXIST when newpath exists, then unlinking oldpath.
func linkThenRemove(oldpath, newpath string) error {
	if err := os.Link(oldpath, newpath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		if !IsLinkUnsupported(err) {
			return err
		}
		// No hard links on this filesystem. Fall back to a checked rename;
		// the window between Lstat and Rename is not atomic.
		if _, statErr := os.Lstat(newpath); statErr == nil {
			return fs.ErrExist
		}
		return os.Rename(oldpath, newpath)
	}
	if err := os.Remove(oldpath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
