//go:build linux

package fsutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.ENOTSUP):
		// Kernel or filesystem without RENAME_NOREPLACE.
		return linkThenRemove(oldpath, newpath)
	default:
		// EEXIST satisfies errors.Is(err, fs.ErrExist).
		return err
	}
}
