//go:build unix

package fsutil

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// IsLinkUnsupported reports whether a hard-link error means links cannot be
// used between the two paths (cross-device, permission, or filesystem
// support) as opposed to an unexpected failure.
func IsLinkUnsupported(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EMLINK) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, errors.ErrUnsupported)
}

// IsCrossDevice reports whether err is a cross-filesystem link or rename failure.
func IsCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
