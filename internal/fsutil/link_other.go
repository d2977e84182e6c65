//go:build !unix

package fsutil

import (
	"errors"
	"io/fs"
)

// IsLinkUnsupported reports whether a hard-link error means links cannot be
// used between the two paths as opposed to an unexpected failure.
func IsLinkUnsupported(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, errors.ErrUnsupported)
}

// IsCrossDevice always reports false on platforms without EXDEV.
func IsCrossDevice(err error) bool {
	return false
}
