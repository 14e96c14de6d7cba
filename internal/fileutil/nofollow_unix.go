//go:build unix

package fileutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// CreateNoFollow creates or truncates path for writing without following a
// symlink in the final path component.
func CreateNoFollow(path string, perm os.FileMode) (*os.File, error) {
	return SecureOpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|unix.O_NOFOLLOW, perm)
}
