//go:build !unix

package fileutil

import (
	"fmt"
	"os"
)

// CreateNoFollow creates or truncates path for writing. Without O_NOFOLLOW
// the symlink check is a Lstat before the open and is racy.
func CreateNoFollow(path string, perm os.FileMode) (*os.File, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to write through symlink %s", path)
	}
	return SecureOpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}
