//go:build windows

package groupcache

import (
	"os"

	"golang.org/x/sys/windows"

	"github.com/wesm/pushvault/internal/fileutil"
)

// lockFile takes an exclusive LockFileEx lock on path, blocking until it is
// granted.
func lockFile(path string) (func(), error) {
	f, err := fileutil.SecureOpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = windows.UnlockFileEx(h, 0, 1, 0, ol)
		f.Close()
	}, nil
}
