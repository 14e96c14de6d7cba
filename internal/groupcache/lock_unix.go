//go:build unix

package groupcache

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/wesm/pushvault/internal/fileutil"
)

// lockFile takes an exclusive flock on path, blocking until it is granted.
func lockFile(path string) (func(), error) {
	f, err := fileutil.SecureOpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
