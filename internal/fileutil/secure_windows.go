//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// lockDown replaces the DACL on path with a single protected entry giving
// the current user full control. Directories pass the entry on to new
// children.
func lockDown(path string, dir bool) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("fileutil: current user for %s: %w", path, err)
	}
	inherit := ""
	if dir {
		inherit = "OICI"
	}
	sd, err := windows.SecurityDescriptorFromString(fmt.Sprintf("D:P(A;%s;GA;;;%s)", inherit, user.User.Sid))
	if err != nil {
		return fmt.Errorf("fileutil: descriptor for %s: %w", path, err)
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("fileutil: descriptor for %s: %w", path, err)
	}
	err = windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil)
	if err != nil {
		return fmt.Errorf("fileutil: set DACL on %s: %w", path, err)
	}
	return nil
}

func ownerOnly(perm os.FileMode) bool { return perm&0o077 == 0 }

// SecureMkdirAll is os.MkdirAll that, for owner-only modes, also restricts
// every directory it created to the current user. ACL failures are logged.
func SecureMkdirAll(path string, perm os.FileMode) error {
	var created []string
	if ownerOnly(perm) {
		for p := filepath.Clean(path); ; {
			if _, err := os.Stat(p); err == nil {
				break
			}
			created = append(created, p)
			parent := filepath.Dir(p)
			if parent == p {
				break
			}
			p = parent
		}
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	for _, dir := range created {
		if err := lockDown(dir, true); err != nil {
			slog.Warn("restrict directory permissions", "path", dir, "error", err)
		}
	}
	return nil
}

// SecureOpenFile is os.OpenFile that, for owner-only modes with O_CREATE,
// restricts the file to the current user after opening it. ACL failures
// are logged.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	if ownerOnly(perm) && flag&os.O_CREATE != 0 {
		if err := lockDown(path, false); err != nil {
			slog.Warn("restrict file permissions", "path", path, "error", err)
		}
	}
	return f, nil
}
