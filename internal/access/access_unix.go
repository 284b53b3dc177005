//go:build unix

package access

import "golang.org/x/sys/unix"

func canReadWrite(dir string) bool {
	return unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK) == nil
}
