//go:build linux || darwin || freebsd || netbsd || openbsd

package phys

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mapAnonymous maps size bytes of private anonymous memory.
// pages are materialized lazily by the host, so a large physical range is cheap until touched
func mapAnonymous(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unix.Mmap failed")
	}
	unmap := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		data = nil
		if errors.Is(err, unix.EINVAL) {
			// double unmap
			return nil
		}
		return err
	}
	return data, unmap, nil
}
