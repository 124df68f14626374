//go:build linux || freebsd

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// pread reads at off without moving the file offset. a short read means end of file
func pread(f *os.File, p []byte, off int64) (int, error) {
	fd := int(f.Fd())
	return readFull(func(p []byte, off int64) (int, error) {
		for {
			m, err := unix.Pread(fd, p, off)
			if err != unix.EINTR {
				return m, err
			}
		}
	}, p, off)
}

// pwrite writes at off without moving the file offset
func pwrite(f *os.File, p []byte, off int64) (int, error) {
	fd := int(f.Fd())
	return writeFull(func(p []byte, off int64) (int, error) {
		for {
			m, err := unix.Pwrite(fd, p, off)
			if err != unix.EINTR {
				return m, err
			}
		}
	}, p, off)
}

// datasync flushes file data but not metadata which is not needed to read it back
func datasync(f *os.File) error {
	for {
		err := unix.Fdatasync(int(f.Fd()))
		if err != unix.EINTR {
			return err
		}
	}
}
