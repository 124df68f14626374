package disk

import (
	"github.com/pkg/errors"
)

// transferFunc transfers at most len(p) bytes at off, like pread(2) and pwrite(2)
type transferFunc func(p []byte, off int64) (int, error)

// readFull calls read until p is filled. a zero length read means end of file,
// so the returned count can be short without an error
func readFull(read transferFunc, p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		m, err := read(p[n:], off+int64(n))
		if err != nil {
			return n, err
		}
		if m == 0 {
			break
		}
		n += m
	}
	return n, nil
}

// writeFull calls write until all of p is written.
// a zero length write makes no progress, so it is reported instead of retried
func writeFull(write transferFunc, p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		m, err := write(p[n:], off+int64(n))
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, errors.Wrapf(ErrShortIO, "written %d, len %d", n, len(p))
		}
		n += m
	}
	return n, nil
}
