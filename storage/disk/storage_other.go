//go:build !(linux || freebsd)

package disk

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

func pread(f *os.File, p []byte, off int64) (int, error) {
	n, err := f.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func pwrite(f *os.File, p []byte, off int64) (int, error) {
	return f.WriteAt(p, off)
}

func datasync(f *os.File) error {
	return f.Sync()
}
