/*
This file defines opener interface and its implementations.
We don't want to execute disk I/O in most tests, so it's better to use byte slice instead of actual file in test.
For this reason, opener interface is defined. Opener opens the storage of a device. The implementations are:
- fileOpener: open and return the device image file under the directory.
- memOpener: open and return byte slice. this is intended to be used in test.
*/
package disk

import (
	"os"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
)

// opener opens storage
type opener interface {
	open(common.Device) (storage, error)
}

// fileOpener opens device image files
type fileOpener struct {
	dir string
}

// newFileOpener initializes fileOpener
func newFileOpener(dir string) (*fileOpener, error) {
	// check whether the directory already exists
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "os.Stat failed")
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "os.MkdirAll failed")
		}
	}
	return &fileOpener{dir: dir}, nil
}

// open opens and returns the image file of dev, creating it when missing
func (fo *fileOpener) open(dev common.Device) (storage, error) {
	fd, err := os.OpenFile(devicePath(fo.dir, dev), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	return fileStorage{fd}, nil
}

// memOpener opens byte slices
type memOpener struct{}

// open returns a new empty byte slice storage
func (memOpener) open(common.Device) (storage, error) {
	return newMemStorage(), nil
}
