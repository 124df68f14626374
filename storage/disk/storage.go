/*
This file defines storage interface and its implementations.
We don't want to execute disk I/O in most tests, so a byte slice can stand in for the device image.
Possible operations with storage are positional read/write, size, sync and close.
The implementations are:
- fileStorage: device image file. positional I/O is pread(2)/pwrite(2) so that blocks of
  one device can be transferred concurrently without sharing a file offset.
- memStorage: growable byte slice. this is intended to be used in test.

A block which was never written reads as zeros on both implementations, like a fresh disk.
*/
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// storage is the image of one device
type storage interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	Close() error
}

// fileStorage is file storage
type fileStorage struct {
	*os.File
}

// Size returns the storage's size
func (fs fileStorage) Size() (int64, error) {
	stat, err := fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "Stat failed")
	}
	return stat.Size(), nil
}

// ReadAt reads len(p) bytes at off. the part beyond the end of file is zero filled
func (fs fileStorage) ReadAt(p []byte, off int64) (int, error) {
	n, err := pread(fs.File, p, off)
	if err != nil {
		return n, errors.Wrap(err, "pread failed")
	}
	clear(p[n:])
	return len(p), nil
}

// WriteAt writes p at off
func (fs fileStorage) WriteAt(p []byte, off int64) (int, error) {
	n, err := pwrite(fs.File, p, off)
	if err != nil {
		return n, errors.Wrap(err, "pwrite failed")
	}
	if n != len(p) {
		return n, errors.Wrapf(ErrShortIO, "written %d, len %d", n, len(p))
	}
	return n, nil
}

// Sync flushes the file data
func (fs fileStorage) Sync() error {
	return datasync(fs.File)
}

// memStorage is buffer storage
type memStorage struct {
	// mu protects buf. concurrent block transfers on one device are allowed
	mu  sync.RWMutex
	buf []byte
}

// newMemStorage initializes memStorage
func newMemStorage() *memStorage {
	return &memStorage{}
}

// Size returns the buffer size
func (ms *memStorage) Size() (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.buf)), nil
}

// ReadAt copies the buffer at off into p
func (ms *memStorage) ReadAt(p []byte, off int64) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	n := 0
	if off < int64(len(ms.buf)) {
		n = copy(p, ms.buf[off:])
	}
	clear(p[n:])
	return len(p), nil
}

// WriteAt writes p into the buffer at off, extending the buffer when needed
func (ms *memStorage) WriteAt(p []byte, off int64) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(ms.buf)) {
		ms.buf = append(ms.buf, make([]byte, end-int64(len(ms.buf)))...)
	}
	return copy(ms.buf[off:], p), nil
}

// Sync doesn't do anything
func (ms *memStorage) Sync() error {
	// on-memory byte slice doesn't need sync
	return nil
}

// Close doesn't do anything
func (ms *memStorage) Close() error {
	return nil
}
