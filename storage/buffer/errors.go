package buffer

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig is returned by NewCache
	ErrInvalidConfig = errors.New("bcache: invalid config")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("bcache: closed")
	// ErrBusy is returned by Close while some buffer is still referenced
	ErrBusy = errors.New("bcache: buffer still referenced")
)

// the errors below are never returned. they are wrapped into the panic raised by common.Panic
var (
	// ErrNotLocked means the buffer was written or released without holding its content lock
	ErrNotLocked = errors.New("bcache: buffer content lock not held")
	// ErrNoBuffers means every buffer is referenced, so the caller leaked a reference
	ErrNoBuffers = errors.New("bcache: no buffers")
	// ErrUnderflow means a reference count would go below zero
	ErrUnderflow = errors.New("bcache: reference count underflow")
	// ErrCorrupted means the index and the buffers disagree
	ErrCorrupted = errors.New("bcache: index corrupted")
)
