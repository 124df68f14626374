package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepLockBlocksSecondAcquirer(t *testing.T) {
	l := NewSleepLock("buf")
	l.Acquire()
	assert.True(t, l.Holding())

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire was not woken up")
	}
	assert.True(t, l.Holding())
	l.Release()
	assert.False(t, l.Holding())
}

func TestSleepLockReleaseNotHeld(t *testing.T) {
	l := NewSleepLock("buf")
	require.Panics(t, func() { l.Release() })
}
