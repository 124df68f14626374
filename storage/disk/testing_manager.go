package disk

import "testing"

// TestingNewFileManager initializes disk manager with file storage under t.TempDir().
// the files are removed after the test is completed
func TestingNewFileManager(t testing.TB, blockSize int) *Manager {
	t.Helper()
	m, err := NewManager(Config{Dir: t.TempDir(), BlockSize: blockSize})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// TestingNewMemManager initializes disk manager with byte slice storage instead of file storage.
// This prevents unnecessary disk I/O.
func TestingNewMemManager(blockSize int) *Manager {
	return newManager(Config{BlockSize: blockSize}, memOpener{})
}
