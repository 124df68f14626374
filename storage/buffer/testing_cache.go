package buffer

import (
	"testing"

	"github.com/HayatoShiba/ppkernel/memory/kalloc"
	"github.com/HayatoShiba/ppkernel/storage/disk"
)

// testingPoolPages is the size of the page pool behind a testing cache
const testingPoolPages = 16

// TestingNewCache initializes the buffer cache over in-memory devices and a small page pool
func TestingNewCache(t testing.TB, cfg Config) (*Cache, *disk.Manager, *kalloc.Pool) {
	t.Helper()
	cfg = cfg.withDefaults()
	dm := disk.TestingNewMemManager(cfg.BlockSize)
	pool := kalloc.TestingNewPool(t, kalloc.Config{NCPU: 1}, kalloc.TestingLayout(testingPoolPages))
	c, err := NewCache(cfg, dm, pool)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	return c, dm, pool
}
