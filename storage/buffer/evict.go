package buffer

// findVictim returns the first slot whose reference count is zero, scanning from slot 0.
// the scan order is fixed so that eviction is deterministic.
// a referenced slot is never selected.
// the caller must hold the cache lock
func (c *Cache) findVictim() (int, bool) {
	for slot, b := range c.bufs {
		if b.refcnt == 0 {
			return slot, true
		}
	}
	return 0, false
}
