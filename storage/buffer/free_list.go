/*
the free-slot bitmap

A slot is set in the bitmap once it is bound to some block, and it stays set:
the cache never unbinds a buffer except to rebind it for another block on eviction.
So the bitmap only serves until the pool fills up for the first time.
*/
package buffer

// freeSlot returns the lowest slot which has never been bound.
// the caller must hold the cache lock
func (c *Cache) freeSlot() (int, bool) {
	return c.used.FindClear(c.cfg.NBuf)
}
