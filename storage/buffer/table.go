/*
This is buffer table (hash index from buffer tag to buffer slot).
The table is a fixed number of buckets, and each bucket is a chain of index nodes (see node.go).
The table is protected by the cache lock, and its content always agrees with which slots
are bound to which tags.
*/
package buffer

import (
	"github.com/HayatoShiba/ppkernel/memory/page"
)

// bufferTable is buffer table
type bufferTable struct {
	// buckets holds the head node of each chain
	buckets []nodeHandle
	nodes   *nodePool
}

// newBufferTable initializes buffer table with n empty buckets
func newBufferTable(n int, nodes *nodePool) *bufferTable {
	return &bufferTable{
		buckets: make([]nodeHandle, n),
		nodes:   nodes,
	}
}

// find returns the slot bound to the tag
func (bt *bufferTable) find(t tag) (int, bool) {
	for h := bt.buckets[t.bucket(len(bt.buckets))]; h != nilNode; h = bt.nodes.next(h) {
		if bt.nodes.tag(h) == t {
			return bt.nodes.slot(h), true
		}
	}
	return 0, false
}

// insert links a new node at the head of the tag's chain.
// the caller checks that the tag is absent. it returns false when a new slab is needed
func (bt *bufferTable) insert(t tag, slot int) bool {
	b := t.bucket(len(bt.buckets))
	h, ok := bt.nodes.newNode(t, slot, bt.buckets[b])
	if !ok {
		return false
	}
	bt.buckets[b] = h
	return true
}

// erase unlinks the tag's node. it returns whether the tag was found and
// the address of a slab page which became empty and has to be freed
func (bt *bufferTable) erase(t tag) (found bool, emptied page.Address, hasEmptied bool) {
	b := t.bucket(len(bt.buckets))
	prev := nilNode
	for h := bt.buckets[b]; h != nilNode; prev, h = h, bt.nodes.next(h) {
		if bt.nodes.tag(h) != t {
			continue
		}
		if prev == nilNode {
			bt.buckets[b] = bt.nodes.next(h)
		} else {
			bt.nodes.setNext(prev, bt.nodes.next(h))
		}
		emptied, hasEmptied = bt.nodes.freeNode(h)
		return true, emptied, hasEmptied
	}
	return false, 0, false
}

// len returns the number of nodes
func (bt *bufferTable) len() int {
	return bt.nodes.live
}

// reset empties every bucket
func (bt *bufferTable) reset() {
	clear(bt.buckets)
}
