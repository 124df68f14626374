/*
Free lists are built from frame indices instead of pointers written into the free pages.

All lists of one allocator share one links table (next/prev per frame), which works
because a free frame belongs to exactly one list at a time. Membership of a frame is
therefore just "reachable from this list's head", and the links of a frame are only
touched while holding the lock of the list it belongs to.

Lists are doubly linked so that superpage promotion can pull an arbitrary frame out
of the middle of a shard's list in O(1).
*/
package kalloc

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

// links is next/prev table shared by every list of an allocator
type links struct {
	next []page.Frame
	prev []page.Frame
}

// newLinks initializes links for n frames
func newLinks(n int) *links {
	l := &links{
		next: make([]page.Frame, n),
		prev: make([]page.Frame, n),
	}
	for i := 0; i < n; i++ {
		l.next[i] = page.InvalidFrame
		l.prev[i] = page.InvalidFrame
	}
	return l
}

// list is free list of frames
type list struct {
	links *links
	head  page.Frame
	count int
}

// newList initializes empty list
func newList(l *links) list {
	return list{
		links: l,
		head:  page.InvalidFrame,
	}
}

// check aborts when f is outside the links table
func (q *list) check(f page.Frame) {
	if int(f) >= len(q.links.next) {
		common.Panic(errors.Wrapf(ErrCorrupted, "frame %d of %d", f, len(q.links.next)))
	}
}

// push pushes f at the head
func (q *list) push(f page.Frame) {
	q.check(f)
	q.links.prev[f] = page.InvalidFrame
	q.links.next[f] = q.head
	if q.head != page.InvalidFrame {
		q.links.prev[q.head] = f
	}
	q.head = f
	q.count++
}

// pop removes and returns the head
func (q *list) pop() (page.Frame, bool) {
	f := q.head
	if f == page.InvalidFrame {
		return page.InvalidFrame, false
	}
	q.check(f)
	q.remove(f)
	return f, true
}

// remove unlinks f. f must be on this list
func (q *list) remove(f page.Frame) {
	q.check(f)
	next, prev := q.links.next[f], q.links.prev[f]
	if prev == page.InvalidFrame {
		q.head = next
	} else {
		q.links.next[prev] = next
	}
	if next != page.InvalidFrame {
		q.links.prev[next] = prev
	}
	q.links.next[f] = page.InvalidFrame
	q.links.prev[f] = page.InvalidFrame
	q.count--
}

// len returns the number of frames on the list
func (q *list) len() int {
	return q.count
}
