package kalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppkernel/memory/page"
)

func collect(q *list) []page.Frame {
	var fs []page.Frame
	for f := q.head; f != page.InvalidFrame; f = q.links.next[f] {
		fs = append(fs, f)
	}
	return fs
}

func TestListPushPop(t *testing.T) {
	q := newList(newLinks(8))
	_, ok := q.pop()
	assert.False(t, ok)

	q.push(1)
	q.push(5)
	q.push(3)
	assert.Equal(t, 3, q.len())
	assert.Equal(t, []page.Frame{3, 5, 1}, collect(&q))

	f, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, page.Frame(3), f)
	assert.Equal(t, 2, q.len())
}

func TestListRemove(t *testing.T) {
	tests := []struct {
		name     string
		remove   page.Frame
		expected []page.Frame
	}{
		{name: "head", remove: 4, expected: []page.Frame{2, 0}},
		{name: "middle", remove: 2, expected: []page.Frame{4, 0}},
		{name: "tail", remove: 0, expected: []page.Frame{4, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newList(newLinks(8))
			q.push(0)
			q.push(2)
			q.push(4)
			q.remove(tt.remove)
			assert.Equal(t, tt.expected, collect(&q))
			assert.Equal(t, 2, q.len())
		})
	}
}

func TestListSharedLinks(t *testing.T) {
	l := newLinks(8)
	a, b := newList(l), newList(l)
	a.push(1)
	a.push(2)
	b.push(3)
	f, _ := a.pop()
	b.push(f)
	assert.Equal(t, []page.Frame{1}, collect(&a))
	assert.Equal(t, []page.Frame{2, 3}, collect(&b))
}

func TestListCorrupted(t *testing.T) {
	q := newList(newLinks(4))
	require.Panics(t, func() { q.push(4) })
	// a head pointing outside the table is detected on pop
	q.head = 9
	require.Panics(t, func() { q.pop() })
}
