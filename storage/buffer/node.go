/*
Index nodes are the chain nodes of the hash index. They are not Go objects:
each node is a 16 byte record stored in a page obtained from the page allocator,
so the buffer cache's own metadata lives in allocator-managed memory.
A page holding nodes is called a slab.

slab layout:
  - bytes [0, 32): bitmap of the 256 record positions of the slab
  - record 0 and 1 overlap the bitmap and are never handed out
  - record 2-255: nodes

node record layout (little endian):
  - 0: device
  - 4: block number
  - 8: buffer slot
  - 12: handle of the next node in the chain. 0 is the end of the chain

A node handle is slab index * 256 + record position.
Handle 0 is the bitmap of slab 0, so it never names a node and serves as nil.

Slabs are protected by the cache lock. The page allocator is never called while the cache lock
is held: the caller allocates a page beforehand and hands it over with addSlab, and emptied slab
pages are returned by freeNode to be freed by the caller after the cache lock is released.
*/
package buffer

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/storage/bitmap"
)

const (
	nodeSize       = 16
	recordsPerSlab = page.PageSize / nodeSize
	// the bitmap takes 32 bytes, which is 2 records
	slabHeaderRecords = (recordsPerSlab/8 + nodeSize - 1) / nodeSize
	nodesPerSlab      = recordsPerSlab - slabHeaderRecords
)

// nodeHandle names a node record
type nodeHandle uint32

// nilNode is the end of a chain
const nilNode nodeHandle = 0

// slab is one page of node records
type slab struct {
	addr page.Address
	data []byte
	used bitmap.Bitmap
	// live is the number of nodes handed out
	live int
}

// nodePool hands out node records from slabs
type nodePool struct {
	// slabs is indexed by the slab part of the handle. freed slabs are nil
	slabs []*slab
	live  int
}

// hasRoom checks whether newNode can succeed without a new slab
func (np *nodePool) hasRoom() bool {
	for _, s := range np.slabs {
		if s != nil && s.live < nodesPerSlab {
			return true
		}
	}
	return false
}

// addSlab turns the page at addr into an empty slab. data is the page content
func (np *nodePool) addSlab(addr page.Address, data []byte) {
	used := bitmap.Bitmap(data[:recordsPerSlab/8])
	used.Reset()
	for r := 0; r < slabHeaderRecords; r++ {
		used.Set(r)
	}
	s := &slab{addr: addr, data: data, used: used}
	for i := range np.slabs {
		if np.slabs[i] == nil {
			np.slabs[i] = s
			return
		}
	}
	np.slabs = append(np.slabs, s)
}

// newNode writes a node into a free record. it returns false when every slab is full
func (np *nodePool) newNode(t tag, slot int, next nodeHandle) (nodeHandle, bool) {
	for i, s := range np.slabs {
		if s == nil || s.live == nodesPerSlab {
			continue
		}
		pos, ok := s.used.FindClear(recordsPerSlab)
		if !ok {
			common.Panic(errors.Wrapf(ErrCorrupted, "slab %d has %d nodes but no free record", i, s.live))
		}
		s.used.Set(pos)
		s.live++
		np.live++
		h := nodeHandle(i*recordsPerSlab + pos)
		rec := np.record(h)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(t.dev))
		binary.LittleEndian.PutUint32(rec[4:8], t.blockno)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(slot))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(next))
		return h, true
	}
	return nilNode, false
}

// freeNode releases the record. when the slab becomes empty it is detached and
// its page address is returned, to be freed once the cache lock is released
func (np *nodePool) freeNode(h nodeHandle) (page.Address, bool) {
	s, pos := np.locate(h)
	s.used.Clear(pos)
	s.live--
	np.live--
	if s.live > 0 {
		return 0, false
	}
	np.slabs[int(h)/recordsPerSlab] = nil
	return s.addr, true
}

// locate returns the slab and the record position of h. a handle of a free record is fatal
func (np *nodePool) locate(h nodeHandle) (*slab, int) {
	i, pos := int(h)/recordsPerSlab, int(h)%recordsPerSlab
	if i >= len(np.slabs) || np.slabs[i] == nil || pos < slabHeaderRecords || !np.slabs[i].used.IsSet(pos) {
		common.Panic(errors.Wrapf(ErrCorrupted, "node handle %d does not name a node", h))
	}
	return np.slabs[i], pos
}

// record returns the bytes of the node
func (np *nodePool) record(h nodeHandle) []byte {
	s, pos := np.slabs[int(h)/recordsPerSlab], int(h)%recordsPerSlab
	return s.data[pos*nodeSize : (pos+1)*nodeSize]
}

func (np *nodePool) tag(h nodeHandle) tag {
	rec := np.record(h)
	return tag{
		dev:     common.Device(binary.LittleEndian.Uint32(rec[0:4])),
		blockno: binary.LittleEndian.Uint32(rec[4:8]),
	}
}

func (np *nodePool) slot(h nodeHandle) int {
	return int(binary.LittleEndian.Uint32(np.record(h)[8:12]))
}

func (np *nodePool) next(h nodeHandle) nodeHandle {
	return nodeHandle(binary.LittleEndian.Uint32(np.record(h)[12:16]))
}

func (np *nodePool) setNext(h, next nodeHandle) {
	binary.LittleEndian.PutUint32(np.record(h)[12:16], uint32(next))
}

// pages returns the page addresses of every slab
func (np *nodePool) pages() []page.Address {
	var addrs []page.Address
	for _, s := range np.slabs {
		if s != nil {
			addrs = append(addrs, s.addr)
		}
	}
	return addrs
}

// reset forgets every slab. the caller frees the pages returned by pages() beforehand
func (np *nodePool) reset() {
	np.slabs = nil
	np.live = 0
}
