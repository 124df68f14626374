package buffer

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/HayatoShiba/ppkernel/common"
)

// tag is buffer tag
// buffer tag must be sufficient to locate where the block is on disk
type tag struct {
	dev     common.Device
	blockno uint32
}

// bucket returns the hash index bucket of the tag among n buckets
func (t tag) bucket(n int) int {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.dev))
	binary.LittleEndian.PutUint32(b[4:8], t.blockno)
	return int(xxhash.Sum64(b[:]) % uint64(n))
}
