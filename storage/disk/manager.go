/*
Disk manager is the block device collaborator of the buffer cache.
It stands in for the disk driver: ReadBlock and WriteBlock are synchronous and block the caller
until the transfer is done. The buffer cache calls them only while it holds the buffer's content lock,
so two transfers of the same block never overlap. Transfers of different blocks may run concurrently.

Every device is backed by one image file (dev<n>.img) under the configured directory,
or by a byte slice when no directory is configured. Block b of a device is the byte range
[b*BlockSize, (b+1)*BlockSize) of its image. The content layout of a block is not interpreted here.
*/
package disk

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
)

// DefaultBlockSize is the size of one disk block in bytes
const DefaultBlockSize = 1024

var (
	// ErrBlockOutOfRange is returned when the block number is beyond the device size
	ErrBlockOutOfRange = errors.New("disk: block out of range")
	// ErrBadBufferSize is returned when the buffer is not exactly one block
	ErrBadBufferSize = errors.New("disk: buffer size differs from block size")
	// ErrShortIO is returned when a transfer is incomplete
	ErrShortIO = errors.New("disk: short transfer")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("disk: manager is closed")
)

// Config configures disk manager
type Config struct {
	// Dir is the directory of device image files. empty means in-memory devices
	Dir string `yaml:"dir"`
	// BlockSize is bytes per block
	BlockSize int `yaml:"block_size"`
	// NBlocks is blocks per device. 0 means unlimited
	NBlocks uint32 `yaml:"nblocks"`
}

// Stats is disk manager counters
type Stats struct {
	Reads  uint64
	Writes uint64
}

// Manager manages disk
type Manager struct {
	cfg Config
	op  opener

	// mu protects st and closed. it is not held during transfers
	mu     sync.Mutex
	st     map[common.Device]storage
	closed bool

	reads  atomic.Uint64
	writes atomic.Uint64
}

// NewManager initializes disk manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.BlockSize < 0 {
		return nil, errors.Errorf("block size must be positive: %d", cfg.BlockSize)
	}
	var op opener = memOpener{}
	if cfg.Dir != "" {
		fo, err := newFileOpener(cfg.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "newFileOpener failed")
		}
		op = fo
	}
	return newManager(cfg, op), nil
}

func newManager(cfg Config, op opener) *Manager {
	return &Manager{
		cfg: cfg,
		op:  op,
		st:  make(map[common.Device]storage),
	}
}

// BlockSize returns bytes per block
func (m *Manager) BlockSize() int {
	return m.cfg.BlockSize
}

// storage returns the storage of dev, opening it on first use
func (m *Manager) storage(dev common.Device) (storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	// when the device is already opened, just return it
	if st, ok := m.st[dev]; ok {
		return st, nil
	}
	st, err := m.op.open(dev)
	if err != nil {
		return nil, errors.Wrapf(err, "open device %d failed", dev)
	}
	m.st[dev] = st
	return st, nil
}

// check validates the block number and the buffer size and returns the byte offset
func (m *Manager) check(blockno uint32, p []byte) (int64, error) {
	if len(p) != m.cfg.BlockSize {
		return 0, errors.Wrapf(ErrBadBufferSize, "len %d, block size %d", len(p), m.cfg.BlockSize)
	}
	if m.cfg.NBlocks != 0 && blockno >= m.cfg.NBlocks {
		return 0, errors.Wrapf(ErrBlockOutOfRange, "block %d of %d", blockno, m.cfg.NBlocks)
	}
	return int64(blockno) * int64(m.cfg.BlockSize), nil
}

// ReadBlock reads the block of dev into p
func (m *Manager) ReadBlock(dev common.Device, blockno uint32, p []byte) error {
	off, err := m.check(blockno, p)
	if err != nil {
		return err
	}
	st, err := m.storage(dev)
	if err != nil {
		return err
	}
	if _, err := st.ReadAt(p, off); err != nil {
		return errors.Wrapf(err, "read block %d of device %d failed", blockno, dev)
	}
	m.reads.Add(1)
	return nil
}

// WriteBlock writes p to the block of dev and waits until the data is durable
func (m *Manager) WriteBlock(dev common.Device, blockno uint32, p []byte) error {
	off, err := m.check(blockno, p)
	if err != nil {
		return err
	}
	st, err := m.storage(dev)
	if err != nil {
		return err
	}
	if _, err := st.WriteAt(p, off); err != nil {
		return errors.Wrapf(err, "write block %d of device %d failed", blockno, dev)
	}
	if err := st.Sync(); err != nil {
		return errors.Wrapf(err, "sync device %d failed", dev)
	}
	m.writes.Add(1)
	return nil
}

// NumBlocks returns how many blocks of dev hold written data
func (m *Manager) NumBlocks(dev common.Device) (uint32, error) {
	st, err := m.storage(dev)
	if err != nil {
		return 0, err
	}
	size, err := st.Size()
	if err != nil {
		return 0, errors.Wrap(err, "Size failed")
	}
	bs := int64(m.cfg.BlockSize)
	return uint32((size + bs - 1) / bs), nil
}

// Stats returns counters
func (m *Manager) Stats() Stats {
	return Stats{
		Reads:  m.reads.Load(),
		Writes: m.writes.Load(),
	}
}

// Close closes every opened device. transfers must not be in flight
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var first error
	for dev, st := range m.st {
		if err := st.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close device %d failed", dev)
		}
	}
	m.st = nil
	return first
}
