package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppkernel/common"
)

func TestNewManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "disks")
	m, err := NewManager(Config{Dir: dir})
	require.Nil(t, err)
	defer m.Close()
	assert.Equal(t, DefaultBlockSize, m.BlockSize())
	_, err = os.Stat(dir)
	assert.Nil(t, err)

	_, err = NewManager(Config{BlockSize: -1})
	assert.NotNil(t, err)
}

func TestReadWriteBlock(t *testing.T) {
	managers := []struct {
		name string
		m    *Manager
	}{
		{name: "file", m: TestingNewFileManager(t, 512)},
		{name: "memory", m: TestingNewMemManager(512)},
	}
	for _, tt := range managers {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			buf := make([]byte, 512)

			// never written blocks read as zeros
			buf[0] = 0xff
			require.Nil(t, m.ReadBlock(1, 7, buf))
			assert.Equal(t, make([]byte, 512), buf)

			data := bytes.Repeat([]byte{0xab}, 512)
			require.Nil(t, m.WriteBlock(1, 3, data))
			require.Nil(t, m.ReadBlock(1, 3, buf))
			assert.Equal(t, data, buf)

			// other blocks and devices are untouched
			require.Nil(t, m.ReadBlock(1, 2, buf))
			assert.Equal(t, make([]byte, 512), buf)
			require.Nil(t, m.ReadBlock(2, 3, buf))
			assert.Equal(t, make([]byte, 512), buf)

			n, err := m.NumBlocks(1)
			require.Nil(t, err)
			assert.Equal(t, uint32(4), n)

			st := m.Stats()
			assert.Equal(t, uint64(1), st.Writes)
			assert.Equal(t, uint64(4), st.Reads)
		})
	}
}

func TestFileManagerPersists(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir, BlockSize: 256})
	require.Nil(t, err)
	data := bytes.Repeat([]byte("x"), 256)
	require.Nil(t, m.WriteBlock(common.Device(4), 1, data))
	require.Nil(t, m.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "dev4.img"))
	require.Nil(t, err)
	assert.Equal(t, data, raw[256:512])

	m, err = NewManager(Config{Dir: dir, BlockSize: 256})
	require.Nil(t, err)
	defer m.Close()
	buf := make([]byte, 256)
	require.Nil(t, m.ReadBlock(common.Device(4), 1, buf))
	assert.Equal(t, data, buf)
}

func TestBlockErrors(t *testing.T) {
	m := newManager(Config{BlockSize: 64, NBlocks: 8}, memOpener{})
	tests := []struct {
		name    string
		blockno uint32
		size    int
		err     error
	}{
		{name: "last block", blockno: 7, size: 64},
		{name: "beyond device", blockno: 8, size: 64, err: ErrBlockOutOfRange},
		{name: "small buffer", blockno: 0, size: 63, err: ErrBadBufferSize},
		{name: "large buffer", blockno: 0, size: 65, err: ErrBadBufferSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			werr := m.WriteBlock(0, tt.blockno, make([]byte, tt.size))
			rerr := m.ReadBlock(0, tt.blockno, make([]byte, tt.size))
			if tt.err == nil {
				assert.Nil(t, werr)
				assert.Nil(t, rerr)
				return
			}
			assert.True(t, errors.Is(werr, tt.err))
			assert.True(t, errors.Is(rerr, tt.err))
		})
	}
}

func TestClosed(t *testing.T) {
	m := TestingNewMemManager(64)
	require.Nil(t, m.Close())
	err := m.ReadBlock(0, 0, make([]byte, 64))
	assert.True(t, errors.Is(err, ErrClosed))
	// closing twice is allowed
	assert.Nil(t, m.Close())
}

func TestConcurrentBlocks(t *testing.T) {
	m := TestingNewFileManager(t, 128)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(b uint32) {
			defer wg.Done()
			data := bytes.Repeat([]byte{byte(b)}, 128)
			if err := m.WriteBlock(1, b, data); err != nil {
				t.Errorf("WriteBlock failed: %v", err)
			}
		}(uint32(i))
	}
	wg.Wait()

	buf := make([]byte, 128)
	for i := 0; i < 16; i++ {
		require.Nil(t, m.ReadBlock(1, uint32(i), buf))
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 128), buf)
	}
}
