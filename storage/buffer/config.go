package buffer

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
)

const (
	// DefaultNBuf is the number of buffers
	DefaultNBuf = 30
	// DefaultNBuckets is the number of hash index buckets. a prime spreads block numbers well
	DefaultNBuckets = 37
	// DefaultBlockSize is bytes per buffer. this must be equal to the disk block size
	DefaultBlockSize = 1024
)

// Config configures the buffer cache
type Config struct {
	// NBuf is the number of buffers. this is the hard upper bound on concurrently referenced blocks
	NBuf int `yaml:"nbuf"`
	// NBuckets is the number of hash index buckets
	NBuckets int `yaml:"nbuckets"`
	// BlockSize is bytes per buffer
	BlockSize int `yaml:"block_size"`
	// CPU is the cpu on whose behalf index node pages are allocated and freed
	CPU common.CPUID `yaml:"cpu"`
}

// DefaultConfig returns the default config
func DefaultConfig() Config {
	return Config{
		NBuf:      DefaultNBuf,
		NBuckets:  DefaultNBuckets,
		BlockSize: DefaultBlockSize,
		CPU:       common.BootCPU,
	}
}

// withDefaults fills zero fields
func (c Config) withDefaults() Config {
	if c.NBuf == 0 {
		c.NBuf = DefaultNBuf
	}
	if c.NBuckets == 0 {
		c.NBuckets = DefaultNBuckets
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	return c
}

// validate checks the config after defaults are applied
func (c Config) validate() error {
	if c.NBuf < 1 {
		return errors.Wrapf(ErrInvalidConfig, "nbuf %d", c.NBuf)
	}
	if c.NBuckets < 1 {
		return errors.Wrapf(ErrInvalidConfig, "nbuckets %d", c.NBuckets)
	}
	if c.BlockSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "block size %d", c.BlockSize)
	}
	if c.CPU < 0 {
		return errors.Wrapf(ErrInvalidConfig, "cpu %d", c.CPU)
	}
	return nil
}
