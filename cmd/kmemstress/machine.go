package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/HayatoShiba/ppkernel/memory/kalloc"
	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/memory/phys"
	"github.com/HayatoShiba/ppkernel/storage/buffer"
	"github.com/HayatoShiba/ppkernel/storage/disk"
)

// machine describes the simulated machine
//
// example:
//
//	layout:
//	  kernel_end: 0x80022000
//	  phys_top: 0x88000000
//	kalloc:
//	  ncpu: 4
//	  superpages: true
//	  superpage_pages: 512
//	disk:
//	  dir: /tmp/disks
//	bcache:
//	  nbuf: 30
type machine struct {
	Layout page.Layout   `yaml:"layout"`
	Kalloc kalloc.Config `yaml:"kalloc"`
	Disk   disk.Config   `yaml:"disk"`
	Bcache buffer.Config `yaml:"bcache"`
}

// defaultMachine returns the machine used when no file is given
func defaultMachine() machine {
	return machine{
		Layout: page.DefaultLayout(),
		Kalloc: kalloc.DefaultConfig(),
		Disk:   disk.Config{BlockSize: buffer.DefaultBlockSize},
		Bcache: buffer.DefaultConfig(),
	}
}

// loadMachine reads the machine file. fields missing in the file keep their defaults
func loadMachine(path string) (machine, error) {
	m := defaultMachine()
	if path == "" {
		return m, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return m, errors.Wrap(err, "os.ReadFile failed")
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, errors.Wrap(err, "yaml.Unmarshal failed")
	}
	if m.Disk.BlockSize != m.Bcache.BlockSize {
		return m, errors.Errorf("disk block size %d differs from buffer size %d", m.Disk.BlockSize, m.Bcache.BlockSize)
	}
	return m, nil
}

// boot maps physical memory and initializes the page allocator.
// the returned function releases the physical memory
func (m machine) boot() (kalloc.Allocator, func(), error) {
	mem, err := phys.New(m.Layout)
	if err != nil {
		return nil, nil, errors.Wrap(err, "phys.New failed")
	}
	a, err := kalloc.New(m.Kalloc, mem)
	if err != nil {
		mem.Close()
		return nil, nil, errors.Wrap(err, "kalloc.New failed")
	}
	return a, func() { mem.Close() }, nil
}
