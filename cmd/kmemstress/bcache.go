package main

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/storage/buffer"
	"github.com/HayatoShiba/ppkernel/storage/disk"
)

var (
	bcacheWorkers int
	bcacheOps     int
	bcacheBlocks  int
	bcacheDevices int
	bcacheSeed    int64
)

func init() {
	cmd := newBcacheCmd()
	cmd.Flags().IntVar(&bcacheWorkers, "workers", 8, "Concurrent contexts. must be less than the number of buffers")
	cmd.Flags().IntVar(&bcacheOps, "ops", 10000, "Read-modify-write operations per context")
	cmd.Flags().IntVar(&bcacheBlocks, "blocks", 100, "Distinct blocks per device")
	cmd.Flags().IntVar(&bcacheDevices, "devices", 2, "Number of devices")
	cmd.Flags().Int64Var(&bcacheSeed, "seed", 1, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newBcacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bcache",
		Short: "Run a concurrent read-modify-write workload on the buffer cache",
		Long: `The bcache command increments a counter stored in random blocks from several
goroutines. Every increment is done under the buffer's content lock and written
through, so the sum of all counters on disk must equal the number of operations.

Example:
  kmemstress bcache --blocks 200 --workers 16
  kmemstress bcache -m machine.yaml -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMachine(machinePath)
			if err != nil {
				return err
			}
			res, err := runBcache(m, bcacheWorkers, bcacheOps, bcacheBlocks, bcacheDevices, bcacheSeed)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

// bcacheResult is the outcome of the bcache workload
type bcacheResult struct {
	Elapsed time.Duration
	Ops     uint64
	OnDisk  uint64
	Stats   buffer.Stats
	Disk    disk.Stats
}

// runBcache runs the workload and checks the counters on disk
func runBcache(m machine, workers, ops, blocks, devices int, seed int64) (bcacheResult, error) {
	a, shutdown, err := m.boot()
	if err != nil {
		return bcacheResult{}, err
	}
	defer shutdown()
	dm, err := disk.NewManager(m.Disk)
	if err != nil {
		return bcacheResult{}, errors.Wrap(err, "disk.NewManager failed")
	}
	defer dm.Close()
	c, err := buffer.NewCache(m.Bcache, dm, a)
	if err != nil {
		return bcacheResult{}, errors.Wrap(err, "buffer.NewCache failed")
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		first error
	)
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed + int64(w)))
			for i := 0; i < ops; i++ {
				dev := common.Device(rnd.Intn(devices))
				b, err := c.GetForRead(dev, uint32(rnd.Intn(blocks)))
				if err == nil {
					n := binary.LittleEndian.Uint64(b.Data())
					binary.LittleEndian.PutUint64(b.Data(), n+1)
					err = c.Write(b)
					c.Release(b)
				}
				if err != nil {
					errMu.Lock()
					if first == nil {
						first = err
					}
					errMu.Unlock()
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if first != nil {
		return bcacheResult{}, first
	}

	res := bcacheResult{
		Elapsed: time.Since(start),
		Ops:     uint64(workers * ops),
		Stats:   c.Stats(),
	}
	p := make([]byte, dm.BlockSize())
	for dev := 0; dev < devices; dev++ {
		for blockno := 0; blockno < blocks; blockno++ {
			if err := dm.ReadBlock(common.Device(dev), uint32(blockno), p); err != nil {
				return res, errors.Wrap(err, "dm.ReadBlock failed")
			}
			res.OnDisk += binary.LittleEndian.Uint64(p)
		}
	}
	res.Disk = dm.Stats()
	if err := c.Close(); err != nil {
		return res, errors.Wrap(err, "c.Close failed")
	}
	if res.OnDisk != res.Ops {
		return res, errors.Errorf("lost updates: %d increments on disk, %d operations", res.OnDisk, res.Ops)
	}
	common.L.Info("bcache workload finished",
		"ops", res.Ops, "hits", res.Stats.Hits, "misses", res.Stats.Misses,
		"evictions", res.Stats.Evictions, "elapsed", res.Elapsed)
	return res, nil
}
