package main

import (
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/kalloc"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

var (
	kallocOps  int
	kallocHold int
	kallocSeed int64
)

func init() {
	cmd := newKallocCmd()
	cmd.Flags().IntVar(&kallocOps, "ops", 100000, "Operations per cpu")
	cmd.Flags().IntVar(&kallocHold, "hold", 64, "Maximum pages held by one cpu at a time")
	cmd.Flags().Int64Var(&kallocSeed, "seed", 1, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newKallocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kalloc",
		Short: "Run a concurrent alloc/free workload on the page allocator",
		Long: `The kalloc command starts one goroutine per configured cpu. Each goroutine
allocates and frees pages at random, writes to every page it holds and checks
the content before freeing it.

Example:
  kmemstress kalloc --ops 50000
  kmemstress kalloc -m machine.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMachine(machinePath)
			if err != nil {
				return err
			}
			res, err := runKalloc(m, kallocOps, kallocHold, kallocSeed)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

// kallocResult is the outcome of the kalloc workload
type kallocResult struct {
	Elapsed   time.Duration
	Allocs    uint64
	Frees     uint64
	Exhausted uint64
	Corrupted uint64
	Stats     kalloc.Stats
}

// runKalloc runs the workload and returns the counters after every page was freed
func runKalloc(m machine, ops, hold int, seed int64) (kallocResult, error) {
	a, shutdown, err := m.boot()
	if err != nil {
		return kallocResult{}, err
	}
	defer shutdown()

	ncpu := m.Kalloc.NCPU
	if ncpu == 0 {
		ncpu = kalloc.DefaultNCPU
	}
	var (
		mu  sync.Mutex
		res kallocResult
		wg  sync.WaitGroup
	)
	start := time.Now()
	for c := 0; c < ncpu; c++ {
		wg.Add(1)
		go func(cpu common.CPUID) {
			defer wg.Done()
			var local kallocResult
			rnd := rand.New(rand.NewSource(seed + int64(cpu)))
			var held []page.Address
			for i := 0; i < ops; i++ {
				if len(held) < hold && rnd.Intn(2) == 0 {
					addr, err := a.Alloc(cpu)
					if err != nil {
						local.Exhausted++
						continue
					}
					local.Allocs++
					// stamp the page so that a page handed out twice is detected on free
					b := a.Bytes(addr)
					page.Fill(b, byte(cpu)+0x10)
					held = append(held, addr)
					continue
				}
				if len(held) == 0 {
					continue
				}
				j := rnd.Intn(len(held))
				addr := held[j]
				held[j] = held[len(held)-1]
				held = held[:len(held)-1]
				if !page.IsFilled(a.Bytes(addr), byte(cpu)+0x10) {
					local.Corrupted++
				}
				a.Free(cpu, addr)
				local.Frees++
			}
			for _, addr := range held {
				a.Free(cpu, addr)
				local.Frees++
			}
			mu.Lock()
			res.Allocs += local.Allocs
			res.Frees += local.Frees
			res.Exhausted += local.Exhausted
			res.Corrupted += local.Corrupted
			mu.Unlock()
		}(common.CPUID(c))
	}
	wg.Wait()
	res.Elapsed = time.Since(start)
	res.Stats = a.Stats()
	common.L.Info("kalloc workload finished",
		"allocs", res.Allocs, "frees", res.Frees, "exhausted", res.Exhausted,
		"corrupted", res.Corrupted, "elapsed", res.Elapsed)
	return res, nil
}
