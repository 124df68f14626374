package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HayatoShiba/ppkernel/common"
)

var (
	// Global flags
	verbose     bool
	jsonOut     bool
	machinePath string
)

var rootCmd = &cobra.Command{
	Use:   "kmemstress",
	Short: "Stress the page allocator and the buffer cache",
	Long: `kmemstress builds a simulated machine (physical memory range, cpus, disks)
and runs concurrent workloads against the physical page allocator and the
disk block buffer cache, then prints their counters.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		common.InitLogger(common.LoggerOptions{
			Enabled: true,
			Writer:  os.Stderr,
			Level:   level,
			JSON:    jsonOut,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logs (steal, demotion, eviction)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&machinePath, "machine", "m", "", "YAML machine description")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printResult prints v as JSON or with the default format
func printResult(v interface{}) error {
	if jsonOut {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}
	_, err := fmt.Fprintf(os.Stdout, "%+v\n", v)
	return err
}
