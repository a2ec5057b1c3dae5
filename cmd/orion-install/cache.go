package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/orion-launcher/core/internal/cache"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the download cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cacheStats()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	Run: func(cmd *cobra.Command, args []string) {
		cacheClear()
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() *cache.Cache {
	cfg := loadConfig()
	c, err := cache.Open(cfg.CacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open cache: %v\n", err)
		os.Exit(1)
	}
	return c
}

func cacheStats() {
	c := openCache()
	stats := c.Stats()

	fmt.Printf("Directory:  %s\n", stats.Dir)
	fmt.Printf("Entries:    %d\n", stats.TotalFiles)
	fmt.Printf("Total size: %.2f MiB\n", float64(stats.TotalBytes)/(1<<20))
	if len(stats.FileTypes) == 0 {
		return
	}
	exts := make([]string, 0, len(stats.FileTypes))
	for ext := range stats.FileTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	fmt.Println("By type:")
	for _, ext := range exts {
		fmt.Printf("  %-12s %d\n", ext, stats.FileTypes[ext])
	}
}

func cacheClear() {
	c := openCache()
	n := c.Len()
	if err := c.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d cache entries\n", n)
}
