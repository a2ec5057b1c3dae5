package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orion-launcher/core/internal/cache"
	"github.com/orion-launcher/core/internal/install"
	"github.com/orion-launcher/core/pkg/callbacks"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var fetchDest string

var fetchCmd = &cobra.Command{
	Use:   "fetch [manifest-file]",
	Short: "Fetch the files listed in a manifest, skipping those already present",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFetch(args[0])
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "", "destination directory (default instance dir)")
}

func runFetch(manifestFile string) {
	cfg := loadConfig()

	data, err := os.ReadFile(manifestFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read manifest: %v\n", err)
		os.Exit(1)
	}
	var manifest install.VersionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse manifest: %v\n", err)
		os.Exit(1)
	}
	if len(manifest.Files) == 0 {
		fmt.Println("Manifest lists no files")
		return
	}

	dest := fetchDest
	if dest == "" {
		dest = cfg.InstanceDir
	}

	pool := newPool(cfg)
	defer pool.CloseAll()

	var fileCache *cache.Cache
	if cfg.CacheEnabled {
		fileCache, err = cache.Open(cfg.CacheDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache unavailable: %v\n", err)
		}
	}

	bar := progressbar.NewOptions64(1,
		progressbar.OptionSetDescription(fmt.Sprintf("Fetching %d files", len(manifest.Files))),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
	events := &callbacks.MultiDownloadFuncs{
		OnSize:           func(n int64) { bar.ChangeMax64(n) },
		OnDownloadedSize: func(n int64) { _ = bar.Set64(n) },
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := install.NewGameFilesManager(dest, pool, fileCache, downloadOptions(cfg))
	if err := mgr.Download(ctx, manifest.Files, events); err != nil {
		fmt.Fprintf(os.Stderr, "\nFetch failed: %v\n", err)
		os.Exit(1)
	}
	_ = bar.Finish()
	fmt.Printf("Fetched %d files into %s\n", len(manifest.Files), dest)
}
