package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/orion-launcher/core/internal/config"
	"github.com/orion-launcher/core/internal/download"
	"github.com/orion-launcher/core/internal/install"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	manifestDir   string
	loaderName    string
	loaderVersion string
	verifyAssets  bool
)

var installCmd = &cobra.Command{
	Use:   "install [version]",
	Short: "Install a game version, optionally with a mod loader",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInstall(args[0])
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List installable versions",
	Run: func(cmd *cobra.Command, args []string) {
		listVersions()
	},
}

func init() {
	installCmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "directory holding version manifests (default <instance-dir>/manifests)")
	installCmd.Flags().StringVar(&loaderName, "loader", "", "mod loader to install (forge, neoforge, fabric, quilt, liteloader)")
	installCmd.Flags().StringVar(&loaderVersion, "loader-version", "", "mod loader version")
	installCmd.Flags().BoolVar(&verifyAssets, "verify", false, "verify installed files afterwards")
	versionsCmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "directory holding version manifests (default <instance-dir>/manifests)")
}

func newAdapter(cfg *config.Config, pool *netpool.Manager) *install.LocalAdapter {
	dir := manifestDir
	if dir == "" {
		dir = filepath.Join(cfg.InstanceDir, "manifests")
	}
	return install.NewLocalAdapter(dir, cfg.InstanceDir, pool, downloadOptions(cfg))
}

func downloadOptions(cfg *config.Config) download.Options {
	opts := download.Options{
		Concurrency: cfg.MaxConcurrentDownloads,
		MaxRetries:  cfg.DownloadMaxRetries,
	}
	if cfg.DownloadMaxRetries == 0 {
		opts.MaxRetries = -1
	}
	return opts
}

func newPool(cfg *config.Config) *netpool.Manager {
	return netpool.NewManager(&netpool.Options{
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
	})
}

func runInstall(versionID string) {
	cfg := loadConfig()
	pool := newPool(cfg)
	defer pool.CloseAll()
	adapter := newAdapter(cfg, pool)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fmt.Sprintf("Installing %s", versionID)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
	group := callbacks.InstallationGroup{
		Download: &callbacks.MultiDownloadFuncs{
			OnProgress: func(p int) { _ = bar.Set(p) },
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			},
		},
		InstallGame: stageEvents("game"),
		Verify:      stageEvents("verification"),
	}
	if loaderName != "" {
		events := stageEvents(loaderName)
		group.InstallForge = events
		group.InstallNeoforge = events
		group.InstallFabric = events
		group.InstallQuilt = events
		group.InstallLiteloader = events
	}

	scheduler := install.NewScheduler(install.SchedulerConfig{
		MaxConcurrentTasks:    cfg.MaxConcurrentTasks,
		MaxRetries:            cfg.TaskMaxRetries,
		RetryDelay:            time.Duration(cfg.RetryDelaySeconds) * time.Second,
		TaskTimeout:           time.Duration(cfg.TaskTimeoutSeconds) * time.Second,
		EnableDependencyCheck: true,
		EnableTaskValidation:  true,
	}, group)

	gameID := "task-" + uuid.NewString()
	tasks := []install.Task{
		install.NewGameInstallTask(gameID, adapter, versionID, cfg.InstanceDir, nil),
	}
	lastID := gameID
	if loaderName != "" {
		loaderID := "task-" + uuid.NewString()
		tasks = append(tasks, install.NewModLoaderInstallTask(
			loaderID, adapter, loaderName, loaderVersion, versionID, []string{gameID}))
		lastID = loaderID
	}
	if verifyAssets {
		tasks = append(tasks, install.NewAssetVerificationTask(
			"task-"+uuid.NewString(), cfg.InstanceDir, versionID, nil, []string{lastID}))
	}
	if err := scheduler.AddAll(tasks); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to queue tasks: %v\n", err)
		os.Exit(1)
	}

	if err := scheduler.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start scheduler: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
			_ = scheduler.Stop()
			os.Exit(1)
		case <-ticker.C:
			p := scheduler.Progress()
			if p.CompletedTasks+p.FailedTasks == p.TotalTasks {
				_ = scheduler.Stop()
				_ = bar.Finish()
				if p.FailedTasks > 0 {
					reportFailures(scheduler)
					os.Exit(1)
				}
				fmt.Printf("Installed %s in %s\n", versionID, time.Since(p.StartTime).Round(time.Second))
				return
			}
		}
	}
}

func stageEvents(name string) callbacks.TaskEvents {
	return &callbacks.TaskEventsFuncs{
		OnStart:    func() { fmt.Printf("Starting %s install\n", name) },
		OnFinished: func() { fmt.Printf("Finished %s install\n", name) },
	}
}

func reportFailures(s *install.Scheduler) {
	for _, task := range s.FailedTasks() {
		fmt.Fprintf(os.Stderr, "Task %s failed: %s\n", task.ID(), task.ErrorMessage())
	}
}

func listVersions() {
	cfg := loadConfig()
	pool := newPool(cfg)
	defer pool.CloseAll()
	adapter := newAdapter(cfg, pool)

	versions, err := adapter.AvailableVersions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list versions: %v\n", err)
		os.Exit(1)
	}
	if len(versions) == 0 {
		fmt.Println("No versions available")
		return
	}
	for _, v := range versions {
		marker := " "
		if adapter.IsInstalled(v) {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, v)
	}
}
