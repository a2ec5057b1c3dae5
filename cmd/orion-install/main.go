package main

import (
	"fmt"
	"io"
	"os"

	"github.com/orion-launcher/core/internal/config"
	"github.com/orion-launcher/core/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "orion-install",
	Short: "Orion installer",
	Long:  `Orion - game version and mod loader installer with cached, resumable downloads`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Orion Installer v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the per-user orion.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	for _, warn := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Config warning: %v\n", warn)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		out = rw
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
	return cfg
}
