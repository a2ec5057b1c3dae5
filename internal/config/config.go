package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	InstanceDir string `mapstructure:"instance_dir"`
	CacheDir    string `mapstructure:"cache_dir"`

	MaxConcurrentDownloads int `mapstructure:"max_concurrent_downloads"` // 0 = auto-size
	ConnectTimeoutSeconds  int `mapstructure:"connect_timeout_seconds"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds"`
	DownloadMaxRetries     int `mapstructure:"download_max_retries"`

	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	TaskMaxRetries     int `mapstructure:"task_max_retries"`
	RetryDelaySeconds  int `mapstructure:"retry_delay_seconds"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`

	CacheEnabled     bool `mapstructure:"cache_enabled"`
	CacheExpiryHours int  `mapstructure:"cache_expiry_hours"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		InstanceDir:            filepath.Join(dataDir(), "instances"),
		CacheDir:               filepath.Join(dataDir(), "cache"),
		MaxConcurrentDownloads: 0,
		ConnectTimeoutSeconds:  10,
		DownloadTimeoutSeconds: 30,
		DownloadMaxRetries:     3,
		MaxConcurrentTasks:     3,
		TaskMaxRetries:         3,
		RetryDelaySeconds:      5,
		TaskTimeoutSeconds:     3600,
		CacheEnabled:           true,
		CacheExpiryHours:       168,
		LogLevel:               "info",
		LogFormat:              "text",
		LogMaxSizeMB:           10,
		LogMaxBackups:          3,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("orion")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORION")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("instance_dir", cfg.InstanceDir)
	viper.Set("cache_dir", cfg.CacheDir)
	viper.Set("max_concurrent_downloads", cfg.MaxConcurrentDownloads)
	viper.Set("connect_timeout_seconds", cfg.ConnectTimeoutSeconds)
	viper.Set("download_timeout_seconds", cfg.DownloadTimeoutSeconds)
	viper.Set("download_max_retries", cfg.DownloadMaxRetries)
	viper.Set("max_concurrent_tasks", cfg.MaxConcurrentTasks)
	viper.Set("task_max_retries", cfg.TaskMaxRetries)
	viper.Set("retry_delay_seconds", cfg.RetryDelaySeconds)
	viper.Set("task_timeout_seconds", cfg.TaskTimeoutSeconds)
	viper.Set("cache_enabled", cfg.CacheEnabled)
	viper.Set("cache_expiry_hours", cfg.CacheExpiryHours)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)
	viper.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	viper.Set("log_max_backups", cfg.LogMaxBackups)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "orion.yaml")
		if err := os.MkdirAll(configDir(), 0755); err != nil {
			return err
		}
	}

	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Orion")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Orion")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "orion")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "orion")
	}
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Orion")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Orion")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "orion")
		}
		return filepath.Join(os.Getenv("HOME"), ".local", "share", "orion")
	}
}
