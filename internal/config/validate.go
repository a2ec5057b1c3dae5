package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would cause panics are clamped to safe defaults.
// Other validation errors are logged as warnings but do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	// 0 means auto-size from the task mix, so only negatives are clamped.
	if c.MaxConcurrentDownloads < 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads %d is negative, clamping to auto", c.MaxConcurrentDownloads))
		c.MaxConcurrentDownloads = 0
	} else if c.MaxConcurrentDownloads > 50 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads %d exceeds maximum 50, clamping", c.MaxConcurrentDownloads))
		c.MaxConcurrentDownloads = 50
	}

	if c.ConnectTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("connect_timeout_seconds %d is below minimum 1, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 1
	} else if c.ConnectTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("connect_timeout_seconds %d exceeds maximum 300, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 300
	}

	if c.DownloadTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("download_timeout_seconds %d is below minimum 1, clamping", c.DownloadTimeoutSeconds))
		c.DownloadTimeoutSeconds = 1
	} else if c.DownloadTimeoutSeconds > 3600 {
		errs = append(errs, fmt.Errorf("download_timeout_seconds %d exceeds maximum 3600, clamping", c.DownloadTimeoutSeconds))
		c.DownloadTimeoutSeconds = 3600
	}

	if c.DownloadMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("download_max_retries %d is negative, clamping", c.DownloadMaxRetries))
		c.DownloadMaxRetries = 0
	} else if c.DownloadMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("download_max_retries %d exceeds maximum 10, clamping", c.DownloadMaxRetries))
		c.DownloadMaxRetries = 10
	}

	if c.MaxConcurrentTasks < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_tasks %d is below minimum 1, clamping", c.MaxConcurrentTasks))
		c.MaxConcurrentTasks = 1
	} else if c.MaxConcurrentTasks > 20 {
		errs = append(errs, fmt.Errorf("max_concurrent_tasks %d exceeds maximum 20, clamping", c.MaxConcurrentTasks))
		c.MaxConcurrentTasks = 20
	}

	if c.TaskMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("task_max_retries %d is negative, clamping", c.TaskMaxRetries))
		c.TaskMaxRetries = 0
	} else if c.TaskMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("task_max_retries %d exceeds maximum 10, clamping", c.TaskMaxRetries))
		c.TaskMaxRetries = 10
	}

	if c.RetryDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("retry_delay_seconds %d is negative, clamping", c.RetryDelaySeconds))
		c.RetryDelaySeconds = 0
	} else if c.RetryDelaySeconds > 300 {
		errs = append(errs, fmt.Errorf("retry_delay_seconds %d exceeds maximum 300, clamping", c.RetryDelaySeconds))
		c.RetryDelaySeconds = 300
	}

	if c.TaskTimeoutSeconds < 60 {
		errs = append(errs, fmt.Errorf("task_timeout_seconds %d is below minimum 60, clamping", c.TaskTimeoutSeconds))
		c.TaskTimeoutSeconds = 60
	} else if c.TaskTimeoutSeconds > 86400 {
		errs = append(errs, fmt.Errorf("task_timeout_seconds %d exceeds maximum 86400, clamping", c.TaskTimeoutSeconds))
		c.TaskTimeoutSeconds = 86400
	}

	if c.CacheExpiryHours < 1 {
		errs = append(errs, fmt.Errorf("cache_expiry_hours %d is below minimum 1, clamping", c.CacheExpiryHours))
		c.CacheExpiryHours = 1
	}

	// Log validation errors as warnings
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
