// Package cache persists verified-download metadata across launcher
// sessions, so already-checked files are not re-hashed on every install.
package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/orion-launcher/core/internal/logging"
)

const (
	indexFileName = "download_cache.json"

	// DefaultMaxAge drops entries older than a week.
	DefaultMaxAge = 7 * 24 * time.Hour
	// DefaultVerifyInterval forces a fresh SHA1 check after a day.
	DefaultVerifyInterval = 24 * time.Hour

	hashBlockSize = 8 * 1024
)

// Entry records one verified download.
type Entry struct {
	FilePath     string    `json:"file_path"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	SHA1         string    `json:"sha1"`
	DownloadTime time.Time `json:"download_time"`
	LastVerified time.Time `json:"last_verified"`
}

// Stats summarizes the index contents.
type Stats struct {
	TotalFiles int
	TotalBytes int64
	FileTypes  map[string]int // extension -> count
	Dir        string
}

// Cache is a JSON-file-backed index of verified downloads. Construct one
// per process and inject it; safe for concurrent use.
type Cache struct {
	dir            string
	indexPath      string
	maxAge         time.Duration
	verifyInterval time.Duration
	now            func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry

	log *slog.Logger
}

// Open loads (or creates) the cache index under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		dir:            dir,
		indexPath:      filepath.Join(dir, indexFileName),
		maxAge:         DefaultMaxAge,
		verifyInterval: DefaultVerifyInterval,
		now:            time.Now,
		entries:        make(map[string]*Entry),
		log:            logging.L("cache"),
	}

	if err := c.load(); err != nil {
		// A corrupt index is not fatal, start fresh.
		c.log.Warn("cache index unreadable, starting empty", logging.KeyError, err)
		c.entries = make(map[string]*Entry)
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	raw := make(map[string]*Entry)
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse cache index: %w", err)
	}
	c.entries = raw
	c.log.Info("cache index loaded", "entries", len(raw))
	return nil
}

// save writes the index after evicting stale entries. Caller holds c.mu.
func (c *Cache) save() {
	c.evictLocked()

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		c.log.Error("marshal cache index", logging.KeyError, err)
		return
	}
	if err := os.WriteFile(c.indexPath, data, 0644); err != nil {
		c.log.Error("write cache index", logging.KeyError, err)
	}
}

// evictLocked drops entries past max age or whose file vanished.
func (c *Cache) evictLocked() {
	now := c.now()
	var dropped int
	for key, e := range c.entries {
		if now.Sub(e.DownloadTime) > c.maxAge {
			delete(c.entries, key)
			dropped++
			continue
		}
		if _, err := os.Stat(e.FilePath); err != nil {
			delete(c.entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		c.log.Info("evicted stale cache entries", "count", dropped)
	}
}

func cacheKey(url, filePath string) string {
	sum := md5.Sum([]byte(url + ":" + filePath))
	return hex.EncodeToString(sum[:])
}

// IsCached reports whether the file at filePath, downloaded from url, is
// known-good: the entry exists, the file exists, size matches when given,
// and the SHA1 still holds. Entries past the re-verify window are re-hashed
// on the spot; any mismatch evicts the entry.
func (c *Cache) IsCached(url, filePath string, expectedSize int64, expectedSHA1 string) bool {
	key := cacheKey(url, filePath)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}

	if _, err := os.Stat(filePath); err != nil {
		delete(c.entries, key)
		return false
	}

	if expectedSize > 0 {
		info, err := os.Stat(filePath)
		if err != nil || info.Size() != expectedSize {
			delete(c.entries, key)
			return false
		}
	}

	if expectedSHA1 != "" && c.now().Sub(entry.LastVerified) > c.verifyInterval {
		if verifySHA1(filePath, expectedSHA1) {
			entry.LastVerified = c.now()
			c.save()
			return true
		}
		delete(c.entries, key)
		return false
	}

	if expectedSHA1 != "" && !strings.EqualFold(entry.SHA1, expectedSHA1) {
		delete(c.entries, key)
		return false
	}

	return true
}

// Add records a freshly verified download and persists the index.
func (c *Cache) Add(url, filePath string, size int64, sha1sum string) {
	now := c.now()
	entry := &Entry{
		FilePath:     filePath,
		URL:          url,
		Size:         size,
		SHA1:         sha1sum,
		DownloadTime: now,
		LastVerified: now,
	}

	c.mu.Lock()
	c.entries[cacheKey(url, filePath)] = entry
	c.save()
	c.mu.Unlock()
}

// Stats reports index totals and a per-extension breakdown.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{FileTypes: make(map[string]int), Dir: c.dir}
	for _, e := range c.entries {
		s.TotalFiles++
		s.TotalBytes += e.Size
		ext := strings.ToLower(filepath.Ext(e.FilePath))
		s.FileTypes[ext]++
	}
	return s
}

// Clear drops every entry and removes the index file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	if err := os.Remove(c.indexPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	c.log.Info("cache cleared")
	return nil
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func verifySHA1(filePath, expected string) bool {
	f, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return false
		}
	}

	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), expected)
}
