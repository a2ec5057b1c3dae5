package install

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/orion-launcher/core/internal/cache"
	"github.com/orion-launcher/core/internal/download"
	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

// GameFilesManager fetches a version's file set into the instance directory,
// skipping files already on disk with matching size and checksum. Skipped
// bytes count toward reported progress, so a mostly-present install starts
// well above zero percent.
type GameFilesManager struct {
	baseDir string
	pool    *netpool.Manager
	cache   *cache.Cache
	opts    download.Options
	log     *slog.Logger
}

// NewGameFilesManager builds a manager rooted at baseDir. cache may be nil
// to disable cache bookkeeping.
func NewGameFilesManager(baseDir string, pool *netpool.Manager, c *cache.Cache, opts download.Options) *GameFilesManager {
	return &GameFilesManager{
		baseDir: baseDir,
		pool:    pool,
		cache:   c,
		opts:    opts,
		log:     logging.L("game-files"),
	}
}

// Download ensures every file is present and valid, fetching only the
// missing or corrupt ones.
func (m *GameFilesManager) Download(ctx context.Context, files []download.File, events callbacks.MultiDownload) error {
	if events == nil {
		events = callbacks.NopMultiDownload{}
	}
	if len(files) == 0 {
		events.Start()
		events.Progress(100)
		events.Finished()
		return nil
	}

	resolved := make([]download.File, len(files))
	for i, f := range files {
		if !filepath.IsAbs(f.Path) {
			f.Path = filepath.Join(m.baseDir, f.Path)
		}
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.Path, err)
		}
		resolved[i] = f
	}

	var pending []download.File
	var totalBytes, skippedBytes int64
	skipped := 0
	for _, f := range resolved {
		totalBytes += f.Size
		if m.isFileValid(f) {
			skipped++
			skippedBytes += f.Size
			continue
		}
		pending = append(pending, f)
	}
	m.log.Info("pre-scan complete",
		"files", len(resolved),
		"skipped", skipped,
		"pendingBytes", totalBytes-skippedBytes)

	events.Start()
	if totalBytes > 0 {
		events.Size(totalBytes)
		events.DownloadedSize(skippedBytes)
		events.Progress(int(skippedBytes * 100 / totalBytes))
	}

	if len(pending) == 0 {
		events.Progress(100)
		events.Finished()
		return nil
	}

	mgr := download.NewBatchManager(m.pool, pending, &offsetEvents{
		inner:   events,
		total:   totalBytes,
		skipped: skippedBytes,
	}, m.opts, 0)
	if err := mgr.Schedule(ctx); err != nil {
		return err
	}

	if m.cache != nil {
		for _, f := range pending {
			m.cache.Add(f.URL, f.Path, f.Size, f.SHA1)
		}
	}
	return nil
}

// isFileValid checks presence, size, and checksum, preferring a cache hit
// over re-hashing.
func (m *GameFilesManager) isFileValid(f download.File) bool {
	if m.cache != nil && m.cache.IsCached(f.URL, f.Path, f.Size, f.SHA1) {
		return true
	}
	info, err := os.Stat(f.Path)
	if err != nil || info.IsDir() {
		return false
	}
	if f.Size > 0 && info.Size() != f.Size {
		return false
	}
	if f.SHA1 == "" {
		return true
	}
	sum, err := hashFile(f.Path)
	if err != nil {
		return false
	}
	return strings.EqualFold(sum, f.SHA1)
}

func hashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha1.New()
	buf := make([]byte, 8<<10)
	if _, err := io.CopyBuffer(h, fh, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// offsetEvents shifts a download run's byte accounting by the bytes the
// pre-scan already found on disk, so aggregate progress covers the whole
// file set. The outer Start was already fired after the pre-scan.
type offsetEvents struct {
	inner   callbacks.MultiDownload
	total   int64
	skipped int64
}

func (o *offsetEvents) Start()                                {}
func (o *offsetEvents) TasksProgress(percents map[string]int) { o.inner.TasksProgress(percents) }
func (o *offsetEvents) Size(int64)                            {}
func (o *offsetEvents) Speed(bytesPerSec float64)             { o.inner.Speed(bytesPerSec) }
func (o *offsetEvents) Finished()                             { o.inner.Finished() }
func (o *offsetEvents) Error(err error)                       { o.inner.Error(err) }

func (o *offsetEvents) DownloadedSize(bytes int64) {
	done := o.skipped + bytes
	o.inner.DownloadedSize(done)
	if o.total > 0 {
		o.inner.Progress(int(done * 100 / o.total))
	}
}

func (o *offsetEvents) Progress(int) {}
