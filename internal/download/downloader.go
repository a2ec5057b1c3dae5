package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

// FileDownloader streams one file at a time to disk, reporting its activity
// through a SingleDownload callback group. Cancel is safe from any
// goroutine; it only sets a flag checked between chunks.
type FileDownloader struct {
	pool      *netpool.Manager
	events    callbacks.SingleDownload
	cancelled atomic.Bool
}

// NewFileDownloader creates a downloader using pooled clients from pool.
// events may be nil.
func NewFileDownloader(pool *netpool.Manager, events callbacks.SingleDownload) *FileDownloader {
	if events == nil {
		events = callbacks.NopSingleDownload{}
	}
	return &FileDownloader{pool: pool, events: events}
}

// Cancel requests a cooperative abort. The in-flight chunk read still
// completes; the loop exits before the next one.
func (d *FileDownloader) Cancel() {
	d.cancelled.Store(true)
}

// Download fetches file.URL to file.Path, creating parent directories as
// needed. It returns the byte count written, or a typed *Error after
// reporting it through the error event.
func (d *FileDownloader) Download(ctx context.Context, file File) (int64, error) {
	log := logging.L("downloader").With(logging.KeyURL, file.URL)

	d.events.Start()

	n, err := d.run(ctx, file)
	if err != nil {
		derr := classify(err, file.URL)
		log.Warn("download failed", "kind", derr.Kind.String(), logging.KeyError, derr.Err)
		d.events.Error(derr)
		return n, derr
	}

	d.events.Progress(100)
	d.events.Speed(0)
	d.events.Finished()
	log.Debug("download complete", "bytes", n)
	return n, nil
}

func (d *FileDownloader) run(ctx context.Context, file File) (int64, error) {
	client, err := d.pool.ClientFor(file.URL)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, statusError(resp.StatusCode, file.URL)
	}

	total := file.Size
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	if dir := filepath.Dir(file.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}

	out, err := os.Create(file.Path)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	hasher := sha1.New()
	verify := file.SHA1 != ""

	buf := make([]byte, chunkSizeFor(total))
	var downloaded int64
	lastSample := time.Now()
	var bytesSinceSample int64

	for {
		if d.cancelled.Load() {
			return downloaded, newError(KindCancelled, file.URL, fmt.Errorf("cancelled after %d bytes", downloaded))
		}
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return downloaded, err
			}
			if verify {
				hasher.Write(buf[:n])
			}
			downloaded += int64(n)
			bytesSinceSample += int64(n)

			d.events.BytesDownloaded(downloaded, total)
			if total > 0 {
				d.events.Progress(int(downloaded * 100 / total))
			}

			if elapsed := time.Since(lastSample); elapsed >= time.Second {
				d.events.Speed(float64(bytesSinceSample) / elapsed.Seconds())
				lastSample = time.Now()
				bytesSinceSample = 0
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return downloaded, readErr
		}
	}

	if verify {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, file.SHA1) {
			return downloaded, newError(KindGeneral, file.URL,
				fmt.Errorf("sha1 mismatch: got %s, want %s", got, strings.ToLower(file.SHA1)))
		}
	}

	return downloaded, nil
}
