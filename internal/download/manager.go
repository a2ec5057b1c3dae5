package download

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

// Options tunes a Manager. Zero values mean auto concurrency and the
// default retry cap.
type Options struct {
	Concurrency int // 0 = size from the task mix
	MaxRetries  int // 0 = default 3, negative = no retries
}

const defaultMaxRetries = 3

// Manager runs a set of file downloads concurrently: semaphore-bounded
// fan-out, per-task retry with capped exponential backoff, byte-weighted
// aggregate progress, and a once-per-second speed monitor. Schedule returns
// only after every task reached a terminal outcome.
type Manager struct {
	pool        *netpool.Manager
	files       []File
	events      callbacks.MultiDownload
	concurrency int
	maxRetries  int

	mu          sync.Mutex
	emitMu      sync.Mutex
	progress    map[string]int
	downloaded  map[string]int64
	totals      map[string]int64
	speeds      map[string]float64
	failed      []string
	firstFailed bool
	completed   int
	active      map[string]*FileDownloader

	cancelled atomic.Bool

	log *slog.Logger
}

// NewManager builds a manager over files. events may be nil.
func NewManager(pool *netpool.Manager, files []File, events callbacks.MultiDownload, opts Options) *Manager {
	if events == nil {
		events = callbacks.NopMultiDownload{}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = AutoConcurrency(files)
	} else if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}

	return &Manager{
		pool:        pool,
		files:       files,
		events:      events,
		concurrency: concurrency,
		maxRetries:  maxRetries,
		progress:    make(map[string]int),
		downloaded:  make(map[string]int64),
		totals:      make(map[string]int64),
		speeds:      make(map[string]float64),
		active:      make(map[string]*FileDownloader),
		log:         logging.L("download-manager"),
	}
}

// Concurrency reports the worker bound in effect.
func (m *Manager) Concurrency() int { return m.concurrency }

// Cancel requests a cooperative stop: no new attempts start and every
// in-flight downloader is asked to abort between chunks.
func (m *Manager) Cancel() {
	m.cancelled.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.active {
		d.Cancel()
	}
}

// Schedule runs every task to a terminal outcome. It emits finished only if
// zero tasks failed permanently; otherwise it emits and returns an aggregate
// error naming the failures. The first permanent failure is additionally
// surfaced through the error event as soon as it happens.
func (m *Manager) Schedule(ctx context.Context) error {
	m.log.Info("starting downloads", "tasks", len(m.files), "concurrency", m.concurrency)
	m.events.Start()

	// Seed known sizes so the aggregate denominator is stable from the
	// start and reported progress never decreases as tasks join.
	m.mu.Lock()
	for i, f := range m.files {
		if f.Size > 0 {
			m.totals[f.DisplayName(i)] = f.Size
		}
	}
	m.mu.Unlock()

	sem := semaphore.NewWeighted(int64(m.concurrency))
	g := new(errgroup.Group)

	monitorDone := make(chan struct{})
	go m.monitorSpeed(ctx, monitorDone)

	for i, f := range m.files {
		id := f.DisplayName(i)
		file := f
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			m.runTask(ctx, id, file)
			return nil
		})
	}

	g.Wait()
	close(monitorDone)

	// A cancelled run leaves tasks unattempted without marking them failed;
	// it must not be reported as a clean finish.
	if m.cancelled.Load() || ctx.Err() != nil {
		err := newError(KindCancelled, "", fmt.Errorf("download run cancelled"))
		m.log.Warn("downloads cancelled", "tasks", len(m.files))
		return err
	}

	m.mu.Lock()
	failed := append([]string(nil), m.failed...)
	m.mu.Unlock()

	if len(failed) > 0 {
		sort.Strings(failed)
		err := newError(KindGeneral, "",
			fmt.Errorf("%d tasks still failed after %d retries: %s",
				len(failed), m.maxRetries, strings.Join(failed, ", ")))
		m.log.Error("downloads finished with failures", "failed", len(failed))
		m.events.Error(err)
		return err
	}

	m.log.Info("all downloads complete", "tasks", len(m.files))
	m.events.Finished()
	return nil
}

func (m *Manager) runTask(ctx context.Context, id string, file File) {
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if m.cancelled.Load() || ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			m.resetTask(id)
		}

		d := NewFileDownloader(m.pool, m.taskEvents(id))
		m.mu.Lock()
		m.active[id] = d
		m.mu.Unlock()

		_, err := d.Download(ctx, file)

		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()

		if err == nil {
			if attempt > 0 {
				m.log.Info("task succeeded after retry", logging.KeyTaskID, id, "attempt", attempt+1)
			}
			return
		}
		if IsCancelled(err) {
			return
		}

		if attempt < m.maxRetries {
			delay := retryBackoff(attempt + 1)
			m.log.Warn("task failed, retrying",
				logging.KeyTaskID, id, "attempt", attempt+1, "delay", delay, logging.KeyError, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		m.markPermanentFailure(id, err)
		return
	}
}

// retryBackoff returns min(2^(n-1), 10) seconds for attempt n.
func retryBackoff(n int) time.Duration {
	d := time.Duration(1<<uint(n-1)) * time.Second
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func (m *Manager) markPermanentFailure(id string, err error) {
	m.mu.Lock()
	m.failed = append(m.failed, id)
	first := !m.firstFailed
	m.firstFailed = true
	m.mu.Unlock()

	m.log.Error("task permanently failed",
		logging.KeyTaskID, id, "retries", m.maxRetries, logging.KeyError, err)

	// Only the first permanent failure is surfaced immediately; the rest
	// land in the aggregate error to avoid callback flooding.
	if first {
		m.events.Error(fmt.Errorf("first download task failed: %s: %w", id, err))
	}
}

// resetTask zeroes a task's progress before a retry. Totals are kept, the
// file size does not change.
func (m *Manager) resetTask(id string) {
	m.mu.Lock()
	m.progress[id] = 0
	m.downloaded[id] = 0
	m.speeds[id] = 0
	snapshot := m.progressSnapshot()
	m.mu.Unlock()

	m.events.TasksProgress(snapshot)
	m.emitAggregates()
}

// taskEvents wires one task's single-file events into the shared state maps
// and the aggregate emissions.
func (m *Manager) taskEvents(id string) callbacks.SingleDownload {
	return &callbacks.SingleDownloadFuncs{
		OnProgress: func(percent int) {
			m.mu.Lock()
			m.progress[id] = percent
			snapshot := m.progressSnapshot()
			m.mu.Unlock()

			m.events.TasksProgress(snapshot)
			m.emitAggregates()
		},
		OnBytesDownloaded: func(downloaded, total int64) {
			m.mu.Lock()
			m.downloaded[id] = downloaded
			m.totals[id] = total
			m.mu.Unlock()

			m.emitAggregates()
		},
		OnSpeed: func(bytesPerSec float64) {
			m.mu.Lock()
			m.speeds[id] = bytesPerSec
			m.mu.Unlock()
		},
		OnFinished: func() {
			m.mu.Lock()
			m.completed++
			m.mu.Unlock()
		},
	}
}

// progressSnapshot copies the per-task percent map. Caller holds m.mu.
func (m *Manager) progressSnapshot() map[string]int {
	out := make(map[string]int, len(m.progress))
	for k, v := range m.progress {
		out[k] = v
	}
	return out
}

// emitAggregates recomputes byte totals and overall percent over tasks with
// a known size, then fires size, downloaded_size, and progress. emitMu keeps
// the emission order matching the computation order, so consumers observe
// non-decreasing progress outside of retry resets.
func (m *Manager) emitAggregates() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	var totalBytes, downloadedBytes int64
	for id, total := range m.totals {
		if total > 0 {
			totalBytes += total
			downloadedBytes += m.downloaded[id]
		}
	}
	m.mu.Unlock()

	if totalBytes > 0 {
		m.events.Size(totalBytes)
		m.events.DownloadedSize(downloadedBytes)
		m.events.Progress(int(downloadedBytes * 100 / totalBytes))
	}
}

// monitorSpeed emits the summed per-task speed once a second until every
// task is done.
func (m *Manager) monitorSpeed(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			var total float64
			for _, s := range m.speeds {
				total += s
			}
			m.mu.Unlock()
			m.events.Speed(total)
		}
	}
}
