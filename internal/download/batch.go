package download

import (
	"context"
	"sort"

	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

const defaultBatchSize = 10

// BatchManager behaves like Manager but submits tasks grouped by target
// host, in fixed-size batches per host, so consecutive workers hit the same
// connection pool. Only submission order changes; retry, progress, and
// failure semantics are the Manager's.
type BatchManager struct {
	*Manager
	batchSize int
}

// NewBatchManager builds a host-grouping manager. batchSize <= 0 uses the
// default of 10.
func NewBatchManager(pool *netpool.Manager, files []File, events callbacks.MultiDownload, opts Options, batchSize int) *BatchManager {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	m := NewManager(pool, groupByHost(files, batchSize), events, opts)
	m.log = logging.L("batch-download-manager")
	return &BatchManager{Manager: m, batchSize: batchSize}
}

// Schedule runs the reordered task list through the regular manager.
func (b *BatchManager) Schedule(ctx context.Context) error {
	b.log.Debug("host-grouped submission", "batchSize", b.batchSize)
	return b.Manager.Schedule(ctx)
}

// groupByHost reorders files so that same-host entries sit together, chunked
// into batches. Hosts are visited in sorted order for determinism; files
// keep their relative order within a host.
func groupByHost(files []File, batchSize int) []File {
	byHost := make(map[string][]File)
	var hosts []string

	for _, f := range files {
		key, err := netpool.HostKey(f.URL)
		if err != nil {
			key = "invalid"
		}
		if _, seen := byHost[key]; !seen {
			hosts = append(hosts, key)
		}
		byHost[key] = append(byHost[key], f)
	}
	sort.Strings(hosts)

	out := make([]File, 0, len(files))
	for _, host := range hosts {
		group := byHost[host]
		for i := 0; i < len(group); i += batchSize {
			end := min(i+batchSize, len(group))
			out = append(out, group[i:end]...)
		}
	}
	return out
}
