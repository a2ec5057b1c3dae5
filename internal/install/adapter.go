package install

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/orion-launcher/core/internal/download"
	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/netpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

// Adapter is the installer backend a task delegates to.
type Adapter interface {
	// Install makes the named version available, reporting through cb.
	Install(ctx context.Context, versionID string, cb InstallerCallback) error
	IsInstalled(versionID string) bool
	AvailableVersions() ([]string, error)
	ValidateVersion(versionID string) bool
}

// VersionManifest describes the files one version needs on disk.
type VersionManifest struct {
	ID    string          `json:"id"`
	Files []download.File `json:"files"`
}

// LocalAdapter installs versions from JSON manifests on disk, fetching the
// listed files into the instance directory.
type LocalAdapter struct {
	manifestDir string
	instanceDir string
	pool        *netpool.Manager
	opts        download.Options
}

func NewLocalAdapter(manifestDir, instanceDir string, pool *netpool.Manager, opts download.Options) *LocalAdapter {
	return &LocalAdapter{
		manifestDir: manifestDir,
		instanceDir: instanceDir,
		pool:        pool,
		opts:        opts,
	}
}

func (a *LocalAdapter) manifestPath(versionID string) string {
	return filepath.Join(a.manifestDir, versionID+".json")
}

func (a *LocalAdapter) loadManifest(versionID string) (*VersionManifest, error) {
	data, err := os.ReadFile(a.manifestPath(versionID))
	if err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", versionID, err)
	}
	var m VersionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", versionID, err)
	}
	if m.ID == "" {
		m.ID = versionID
	}
	return &m, nil
}

// markerPath is the per-version metadata file whose presence means the
// version is installed.
func (a *LocalAdapter) markerPath(versionID string) string {
	return filepath.Join(a.instanceDir, "versions", versionID, versionID+".json")
}

func (a *LocalAdapter) IsInstalled(versionID string) bool {
	info, err := os.Stat(a.markerPath(versionID))
	return err == nil && !info.IsDir()
}

func (a *LocalAdapter) ValidateVersion(versionID string) bool {
	if versionID == "" || strings.ContainsAny(versionID, `/\`) {
		return false
	}
	info, err := os.Stat(a.manifestPath(versionID))
	return err == nil && !info.IsDir()
}

func (a *LocalAdapter) AvailableVersions() ([]string, error) {
	entries, err := os.ReadDir(a.manifestDir)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(versions)
	return versions, nil
}

func (a *LocalAdapter) Install(ctx context.Context, versionID string, cb InstallerCallback) error {
	log := logging.L("local-adapter")
	manifest, err := a.loadManifest(versionID)
	if err != nil {
		return err
	}

	files := make([]download.File, len(manifest.Files))
	for i, f := range manifest.Files {
		if !filepath.IsAbs(f.Path) {
			f.Path = filepath.Join(a.instanceDir, f.Path)
		}
		files[i] = f
	}

	cb.SetStatus(fmt.Sprintf("Installing %s", versionID))
	cb.SetMax(len(files))

	if len(files) > 0 {
		var completed int
		events := &callbacks.MultiDownloadFuncs{
			OnTasksProgress: func(percents map[string]int) {
				n := 0
				for _, p := range percents {
					if p >= 100 {
						n++
					}
				}
				if n > completed {
					completed = n
					cb.SetProgress(n)
				}
			},
		}
		mgr := download.NewBatchManager(a.pool, files, events, a.opts, 0)
		if err := mgr.Schedule(ctx); err != nil {
			return err
		}
	}

	if err := a.writeMarker(manifest); err != nil {
		return err
	}
	cb.SetProgress(len(files))
	log.Info("version installed", logging.KeyTaskType, "install_game", "version", versionID, "files", len(files))
	return nil
}

func (a *LocalAdapter) writeMarker(m *VersionManifest) error {
	path := a.markerPath(m.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}
	return nil
}
