package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// GameInstallTask installs a base game version through an adapter.
type GameInstallTask struct {
	BaseTask
	adapter     Adapter
	versionID   string
	instanceDir string
}

func NewGameInstallTask(id string, adapter Adapter, versionID, instanceDir string, dependencies []string) *GameInstallTask {
	return &GameInstallTask{
		BaseTask: NewBaseTask(
			id,
			fmt.Sprintf("Install game %s", versionID),
			fmt.Sprintf("Download and install game version %s", versionID),
			PriorityHigh,
			dependencies,
		),
		adapter:     adapter,
		versionID:   versionID,
		instanceDir: instanceDir,
	}
}

func (t *GameInstallTask) VersionID() string { return t.versionID }

func (t *GameInstallTask) Validate(ctx context.Context) error {
	if !t.adapter.ValidateVersion(t.versionID) {
		return fmt.Errorf("unknown game version %q", t.versionID)
	}
	if t.adapter.IsInstalled(t.versionID) {
		return fmt.Errorf("version %s is already installed", t.versionID)
	}
	if err := os.MkdirAll(t.instanceDir, 0o755); err != nil {
		return fmt.Errorf("create instance dir: %w", err)
	}
	return nil
}

func (t *GameInstallTask) Execute(ctx context.Context, conv Converter) error {
	cb := conv.Callbacks(TypeInstallGame)
	cb.SetStatus(fmt.Sprintf("Installing game %s", t.versionID))
	if err := t.adapter.Install(ctx, t.versionID, cb); err != nil {
		return fmt.Errorf("install %s: %w", t.versionID, err)
	}
	t.setResult(map[string]any{"version": t.versionID})
	return nil
}

// EstimatedDuration is a coarse planning figure: fresh installs dominated by
// the asset download run long, everything else is metadata work.
func (t *GameInstallTask) EstimatedDuration() time.Duration {
	if !t.adapter.IsInstalled(t.versionID) {
		return 300 * time.Second
	}
	return 180 * time.Second
}

// ModLoaderInstallTask installs a mod loader on top of an installed game
// version.
type ModLoaderInstallTask struct {
	BaseTask
	adapter       Adapter
	loader        string
	loaderVersion string
	gameVersion   string
}

// loaderTaskTypes maps a loader name to its callback channel. Unknown
// loaders report on the forge channel.
var loaderTaskTypes = map[string]TaskType{
	"forge":      TypeInstallForge,
	"neoforge":   TypeInstallNeoforge,
	"fabric":     TypeInstallFabric,
	"quilt":      TypeInstallQuilt,
	"liteloader": TypeInstallLiteloader,
}

var loaderDurations = map[string]time.Duration{
	"forge":      240 * time.Second,
	"neoforge":   240 * time.Second,
	"fabric":     120 * time.Second,
	"quilt":      120 * time.Second,
	"liteloader": 90 * time.Second,
}

func NewModLoaderInstallTask(id string, adapter Adapter, loader, loaderVersion, gameVersion string, dependencies []string) *ModLoaderInstallTask {
	return &ModLoaderInstallTask{
		BaseTask: NewBaseTask(
			id,
			fmt.Sprintf("Install %s %s", loader, loaderVersion),
			fmt.Sprintf("Install %s loader %s for game %s", loader, loaderVersion, gameVersion),
			PriorityNormal,
			dependencies,
		),
		adapter:       adapter,
		loader:        loader,
		loaderVersion: loaderVersion,
		gameVersion:   gameVersion,
	}
}

func (t *ModLoaderInstallTask) taskType() TaskType {
	if tt, ok := loaderTaskTypes[t.loader]; ok {
		return tt
	}
	return TypeInstallForge
}

func (t *ModLoaderInstallTask) Validate(ctx context.Context) error {
	if t.loaderVersion == "" {
		return fmt.Errorf("no %s version given", t.loader)
	}
	if !t.adapter.IsInstalled(t.gameVersion) {
		return fmt.Errorf("game version %s is not installed", t.gameVersion)
	}
	return nil
}

func (t *ModLoaderInstallTask) Execute(ctx context.Context, conv Converter) error {
	cb := conv.Callbacks(t.taskType())
	cb.SetStatus(fmt.Sprintf("Installing %s %s", t.loader, t.loaderVersion))
	target := fmt.Sprintf("%s-%s-%s", t.gameVersion, t.loader, t.loaderVersion)
	if err := t.adapter.Install(ctx, target, cb); err != nil {
		return fmt.Errorf("install %s %s: %w", t.loader, t.loaderVersion, err)
	}
	t.setResult(map[string]any{"loader": t.loader, "version": t.loaderVersion})
	return nil
}

func (t *ModLoaderInstallTask) EstimatedDuration() time.Duration {
	if d, ok := loaderDurations[t.loader]; ok {
		return d
	}
	return 180 * time.Second
}

// AssetVerificationTask re-checks installed files after the installs ran.
type AssetVerificationTask struct {
	BaseTask
	instanceDir string
	versionID   string
	verify      func(ctx context.Context) error
}

// NewAssetVerificationTask builds a verification pass. verify may be nil, in
// which case only the progress sweep runs.
func NewAssetVerificationTask(id, instanceDir, versionID string, verify func(ctx context.Context) error, dependencies []string) *AssetVerificationTask {
	return &AssetVerificationTask{
		BaseTask: NewBaseTask(
			id,
			fmt.Sprintf("Verify assets for %s", versionID),
			fmt.Sprintf("Verify integrity of installed files for %s", versionID),
			PriorityLow,
			dependencies,
		),
		instanceDir: instanceDir,
		versionID:   versionID,
		verify:      verify,
	}
}

func (t *AssetVerificationTask) Validate(ctx context.Context) error {
	marker := filepath.Join(t.instanceDir, "versions", t.versionID, t.versionID+".json")
	if _, err := os.Stat(marker); err != nil {
		return fmt.Errorf("version %s has no metadata to verify: %w", t.versionID, err)
	}
	return nil
}

func (t *AssetVerificationTask) Execute(ctx context.Context, conv Converter) error {
	cb := conv.Callbacks(TypeVerify)
	cb.SetStatus(fmt.Sprintf("Verifying %s", t.versionID))
	cb.SetMax(100)

	if t.verify != nil {
		if err := t.verify(ctx); err != nil {
			return fmt.Errorf("verify %s: %w", t.versionID, err)
		}
	}
	for p := 0; p <= 100; p += 10 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cb.SetProgress(p)
		t.SetProgress(p)
	}
	t.setResult(map[string]any{"verified": true})
	return nil
}

func (t *AssetVerificationTask) EstimatedDuration() time.Duration {
	return 60 * time.Second
}

// CompositeTask runs a group of subtasks as one unit. Serial mode halts at
// the first failure; parallel mode runs everything and reports the first
// error. The composite succeeds only when every subtask does.
type CompositeTask struct {
	BaseTask
	subtasks []Task
	parallel bool
}

func NewCompositeTask(id, name string, subtasks []Task, parallel bool, dependencies []string) *CompositeTask {
	return &CompositeTask{
		BaseTask: NewBaseTask(
			id,
			name,
			fmt.Sprintf("Composite of %d subtasks", len(subtasks)),
			PriorityNormal,
			dependencies,
		),
		subtasks: subtasks,
		parallel: parallel,
	}
}

func (t *CompositeTask) Subtasks() []Task { return t.subtasks }

// Validate requires every subtask to validate independently; the first
// invalid subtask fails the composite.
func (t *CompositeTask) Validate(ctx context.Context) error {
	if len(t.subtasks) == 0 {
		return fmt.Errorf("composite task %s has no subtasks", t.ID())
	}
	for _, sub := range t.subtasks {
		if err := sub.Validate(ctx); err != nil {
			return fmt.Errorf("subtask %s: %w", sub.ID(), err)
		}
	}
	return nil
}

func (t *CompositeTask) Execute(ctx context.Context, conv Converter) error {
	var failed error
	completed := 0
	if t.parallel {
		g, gctx := errgroup.WithContext(ctx)
		results := make([]error, len(t.subtasks))
		for i, sub := range t.subtasks {
			g.Go(func() error {
				results[i] = t.runSubtask(gctx, sub, conv)
				return nil
			})
		}
		_ = g.Wait()
		for _, err := range results {
			if err != nil {
				if failed == nil {
					failed = err
				}
			} else {
				completed++
			}
		}
	} else {
		for _, sub := range t.subtasks {
			if err := t.runSubtask(ctx, sub, conv); err != nil {
				failed = err
				break
			}
			completed++
		}
	}

	t.setResult(map[string]any{
		"completed_subtasks": completed,
		"total_subtasks":     len(t.subtasks),
	})
	if failed != nil {
		return fmt.Errorf("composite %s: %w", t.ID(), failed)
	}
	if completed != len(t.subtasks) {
		return fmt.Errorf("composite %s: %d of %d subtasks completed", t.ID(), completed, len(t.subtasks))
	}
	return nil
}

// runSubtask re-validates before executing, so a subtask whose precondition
// broke between composite validation and its turn still counts as a failure
// rather than a silent skip.
func (t *CompositeTask) runSubtask(ctx context.Context, sub Task, conv Converter) error {
	if err := sub.Validate(ctx); err != nil {
		sub.SetStatus(StatusFailed, err.Error())
		return fmt.Errorf("subtask %s validation: %w", sub.ID(), err)
	}
	sub.SetStatus(StatusRunning, "")
	if err := sub.Execute(ctx, conv); err != nil {
		sub.SetStatus(StatusFailed, err.Error())
		return err
	}
	sub.SetStatus(StatusCompleted, "")
	return nil
}

// EstimatedDuration sums subtask estimates, or takes the longest one when
// they run in parallel.
func (t *CompositeTask) EstimatedDuration() time.Duration {
	var total, longest time.Duration
	for _, sub := range t.subtasks {
		d := sub.EstimatedDuration()
		total += d
		if d > longest {
			longest = d
		}
	}
	if t.parallel {
		return longest
	}
	return total
}
