package install

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orion-launcher/core/pkg/callbacks"
)

// funcTask is a scriptable task for scheduler and composite tests.
type funcTask struct {
	BaseTask
	validate func(ctx context.Context) error
	execute  func(ctx context.Context, conv Converter) error
	duration time.Duration
}

func newFuncTask(id string, priority Priority, deps []string, execute func(ctx context.Context, conv Converter) error) *funcTask {
	return &funcTask{
		BaseTask: NewBaseTask(id, id, "", priority, deps),
		execute:  execute,
		duration: time.Second,
	}
}

func (t *funcTask) Validate(ctx context.Context) error {
	if t.validate != nil {
		return t.validate(ctx)
	}
	return nil
}

func (t *funcTask) Execute(ctx context.Context, conv Converter) error {
	if t.execute != nil {
		return t.execute(ctx, conv)
	}
	return nil
}

func (t *funcTask) EstimatedDuration() time.Duration { return t.duration }

func TestCanExecuteRequiresAllDependencies(t *testing.T) {
	task := newFuncTask("child", PriorityNormal, []string{"a", "b"}, nil)

	completed := map[string]struct{}{"a": {}}
	if task.CanExecute(completed) {
		t.Fatal("task executable with missing dependency")
	}
	completed["b"] = struct{}{}
	if !task.CanExecute(completed) {
		t.Fatal("task not executable with all dependencies done")
	}
}

func TestCompositeSerialHaltsOnFirstFailure(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(id string, err error) *funcTask {
		return newFuncTask(id, PriorityNormal, nil, func(context.Context, Converter) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return err
		})
	}

	comp := NewCompositeTask("comp", "composite", []Task{
		record("one", nil),
		record("two", errors.New("failed")),
		record("three", nil),
	}, false, nil)

	conv := NewCallbackConverter(callbacks.InstallationGroup{})
	err := comp.Execute(context.Background(), conv)
	if err == nil {
		t.Fatal("composite should fail when a subtask fails")
	}
	if len(order) != 2 {
		t.Fatalf("executed %v, want halt after second subtask", order)
	}

	result := comp.Result().(map[string]any)
	if result["completed_subtasks"] != 1 || result["total_subtasks"] != 3 {
		t.Fatalf("result = %v", result)
	}
}

func TestCompositeParallelRunsAllAndReportsFailure(t *testing.T) {
	var ran sync.Map
	mk := func(id string, err error) *funcTask {
		return newFuncTask(id, PriorityNormal, nil, func(context.Context, Converter) error {
			ran.Store(id, true)
			return err
		})
	}

	comp := NewCompositeTask("comp", "composite", []Task{
		mk("one", nil),
		mk("two", errors.New("failed")),
		mk("three", nil),
	}, true, nil)

	conv := NewCallbackConverter(callbacks.InstallationGroup{})
	if err := comp.Execute(context.Background(), conv); err == nil {
		t.Fatal("composite should fail when any subtask fails")
	}
	for _, id := range []string{"one", "two", "three"} {
		if _, ok := ran.Load(id); !ok {
			t.Fatalf("parallel subtask %s never ran", id)
		}
	}
}

func TestCompositeRequiresAllSubtasksToValidate(t *testing.T) {
	executed := false
	bad := newFuncTask("bad", PriorityNormal, nil, func(context.Context, Converter) error {
		executed = true
		return nil
	})
	bad.validate = func(context.Context) error { return errors.New("instance dir missing") }
	good := newFuncTask("good", PriorityNormal, nil, nil)

	comp := NewCompositeTask("comp", "composite", []Task{bad, good}, false, nil)
	if err := comp.Validate(context.Background()); err == nil {
		t.Fatal("Validate succeeded with an invalid subtask")
	}

	conv := NewCallbackConverter(callbacks.InstallationGroup{})
	err := comp.Execute(context.Background(), conv)
	if err == nil {
		t.Fatal("Execute succeeded with an invalid subtask")
	}
	if executed {
		t.Fatal("subtask failing validation was executed")
	}
	if bad.Status() != StatusFailed {
		t.Fatalf("invalid subtask status = %s, want failed", bad.Status())
	}
	res, ok := comp.Result().(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", comp.Result())
	}
	if res["completed_subtasks"] != 0 || res["total_subtasks"] != 2 {
		t.Fatalf("result = %v, want 0 of 2 completed", res)
	}
}

func TestCompositeDuration(t *testing.T) {
	a := newFuncTask("a", PriorityNormal, nil, nil)
	a.duration = 100 * time.Second
	b := newFuncTask("b", PriorityNormal, nil, nil)
	b.duration = 40 * time.Second

	serial := NewCompositeTask("s", "serial", []Task{a, b}, false, nil)
	if d := serial.EstimatedDuration(); d != 140*time.Second {
		t.Fatalf("serial duration = %v, want 140s", d)
	}
	parallel := NewCompositeTask("p", "parallel", []Task{a, b}, true, nil)
	if d := parallel.EstimatedDuration(); d != 100*time.Second {
		t.Fatalf("parallel duration = %v, want 100s", d)
	}
}

func TestModLoaderDurationsAndTypes(t *testing.T) {
	cases := []struct {
		loader   string
		taskType TaskType
		duration time.Duration
	}{
		{"forge", TypeInstallForge, 240 * time.Second},
		{"neoforge", TypeInstallNeoforge, 240 * time.Second},
		{"fabric", TypeInstallFabric, 120 * time.Second},
		{"quilt", TypeInstallQuilt, 120 * time.Second},
		{"liteloader", TypeInstallLiteloader, 90 * time.Second},
		{"unknown", TypeInstallForge, 180 * time.Second},
	}
	for _, c := range cases {
		task := NewModLoaderInstallTask("t", nil, c.loader, "1.0", "1.20.4", nil)
		if got := task.taskType(); got != c.taskType {
			t.Errorf("%s: task type = %s, want %s", c.loader, got, c.taskType)
		}
		if got := task.EstimatedDuration(); got != c.duration {
			t.Errorf("%s: duration = %v, want %v", c.loader, got, c.duration)
		}
	}
}

func TestAssetVerificationReportsSteps(t *testing.T) {
	rec := newEventRecorder()
	conv := NewCallbackConverter(rec.group())

	task := NewAssetVerificationTask("verify", t.TempDir(), "1.20.4", nil, nil)
	if err := task.Execute(context.Background(), conv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.Progress() != 100 {
		t.Fatalf("progress = %d, want 100", task.Progress())
	}
	if rec.finishes["verify"] != 1 {
		t.Fatalf("verify finished fired %d times, want 1", rec.finishes["verify"])
	}
}
