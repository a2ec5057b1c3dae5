package install

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orion-launcher/core/pkg/callbacks"
)

func testSchedulerConfig() SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.TaskTimeout = 10 * time.Second
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerRunsTasksToCompletion(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})

	var count atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		task := newFuncTask(id, PriorityNormal, nil, func(context.Context, Converter) error {
			count.Add(1)
			return nil
		})
		if err := s.Add(task); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(s.CompletedTasks()) == 3
	})
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if count.Load() != 3 {
		t.Fatalf("executed %d tasks, want 3", count.Load())
	}
	p := s.Progress()
	if p.ProgressPercent != 100 || p.CompletedTasks != 3 || p.FailedTasks != 0 {
		t.Fatalf("progress = %+v", p)
	}
}

func TestSchedulerRespectsDependencyOrder(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})

	var mu sync.Mutex
	var order []string
	record := func(id string) func(context.Context, Converter) error {
		return func(context.Context, Converter) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	// Added out of order on purpose; dependencies must still gate execution.
	verify := newFuncTask("verify", PriorityLow, []string{"loader"}, record("verify"))
	loader := newFuncTask("loader", PriorityNormal, []string{"game"}, record("loader"))
	game := newFuncTask("game", PriorityHigh, nil, record("game"))
	if err := s.AddAll([]Task{verify, loader, game}); err != nil {
		t.Fatalf("AddAll: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(s.CompletedTasks()) == 3
	})
	_ = s.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"game", "loader", "verify"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestSchedulerCriticalTaskWaitsForLowPriorityDependency(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})

	var mu sync.Mutex
	var order []string
	record := func(id string) func(context.Context, Converter) error {
		return func(context.Context, Converter) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	// The dependency sits in a lower tier than the task waiting on it; the
	// blocked task must not starve it out of the queue.
	modpack := newFuncTask("modpack", PriorityCritical, []string{"assets"}, record("modpack"))
	assets := newFuncTask("assets", PriorityLow, nil, record("assets"))
	if err := s.AddAll([]Task{modpack, assets}); err != nil {
		t.Fatalf("AddAll: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(s.CompletedTasks()) == 2
	})
	_ = s.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"assets", "modpack"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestSchedulerRetriesThenFails(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 2
	rec := newEventRecorder()
	s := NewScheduler(cfg, rec.group())

	var attempts atomic.Int32
	task := newFuncTask("flaky", PriorityNormal, nil, func(context.Context, Converter) error {
		attempts.Add(1)
		return errors.New("always broken")
	})
	if err := s.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusFailed
	})
	_ = s.Stop()

	// Initial attempt plus MaxRetries.
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.dlErrors == 0 {
		t.Fatal("failure never surfaced through the error callback")
	}
}

func TestSchedulerRetriesTransientFailure(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 3
	s := NewScheduler(cfg, callbacks.InstallationGroup{})

	var attempts atomic.Int32
	task := newFuncTask("transient", PriorityNormal, nil, func(context.Context, Converter) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	_ = s.Add(task)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusCompleted
	})
	_ = s.Stop()

	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestSchedulerValidationFailureDoesNotRetry(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 3
	s := NewScheduler(cfg, callbacks.InstallationGroup{})

	var executions atomic.Int32
	task := newFuncTask("invalid", PriorityNormal, nil, func(context.Context, Converter) error {
		executions.Add(1)
		return nil
	})
	task.validate = func(context.Context) error { return errors.New("bad precondition") }
	_ = s.Add(task)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusFailed
	})
	_ = s.Stop()

	if executions.Load() != 0 {
		t.Fatal("task failing validation was executed")
	}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxConcurrentTasks = 2
	s := NewScheduler(cfg, callbacks.InstallationGroup{})

	var inFlight, peak atomic.Int32
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		task := newFuncTask(id, PriorityNormal, nil, func(context.Context, Converter) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
		_ = s.Add(task)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(s.CompletedTasks()) == 6
	})
	_ = s.Stop()

	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestSchedulerPauseHoldsNewLaunches(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxConcurrentTasks = 1
	s := NewScheduler(cfg, callbacks.InstallationGroup{})

	release := make(chan struct{})
	first := newFuncTask("first", PriorityHigh, nil, func(context.Context, Converter) error {
		<-release
		return nil
	})
	var secondRan atomic.Bool
	second := newFuncTask("second", PriorityLow, nil, func(context.Context, Converter) error {
		secondRan.Store(true)
		return nil
	})
	_ = s.AddAll([]Task{first, second})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return first.Status() == StatusRunning
	})
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	close(release)
	waitFor(t, 5*time.Second, func() bool {
		return first.Status() == StatusCompleted
	})

	time.Sleep(50 * time.Millisecond)
	if secondRan.Load() {
		t.Fatal("second task launched while paused")
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return secondRan.Load()
	})
	_ = s.Stop()
}

func TestSchedulerRemoveRejectsRunningTask(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})

	release := make(chan struct{})
	task := newFuncTask("busy", PriorityNormal, nil, func(context.Context, Converter) error {
		<-release
		return nil
	})
	_ = s.Add(task)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusRunning
	})

	if err := s.Remove("busy"); err == nil {
		t.Fatal("Remove should refuse a running task")
	}
	close(release)
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusCompleted
	})
	_ = s.Stop()

	if err := s.Remove("busy"); err != nil {
		t.Fatalf("Remove after completion: %v", err)
	}
}

func TestSchedulerClearRefusedWhileRunning(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})
	_ = s.Add(newFuncTask("a", PriorityNormal, nil, nil))

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Clear(); err == nil {
		t.Fatal("Clear should be refused while running")
	}
	waitFor(t, 5*time.Second, func() bool {
		return len(s.CompletedTasks()) == 1
	})
	_ = s.Stop()

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear after stop: %v", err)
	}
	if len(s.Tasks()) != 0 {
		t.Fatal("tasks remain after Clear")
	}
}

func TestSchedulerReAddReplacesTask(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})
	if err := s.Add(newFuncTask("a", PriorityNormal, nil, nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	replacement := newFuncTask("a", PriorityHigh, nil, nil)
	if err := s.Add(replacement); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	got, ok := s.Get("a")
	if !ok || got != Task(replacement) {
		t.Fatal("re-added task did not replace the original")
	}
	if len(s.Tasks()) != 1 {
		t.Fatalf("task count = %d, want 1", len(s.Tasks()))
	}
}

func TestSchedulerReAddRejectedWhileRunning(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), callbacks.InstallationGroup{})

	release := make(chan struct{})
	task := newFuncTask("a", PriorityNormal, nil, func(context.Context, Converter) error {
		<-release
		return nil
	})
	_ = s.Add(task)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusRunning
	})

	if err := s.Add(newFuncTask("a", PriorityNormal, nil, nil)); err == nil {
		t.Fatal("replacing a running task should fail")
	}
	close(release)
	waitFor(t, 5*time.Second, func() bool {
		return task.Status() == StatusCompleted
	})
	_ = s.Stop()
}

func TestSchedulerDependencyOnFailedTaskFails(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 0
	s := NewScheduler(cfg, callbacks.InstallationGroup{})

	parent := newFuncTask("parent", PriorityHigh, nil, func(context.Context, Converter) error {
		return errors.New("parent broke")
	})
	var childRan atomic.Bool
	child := newFuncTask("child", PriorityNormal, []string{"parent"}, func(context.Context, Converter) error {
		childRan.Store(true)
		return nil
	})
	_ = s.AddAll([]Task{parent, child})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return child.Status() == StatusFailed
	})
	_ = s.Stop()

	if childRan.Load() {
		t.Fatal("child of failed dependency was executed")
	}
}
