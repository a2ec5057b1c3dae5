package install

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orion-launcher/core/internal/logging"
	"github.com/orion-launcher/core/internal/workerpool"
	"github.com/orion-launcher/core/pkg/callbacks"
)

// SchedulerStatus is the scheduler's lifecycle state.
type SchedulerStatus string

const (
	SchedulerIdle     SchedulerStatus = "idle"
	SchedulerRunning  SchedulerStatus = "running"
	SchedulerPaused   SchedulerStatus = "paused"
	SchedulerStopping SchedulerStatus = "stopping"
	SchedulerStopped  SchedulerStatus = "stopped"
	SchedulerError    SchedulerStatus = "error"
)

// SchedulerConfig tunes the scheduling loop.
type SchedulerConfig struct {
	MaxConcurrentTasks    int
	MaxRetries            int
	RetryDelay            time.Duration
	TaskTimeout           time.Duration
	EnableDependencyCheck bool
	EnableTaskValidation  bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentTasks:    3,
		MaxRetries:            3,
		RetryDelay:            5 * time.Second,
		TaskTimeout:           time.Hour,
		EnableDependencyCheck: true,
		EnableTaskValidation:  true,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = d.MaxConcurrentTasks
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	return c
}

// TaskExecutionResult records one finished execution attempt.
type TaskExecutionResult struct {
	TaskID        string
	Success       bool
	ErrorMessage  string
	Result        any
	ExecutionTime time.Duration
}

// SchedulerProgress is a point-in-time snapshot of the run.
type SchedulerProgress struct {
	Status          SchedulerStatus
	TotalTasks      int
	PendingTasks    int
	RunningTasks    int
	CompletedTasks  int
	FailedTasks     int
	ProgressPercent int
	StartTime       time.Time
}

// Scheduler runs installation tasks with priority ordering, dependency
// gating, bounded concurrency, and per-task retries.
type Scheduler struct {
	cfg   SchedulerConfig
	group callbacks.InstallationGroup
	conv  Converter
	log   *slog.Logger

	mu         sync.Mutex
	status     SchedulerStatus
	tasks      map[string]Task
	queue      *taskQueue
	running    map[string]struct{}
	completed  map[string]struct{}
	failed     map[string]struct{}
	retries    map[string]int
	results    map[string]TaskExecutionResult
	startTime  time.Time
	pool       *workerpool.Pool
	wake       chan struct{}
	stopCh     chan struct{}
	loopDone   chan struct{}
	retryTimer sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, group callbacks.InstallationGroup) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		group:     group.Normalize(),
		log:       logging.L("scheduler"),
		status:    SchedulerIdle,
		tasks:     make(map[string]Task),
		queue:     newTaskQueue(),
		running:   make(map[string]struct{}),
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		retries:   make(map[string]int),
		results:   make(map[string]TaskExecutionResult),
		wake:      make(chan struct{}, 1),
	}
}

// Add registers a task and queues it. Re-adding an existing ID replaces the
// old task unless it is running.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, exists := s.tasks[task.ID()]; exists {
		if old.Status() == StatusRunning {
			return fmt.Errorf("task %s is running and cannot be replaced", task.ID())
		}
		s.log.Warn("task replaced", logging.KeyTaskID, task.ID())
		delete(s.completed, task.ID())
		delete(s.failed, task.ID())
		delete(s.retries, task.ID())
	}
	s.tasks[task.ID()] = task
	s.queue.Push(task.ID(), task.Priority())
	s.log.Debug("task added", logging.KeyTaskID, task.ID(), "priority", task.Priority().String())
	s.signal()
	return nil
}

// AddAll registers tasks in order, stopping at the first error.
func (s *Scheduler) AddAll(tasks []Task) error {
	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops a task that has not started. Running tasks cannot be removed.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if task.Status() == StatusRunning {
		return fmt.Errorf("task %s is running and cannot be removed", id)
	}
	delete(s.tasks, id)
	delete(s.completed, id)
	delete(s.failed, id)
	delete(s.retries, id)
	return nil
}

// Get returns a task by ID.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns every registered task.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func (s *Scheduler) tasksWithStatus(status Status) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.Status() == status {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) PendingTasks() []Task   { return s.tasksWithStatus(StatusPending) }
func (s *Scheduler) RunningTasks() []Task   { return s.tasksWithStatus(StatusRunning) }
func (s *Scheduler) CompletedTasks() []Task { return s.tasksWithStatus(StatusCompleted) }
func (s *Scheduler) FailedTasks() []Task    { return s.tasksWithStatus(StatusFailed) }

// Results returns the last execution result per task.
func (s *Scheduler) Results() map[string]TaskExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TaskExecutionResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Status returns the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start launches the scheduling loop. Valid from idle or stopped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SchedulerIdle && s.status != SchedulerStopped {
		return fmt.Errorf("scheduler cannot start from state %s", s.status)
	}
	s.status = SchedulerRunning
	s.startTime = time.Now()
	s.conv = NewMultiTaskCallbackConverter(s.group)
	s.pool = workerpool.New(s.cfg.MaxConcurrentTasks, len(s.tasks)+16)
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.log.Info("scheduler started",
		"maxConcurrentTasks", s.cfg.MaxConcurrentTasks,
		"queuedTasks", s.queue.Len())
	go s.loop()
	return nil
}

// Stop halts the loop and drains in-flight tasks, waiting up to 10 seconds.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.status != SchedulerRunning && s.status != SchedulerPaused {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.status = SchedulerStopping
	stopCh := s.stopCh
	loopDone := s.loopDone
	pool := s.pool
	s.mu.Unlock()

	close(stopCh)
	<-loopDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool.Shutdown(ctx)
	s.retryTimer.Wait()

	s.mu.Lock()
	s.status = SchedulerStopped
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return nil
}

// Pause holds back new task launches; running tasks continue.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SchedulerRunning {
		return fmt.Errorf("scheduler is not running")
	}
	s.status = SchedulerPaused
	s.log.Info("scheduler paused")
	return nil
}

// Resume continues a paused scheduler.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if s.status != SchedulerPaused {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not paused")
	}
	s.status = SchedulerRunning
	s.mu.Unlock()
	s.signal()
	s.log.Info("scheduler resumed")
	return nil
}

// Clear removes every task. Refused while the scheduler runs.
func (s *Scheduler) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SchedulerRunning || s.status == SchedulerPaused {
		return fmt.Errorf("cannot clear tasks while scheduler is running")
	}
	s.tasks = make(map[string]Task)
	s.completed = make(map[string]struct{})
	s.failed = make(map[string]struct{})
	s.retries = make(map[string]int)
	s.results = make(map[string]TaskExecutionResult)
	s.queue.Clear()
	return nil
}

// Progress reports a snapshot of the run.
func (s *Scheduler) Progress() SchedulerProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := SchedulerProgress{
		Status:         s.status,
		TotalTasks:     len(s.tasks),
		RunningTasks:   len(s.running),
		CompletedTasks: len(s.completed),
		FailedTasks:    len(s.failed),
		StartTime:      s.startTime,
	}
	p.PendingTasks = p.TotalTasks - p.RunningTasks - p.CompletedTasks - p.FailedTasks
	if p.PendingTasks < 0 {
		p.PendingTasks = 0
	}
	if p.TotalTasks > 0 {
		p.ProgressPercent = p.CompletedTasks * 100 / p.TotalTasks
	}
	return p
}

// signal nudges the loop without blocking; a pending nudge is enough.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// waitSignal blocks until woken, stopped, or the fallback poll interval
// elapses.
func (s *Scheduler) waitSignal(stopCh <-chan struct{}) {
	select {
	case <-s.wake:
	case <-stopCh:
	case <-time.After(time.Second):
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.status = SchedulerError
			s.mu.Unlock()
			s.log.Error("scheduler loop panicked", logging.KeyError, fmt.Sprint(r))
		}
	}()

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if s.Status() == SchedulerPaused {
			s.waitSignal(stopCh)
			continue
		}

		if s.dispatchNext() {
			continue
		}
		if s.allFinished() {
			return
		}
		s.waitSignal(stopCh)
	}
}

// dispatchNext pops queue entries until one makes progress: a task launches
// or a task whose dependency already failed is failed itself. Entries whose
// dependencies are merely unmet are set aside and restored afterwards, so a
// blocked high-priority task cannot starve the lower tiers its dependencies
// sit in. Returns false when the queue drained or the pool is saturated.
func (s *Scheduler) dispatchNext() bool {
	type queued struct {
		id       string
		priority Priority
	}
	var blocked []queued
	var launch, depLost Task

	for launch == nil && depLost == nil {
		id, ok := s.queue.Pop()
		if !ok {
			break
		}

		s.mu.Lock()
		task, exists := s.tasks[id]
		if !exists || task.Status() != StatusPending {
			s.mu.Unlock()
			continue
		}
		if s.cfg.EnableDependencyCheck && !task.CanExecute(s.completed) {
			if s.depFailed(task) {
				depLost = task
			} else {
				blocked = append(blocked, queued{id, task.Priority()})
			}
			s.mu.Unlock()
			continue
		}
		if len(s.running) >= s.cfg.MaxConcurrentTasks {
			s.queue.PushFront(id, task.Priority())
			s.mu.Unlock()
			break
		}
		s.running[id] = struct{}{}
		s.mu.Unlock()
		launch = task
	}

	for i := len(blocked) - 1; i >= 0; i-- {
		s.queue.PushFront(blocked[i].id, blocked[i].priority)
	}

	if depLost != nil {
		s.failTask(depLost, fmt.Errorf("dependency of task %s failed", depLost.ID()))
		return true
	}
	if launch != nil {
		s.launch(launch)
		return true
	}
	return false
}

// depFailed reports whether any dependency can never complete. Caller holds
// the lock.
func (s *Scheduler) depFailed(task Task) bool {
	for _, dep := range task.Dependencies() {
		if _, ok := s.failed[dep]; ok {
			return true
		}
		if _, exists := s.tasks[dep]; !exists {
			return true
		}
	}
	return false
}

func (s *Scheduler) allFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.running) > 0 || s.queue.Len() > 0 {
		return false
	}
	for _, t := range s.tasks {
		if st := t.Status(); st == StatusPending || st == StatusRunning {
			return false
		}
	}
	return true
}

func (s *Scheduler) launch(task Task) {
	id := task.ID()

	if s.cfg.EnableTaskValidation {
		if err := task.Validate(context.Background()); err != nil {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
			s.log.Warn("task validation failed", logging.KeyTaskID, id, logging.KeyError, err.Error())
			s.failTask(task, fmt.Errorf("validation failed: %w", err))
			return
		}
	}

	poolCtx := s.pool.Context()
	submitted := s.pool.Submit(func() {
		s.execute(poolCtx, task)
	})
	if !submitted {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		s.failTask(task, fmt.Errorf("worker pool rejected task %s", id))
	}
}

func (s *Scheduler) execute(poolCtx context.Context, task Task) {
	id := task.ID()
	task.SetStatus(StatusRunning, "")
	s.log.Info("task started", logging.KeyTaskID, id, "name", task.Name())

	ctx, cancel := context.WithTimeout(poolCtx, s.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := task.Execute(ctx, s.conv)
	elapsed := time.Since(start)

	result := TaskExecutionResult{
		TaskID:        id,
		Success:       err == nil,
		Result:        task.Result(),
		ExecutionTime: elapsed,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}

	s.mu.Lock()
	delete(s.running, id)
	s.results[id] = result
	s.mu.Unlock()

	if err != nil {
		s.handleFailure(task, err)
	} else {
		s.handleSuccess(task, elapsed)
	}
	s.signal()
}

func (s *Scheduler) handleSuccess(task Task, elapsed time.Duration) {
	id := task.ID()
	task.SetStatus(StatusCompleted, "")
	task.SetProgress(100)

	s.mu.Lock()
	s.completed[id] = struct{}{}
	s.mu.Unlock()
	s.log.Info("task completed",
		logging.KeyTaskID, id,
		logging.KeyDurationMs, elapsed.Milliseconds())

	if s.allFinished() {
		s.group.Download.Finished()
	}
}

func (s *Scheduler) handleFailure(task Task, err error) {
	id := task.ID()

	s.mu.Lock()
	attempts := s.retries[id]
	retry := attempts < s.cfg.MaxRetries && s.status != SchedulerStopping && s.status != SchedulerStopped
	if retry {
		s.retries[id] = attempts + 1
	}
	delay := s.cfg.RetryDelay
	s.mu.Unlock()

	if retry {
		task.SetStatus(StatusPending, "")
		s.log.Warn("task failed, retrying",
			logging.KeyTaskID, id,
			"attempt", attempts+1,
			"maxRetries", s.cfg.MaxRetries,
			logging.KeyError, err.Error())
		s.retryTimer.Add(1)
		time.AfterFunc(delay, func() {
			defer s.retryTimer.Done()
			s.mu.Lock()
			_, exists := s.tasks[id]
			s.mu.Unlock()
			if exists {
				s.queue.Push(id, task.Priority())
				s.signal()
			}
		})
		return
	}

	s.failTask(task, err)
}

// failTask marks a task permanently failed and surfaces the error.
func (s *Scheduler) failTask(task Task, err error) {
	id := task.ID()
	task.SetStatus(StatusFailed, err.Error())

	s.mu.Lock()
	s.failed[id] = struct{}{}
	s.mu.Unlock()
	s.log.Error("task failed", logging.KeyTaskID, id, logging.KeyError, err.Error())

	s.group.Download.Error(fmt.Errorf("task %s failed: %w", id, err))
	s.signal()
}
