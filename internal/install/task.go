// Package install contains the installation task model, the scheduler that
// drives tasks through their lifecycle, and the converter bridging the
// external installer protocol to typed callback groups.
package install

import (
	"context"
	"sync"
	"time"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority orders tasks in the scheduler queue. Higher runs first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Task is one schedulable unit of installation work.
type Task interface {
	ID() string
	Name() string
	Description() string
	Priority() Priority
	Dependencies() []string

	Status() Status
	Progress() int
	ErrorMessage() string
	Result() any

	SetStatus(s Status, errorMessage string)
	SetProgress(percent int)

	// CanExecute reports whether every dependency is in the completed set.
	CanExecute(completed map[string]struct{}) bool

	// Validate checks preconditions without side effects beyond directory
	// creation. A validation failure is terminal, it does not consume
	// retries.
	Validate(ctx context.Context) error

	// Execute runs the task to completion, reporting through the
	// converter. A nil return means success.
	Execute(ctx context.Context, conv Converter) error

	EstimatedDuration() time.Duration
}

// BaseTask carries the bookkeeping shared by every task type. Embed it and
// implement Validate, Execute, and EstimatedDuration.
type BaseTask struct {
	id           string
	name         string
	description  string
	priority     Priority
	dependencies []string

	mu           sync.Mutex
	status       Status
	progress     int
	errorMessage string
	result       any
}

// NewBaseTask builds the shared task core. An empty priority defaults to
// normal.
func NewBaseTask(id, name, description string, priority Priority, dependencies []string) BaseTask {
	if priority == 0 {
		priority = PriorityNormal
	}
	return BaseTask{
		id:           id,
		name:         name,
		description:  description,
		priority:     priority,
		dependencies: dependencies,
		status:       StatusPending,
	}
}

func (t *BaseTask) ID() string             { return t.id }
func (t *BaseTask) Name() string           { return t.name }
func (t *BaseTask) Description() string    { return t.description }
func (t *BaseTask) Priority() Priority     { return t.priority }
func (t *BaseTask) Dependencies() []string { return t.dependencies }

func (t *BaseTask) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *BaseTask) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *BaseTask) ErrorMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorMessage
}

func (t *BaseTask) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *BaseTask) SetStatus(s Status, errorMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.errorMessage = errorMessage
}

func (t *BaseTask) SetProgress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = percent
}

func (t *BaseTask) setResult(r any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = r
}

func (t *BaseTask) CanExecute(completed map[string]struct{}) bool {
	for _, dep := range t.dependencies {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}
