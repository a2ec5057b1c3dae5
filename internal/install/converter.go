package install

import (
	"sync"

	"github.com/orion-launcher/core/pkg/callbacks"
)

// TaskType names the callback channel a task reports on.
type TaskType string

const (
	TypeDownload          TaskType = "download"
	TypeInstallGame       TaskType = "install_game"
	TypeInstallForge      TaskType = "install_forge"
	TypeInstallNeoforge   TaskType = "install_neoforge"
	TypeInstallFabric     TaskType = "install_fabric"
	TypeInstallQuilt      TaskType = "install_quilt"
	TypeInstallLiteloader TaskType = "install_liteloader"
	TypeVerify            TaskType = "verify"
)

// InstallerCallback is the minimal progress protocol installers speak:
// a status line, a denominator, and a running counter.
type InstallerCallback interface {
	SetStatus(status string)
	SetProgress(value int)
	SetMax(max int)
}

// Converter turns installer protocol calls into typed callback events.
type Converter interface {
	// Callbacks activates the given task type and returns the protocol
	// endpoint a task should report through.
	Callbacks(t TaskType) InstallerCallback
	// OnTaskError routes an error to the active task type's error sink.
	OnTaskError(err error)
	Reset()
}

// CallbackConverter adapts a single active task at a time. Activating a new
// task type re-arms the start event, which fires once on the first status
// report after activation.
type CallbackConverter struct {
	mu    sync.Mutex
	group callbacks.InstallationGroup

	current    TaskType
	max        int
	progress   int
	startFired bool
}

func NewCallbackConverter(group callbacks.InstallationGroup) *CallbackConverter {
	return &CallbackConverter{group: group.Normalize(), max: 100}
}

func (c *CallbackConverter) Callbacks(t TaskType) InstallerCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.startFired = false
	return &converterEndpoint{c: c, t: t}
}

func (c *CallbackConverter) OnTaskError(err error) {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()
	if t == "" {
		t = TypeDownload
	}
	c.errorSink(t, err)
}

func (c *CallbackConverter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
	c.max = 100
	c.progress = 0
	c.startFired = false
}

func (c *CallbackConverter) setStatus(t TaskType, _ string) {
	c.mu.Lock()
	fire := c.current == t && !c.startFired
	if fire {
		c.startFired = true
	}
	c.mu.Unlock()
	if fire {
		c.startSink(t)
	}
}

func (c *CallbackConverter) setMax(t TaskType, max int) {
	c.mu.Lock()
	c.max = max
	c.mu.Unlock()
	if t == TypeDownload {
		c.group.Download.Size(int64(max))
	}
}

func (c *CallbackConverter) setProgress(t TaskType, value int) {
	c.mu.Lock()
	c.progress = value
	max := c.max
	c.mu.Unlock()

	if t == TypeDownload {
		percent := 0
		if max > 0 {
			percent = value * 100 / max
		}
		c.group.Download.Progress(percent)
		c.group.Download.DownloadedSize(int64(value))
	}
	if max > 0 && value >= max {
		c.finishSink(t)
	}
}

func (c *CallbackConverter) startSink(t TaskType)            { startSink(c.group, t) }
func (c *CallbackConverter) finishSink(t TaskType)           { finishSink(c.group, t) }
func (c *CallbackConverter) errorSink(t TaskType, err error) { errorSink(c.group, t, err) }

func startSink(g callbacks.InstallationGroup, t TaskType) {
	if t == TypeDownload {
		g.Download.Start()
		return
	}
	taskEvents(g, t).Start()
}

func finishSink(g callbacks.InstallationGroup, t TaskType) {
	if t == TypeDownload {
		g.Download.Finished()
		return
	}
	taskEvents(g, t).Finished()
}

func errorSink(g callbacks.InstallationGroup, t TaskType, err error) {
	if t == TypeDownload {
		g.Download.Error(err)
		return
	}
	taskEvents(g, t).Error(err)
}

func taskEvents(g callbacks.InstallationGroup, t TaskType) callbacks.TaskEvents {
	switch t {
	case TypeInstallGame:
		return g.InstallGame
	case TypeInstallForge:
		return g.InstallForge
	case TypeInstallNeoforge:
		return g.InstallNeoforge
	case TypeInstallFabric:
		return g.InstallFabric
	case TypeInstallQuilt:
		return g.InstallQuilt
	case TypeInstallLiteloader:
		return g.InstallLiteloader
	case TypeVerify:
		return g.Verify
	default:
		return callbacks.NopTaskEvents{}
	}
}

type converterEndpoint struct {
	c *CallbackConverter
	t TaskType
}

func (e *converterEndpoint) SetStatus(status string) { e.c.setStatus(e.t, status) }
func (e *converterEndpoint) SetProgress(value int)   { e.c.setProgress(e.t, value) }
func (e *converterEndpoint) SetMax(max int)          { e.c.setMax(e.t, max) }

// MultiTaskCallbackConverter aggregates several weighted task types into one
// overall download progress stream while still firing each type's own
// lifecycle events.
type MultiTaskCallbackConverter struct {
	mu    sync.Mutex
	group callbacks.InstallationGroup

	states  map[TaskType]*multiTaskState
	current TaskType
}

type multiTaskState struct {
	weight     float64
	progress   int
	max        int
	completed  bool
	startFired bool
}

func NewMultiTaskCallbackConverter(group callbacks.InstallationGroup) *MultiTaskCallbackConverter {
	return &MultiTaskCallbackConverter{
		group:  group.Normalize(),
		states: make(map[TaskType]*multiTaskState),
	}
}

// AddTask registers a task type with its share of the overall progress.
// Weights are relative, they need not sum to one.
func (c *MultiTaskCallbackConverter) AddTask(t TaskType, weight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if weight <= 0 {
		weight = 1
	}
	c.states[t] = &multiTaskState{weight: weight, max: 100}
}

func (c *MultiTaskCallbackConverter) Callbacks(t TaskType) InstallerCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[t]; !ok {
		c.states[t] = &multiTaskState{weight: 1, max: 100}
	}
	c.current = t
	c.states[t].startFired = false
	return &multiEndpoint{c: c, t: t}
}

func (c *MultiTaskCallbackConverter) OnTaskError(err error) {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()
	if t == "" {
		t = TypeDownload
	}
	errorSink(c.group, t, err)
}

func (c *MultiTaskCallbackConverter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[TaskType]*multiTaskState)
	c.current = ""
}

func (c *MultiTaskCallbackConverter) setStatus(t TaskType, _ string) {
	c.mu.Lock()
	st := c.states[t]
	fire := st != nil && !st.startFired
	if fire {
		st.startFired = true
	}
	c.mu.Unlock()
	if fire {
		startSink(c.group, t)
	}
}

func (c *MultiTaskCallbackConverter) setMax(t TaskType, max int) {
	c.mu.Lock()
	if st := c.states[t]; st != nil && max > 0 {
		st.max = max
	}
	c.mu.Unlock()
}

func (c *MultiTaskCallbackConverter) setProgress(t TaskType, value int) {
	c.mu.Lock()
	st := c.states[t]
	if st == nil {
		c.mu.Unlock()
		return
	}
	st.progress = value

	justCompleted := false
	if st.max > 0 && value >= st.max && !st.completed {
		st.completed = true
		justCompleted = true
	}

	var weighted, totalWeight float64
	allDone := true
	for _, s := range c.states {
		totalWeight += s.weight
		if s.max > 0 {
			frac := float64(s.progress) / float64(s.max)
			if frac > 1 {
				frac = 1
			}
			weighted += s.weight * frac
		}
		if !s.completed {
			allDone = false
		}
	}
	c.mu.Unlock()

	if totalWeight > 0 {
		c.group.Download.Progress(int(weighted / totalWeight * 100))
	}
	if justCompleted {
		finishSink(c.group, t)
		if allDone {
			c.group.Download.Finished()
		}
	}
}

type multiEndpoint struct {
	c *MultiTaskCallbackConverter
	t TaskType
}

func (e *multiEndpoint) SetStatus(status string) { e.c.setStatus(e.t, status) }
func (e *multiEndpoint) SetProgress(value int)   { e.c.setProgress(e.t, value) }
func (e *multiEndpoint) SetMax(max int)          { e.c.setMax(e.t, max) }
