package install

import (
	"errors"
	"sync"
	"testing"

	"github.com/orion-launcher/core/pkg/callbacks"
)

type eventRecorder struct {
	mu        sync.Mutex
	starts    map[string]int
	finishes  map[string]int
	errors    map[string]int
	progress  []int
	sizes     []int64
	dlStarts  int
	dlFinish  int
	dlErrors  int
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		starts:   make(map[string]int),
		finishes: make(map[string]int),
		errors:   make(map[string]int),
	}
}

func (r *eventRecorder) group() callbacks.InstallationGroup {
	task := func(name string) callbacks.TaskEvents {
		return &callbacks.TaskEventsFuncs{
			OnStart: func() {
				r.mu.Lock()
				r.starts[name]++
				r.mu.Unlock()
			},
			OnFinished: func() {
				r.mu.Lock()
				r.finishes[name]++
				r.mu.Unlock()
			},
			OnError: func(error) {
				r.mu.Lock()
				r.errors[name]++
				r.mu.Unlock()
			},
		}
	}
	return callbacks.InstallationGroup{
		Download: &callbacks.MultiDownloadFuncs{
			OnStart: func() {
				r.mu.Lock()
				r.dlStarts++
				r.mu.Unlock()
			},
			OnProgress: func(p int) {
				r.mu.Lock()
				r.progress = append(r.progress, p)
				r.mu.Unlock()
			},
			OnSize: func(n int64) {
				r.mu.Lock()
				r.sizes = append(r.sizes, n)
				r.mu.Unlock()
			},
			OnFinished: func() {
				r.mu.Lock()
				r.dlFinish++
				r.mu.Unlock()
			},
			OnError: func(error) {
				r.mu.Lock()
				r.dlErrors++
				r.mu.Unlock()
			},
		},
		InstallGame:  task("install_game"),
		InstallForge: task("install_forge"),
		Verify:       task("verify"),
	}
}

func TestConverterStartFiresOncePerActivation(t *testing.T) {
	rec := newEventRecorder()
	conv := NewCallbackConverter(rec.group())

	cb := conv.Callbacks(TypeInstallGame)
	cb.SetStatus("step one")
	cb.SetStatus("step two")
	cb.SetStatus("step three")
	if got := rec.starts["install_game"]; got != 1 {
		t.Fatalf("start fired %d times, want 1", got)
	}

	cb = conv.Callbacks(TypeInstallGame)
	cb.SetStatus("again")
	if got := rec.starts["install_game"]; got != 2 {
		t.Fatalf("start after reactivation fired %d times, want 2", got)
	}
}

func TestConverterDownloadRouting(t *testing.T) {
	rec := newEventRecorder()
	conv := NewCallbackConverter(rec.group())

	cb := conv.Callbacks(TypeDownload)
	cb.SetMax(200)
	cb.SetProgress(50)
	cb.SetProgress(200)

	if len(rec.sizes) != 1 || rec.sizes[0] != 200 {
		t.Fatalf("sizes = %v, want [200]", rec.sizes)
	}
	wantProgress := []int{25, 100}
	if len(rec.progress) != len(wantProgress) {
		t.Fatalf("progress = %v, want %v", rec.progress, wantProgress)
	}
	for i, p := range wantProgress {
		if rec.progress[i] != p {
			t.Fatalf("progress = %v, want %v", rec.progress, wantProgress)
		}
	}
	if rec.dlFinish != 1 {
		t.Fatalf("download finished fired %d times, want 1", rec.dlFinish)
	}
}

func TestConverterFinishedAtMaxForTaskType(t *testing.T) {
	rec := newEventRecorder()
	conv := NewCallbackConverter(rec.group())

	cb := conv.Callbacks(TypeVerify)
	cb.SetMax(10)
	cb.SetProgress(5)
	if rec.finishes["verify"] != 0 {
		t.Fatal("finished fired before reaching max")
	}
	cb.SetProgress(10)
	if rec.finishes["verify"] != 1 {
		t.Fatalf("finished fired %d times, want 1", rec.finishes["verify"])
	}
}

func TestConverterErrorRoutesToActiveType(t *testing.T) {
	rec := newEventRecorder()
	conv := NewCallbackConverter(rec.group())

	conv.Callbacks(TypeInstallForge)
	conv.OnTaskError(errors.New("boom"))
	if rec.errors["install_forge"] != 1 {
		t.Fatalf("forge errors = %d, want 1", rec.errors["install_forge"])
	}

	conv.Reset()
	conv.OnTaskError(errors.New("boom again"))
	if rec.dlErrors != 1 {
		t.Fatalf("download errors after reset = %d, want 1", rec.dlErrors)
	}
}

func TestMultiConverterWeightedOverallProgress(t *testing.T) {
	rec := newEventRecorder()
	conv := NewMultiTaskCallbackConverter(rec.group())
	conv.AddTask(TypeInstallGame, 3)
	conv.AddTask(TypeVerify, 1)

	game := conv.Callbacks(TypeInstallGame)
	game.SetMax(100)
	game.SetProgress(100)

	// Game is three quarters of the weight.
	last := rec.progress[len(rec.progress)-1]
	if last != 75 {
		t.Fatalf("overall progress = %d, want 75", last)
	}
	if rec.finishes["install_game"] != 1 {
		t.Fatalf("game finished fired %d times, want 1", rec.finishes["install_game"])
	}
	if rec.dlFinish != 0 {
		t.Fatal("aggregate finished fired before all tasks completed")
	}

	verify := conv.Callbacks(TypeVerify)
	verify.SetMax(100)
	verify.SetProgress(100)

	last = rec.progress[len(rec.progress)-1]
	if last != 100 {
		t.Fatalf("overall progress = %d, want 100", last)
	}
	if rec.dlFinish != 1 {
		t.Fatalf("aggregate finished fired %d times, want 1", rec.dlFinish)
	}
}

func TestMultiConverterAutoRegistersUnknownType(t *testing.T) {
	rec := newEventRecorder()
	conv := NewMultiTaskCallbackConverter(rec.group())

	cb := conv.Callbacks(TypeVerify)
	cb.SetStatus("checking")
	cb.SetMax(4)
	cb.SetProgress(4)

	if rec.starts["verify"] != 1 {
		t.Fatalf("verify starts = %d, want 1", rec.starts["verify"])
	}
	if rec.finishes["verify"] != 1 {
		t.Fatalf("verify finishes = %d, want 1", rec.finishes["verify"])
	}
	if rec.dlFinish != 1 {
		t.Fatalf("aggregate finished = %d, want 1", rec.dlFinish)
	}
}
