// Package callbacks defines the event contracts through which the install
// and download subsystems report activity to their caller. Every group has a
// Nop null-object and a Funcs adapter, so consumers implement only the
// events they care about.
package callbacks

// SingleDownload receives events for one file transfer.
type SingleDownload interface {
	Start()
	Progress(percent int)
	BytesDownloaded(downloaded, total int64)
	Speed(bytesPerSec float64)
	Finished()
	Error(err error)
}

// MultiDownload receives aggregate events for a batch of file transfers.
type MultiDownload interface {
	Start()
	TasksProgress(percents map[string]int)
	Size(totalBytes int64)
	DownloadedSize(bytes int64)
	Speed(bytesPerSec float64)
	Progress(percent int)
	Finished()
	Error(err error)
}

// TaskEvents receives lifecycle events for one install or verify activity.
type TaskEvents interface {
	Start()
	Finished()
	Error(err error)
}

// NopSingleDownload ignores every event. Embed it to implement a subset.
type NopSingleDownload struct{}

func (NopSingleDownload) Start()                               {}
func (NopSingleDownload) Progress(int)                         {}
func (NopSingleDownload) BytesDownloaded(int64, int64)         {}
func (NopSingleDownload) Speed(float64)                        {}
func (NopSingleDownload) Finished()                            {}
func (NopSingleDownload) Error(error)                          {}

// NopMultiDownload ignores every event. Embed it to implement a subset.
type NopMultiDownload struct{}

func (NopMultiDownload) Start()                        {}
func (NopMultiDownload) TasksProgress(map[string]int)  {}
func (NopMultiDownload) Size(int64)                    {}
func (NopMultiDownload) DownloadedSize(int64)          {}
func (NopMultiDownload) Speed(float64)                 {}
func (NopMultiDownload) Progress(int)                  {}
func (NopMultiDownload) Finished()                     {}
func (NopMultiDownload) Error(error)                   {}

// NopTaskEvents ignores every event.
type NopTaskEvents struct{}

func (NopTaskEvents) Start()      {}
func (NopTaskEvents) Finished()   {}
func (NopTaskEvents) Error(error) {}

// SingleDownloadFuncs adapts plain functions to SingleDownload. Nil fields
// are skipped.
type SingleDownloadFuncs struct {
	OnStart           func()
	OnProgress        func(percent int)
	OnBytesDownloaded func(downloaded, total int64)
	OnSpeed           func(bytesPerSec float64)
	OnFinished        func()
	OnError           func(err error)
}

func (f *SingleDownloadFuncs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f *SingleDownloadFuncs) Progress(percent int) {
	if f.OnProgress != nil {
		f.OnProgress(percent)
	}
}

func (f *SingleDownloadFuncs) BytesDownloaded(downloaded, total int64) {
	if f.OnBytesDownloaded != nil {
		f.OnBytesDownloaded(downloaded, total)
	}
}

func (f *SingleDownloadFuncs) Speed(bytesPerSec float64) {
	if f.OnSpeed != nil {
		f.OnSpeed(bytesPerSec)
	}
}

func (f *SingleDownloadFuncs) Finished() {
	if f.OnFinished != nil {
		f.OnFinished()
	}
}

func (f *SingleDownloadFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// MultiDownloadFuncs adapts plain functions to MultiDownload. Nil fields are
// skipped.
type MultiDownloadFuncs struct {
	OnStart          func()
	OnTasksProgress  func(percents map[string]int)
	OnSize           func(totalBytes int64)
	OnDownloadedSize func(bytes int64)
	OnSpeed          func(bytesPerSec float64)
	OnProgress       func(percent int)
	OnFinished       func()
	OnError          func(err error)
}

func (f *MultiDownloadFuncs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f *MultiDownloadFuncs) TasksProgress(percents map[string]int) {
	if f.OnTasksProgress != nil {
		f.OnTasksProgress(percents)
	}
}

func (f *MultiDownloadFuncs) Size(totalBytes int64) {
	if f.OnSize != nil {
		f.OnSize(totalBytes)
	}
}

func (f *MultiDownloadFuncs) DownloadedSize(bytes int64) {
	if f.OnDownloadedSize != nil {
		f.OnDownloadedSize(bytes)
	}
}

func (f *MultiDownloadFuncs) Speed(bytesPerSec float64) {
	if f.OnSpeed != nil {
		f.OnSpeed(bytesPerSec)
	}
}

func (f *MultiDownloadFuncs) Progress(percent int) {
	if f.OnProgress != nil {
		f.OnProgress(percent)
	}
}

func (f *MultiDownloadFuncs) Finished() {
	if f.OnFinished != nil {
		f.OnFinished()
	}
}

func (f *MultiDownloadFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// TaskEventsFuncs adapts plain functions to TaskEvents. Nil fields are
// skipped.
type TaskEventsFuncs struct {
	OnStart    func()
	OnFinished func()
	OnError    func(err error)
}

func (f *TaskEventsFuncs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f *TaskEventsFuncs) Finished() {
	if f.OnFinished != nil {
		f.OnFinished()
	}
}

func (f *TaskEventsFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// InstallationGroup bundles the sinks an installation run reports into, one
// TaskEvents per activity type plus the shared download group. Nil members
// are replaced with null objects by Normalize.
type InstallationGroup struct {
	Download          MultiDownload
	InstallGame       TaskEvents
	InstallForge      TaskEvents
	InstallNeoforge   TaskEvents
	InstallFabric     TaskEvents
	InstallQuilt      TaskEvents
	InstallLiteloader TaskEvents
	Verify            TaskEvents
}

// Normalize returns a copy with every nil member replaced by a null object,
// so callers never nil-check before firing an event.
func (g InstallationGroup) Normalize() InstallationGroup {
	if g.Download == nil {
		g.Download = NopMultiDownload{}
	}
	if g.InstallGame == nil {
		g.InstallGame = NopTaskEvents{}
	}
	if g.InstallForge == nil {
		g.InstallForge = NopTaskEvents{}
	}
	if g.InstallNeoforge == nil {
		g.InstallNeoforge = NopTaskEvents{}
	}
	if g.InstallFabric == nil {
		g.InstallFabric = NopTaskEvents{}
	}
	if g.InstallQuilt == nil {
		g.InstallQuilt = NopTaskEvents{}
	}
	if g.InstallLiteloader == nil {
		g.InstallLiteloader = NopTaskEvents{}
	}
	if g.Verify == nil {
		g.Verify = NopTaskEvents{}
	}
	return g
}
