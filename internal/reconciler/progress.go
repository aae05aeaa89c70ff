package reconciler

import (
	"sync"
	"time"
)

// Run steps reported to progress callbacks
const (
	StepLock      = "lock"
	StepFetch     = "fetch"
	StepLoad      = "load_ledger"
	StepMatch     = "match"
	StepPersist   = "persist"
	StepCompleted = "completed"
)

// RunProgress tracks where a reconciliation run is
type RunProgress struct {
	CompanyID      string        `json:"company_id"`
	CurrentStep    string        `json:"current_step"`
	CompletedSteps int           `json:"completed_steps"`
	TotalSteps     int           `json:"total_steps"`
	StartTime      time.Time     `json:"start_time"`
	ElapsedTime    time.Duration `json:"elapsed_time"`
	Statements     int           `json:"statements"`
	Matched        int           `json:"matched"`
}

// PercentComplete returns completion as 0-100
func (p RunProgress) PercentComplete() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	return float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(RunProgress)

type progressTracker struct {
	mu        sync.Mutex
	callbacks []ProgressCallback
}

func (pt *progressTracker) add(cb ProgressCallback) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.callbacks = append(pt.callbacks, cb)
}

func (pt *progressTracker) notify(p RunProgress) {
	pt.mu.Lock()
	callbacks := append([]ProgressCallback(nil), pt.callbacks...)
	pt.mu.Unlock()

	for _, cb := range callbacks {
		cb(p)
	}
}

// runTracker reports the steps of one company run
type runTracker struct {
	progress RunProgress
	tracker  *progressTracker
}

func newRunTracker(companyID string, tracker *progressTracker) *runTracker {
	return &runTracker{
		progress: RunProgress{
			CompanyID:  companyID,
			TotalSteps: 5,
			StartTime:  time.Now(),
		},
		tracker: tracker,
	}
}

func (rt *runTracker) step(name string) {
	rt.progress.CurrentStep = name
	rt.progress.ElapsedTime = time.Since(rt.progress.StartTime)
	rt.tracker.notify(rt.progress)
	if rt.progress.CompletedSteps < rt.progress.TotalSteps {
		rt.progress.CompletedSteps++
	}
}
