// Package metrics records pipeline run and live-reload observations.
package metrics

import (
	"sync"
	"time"
)

// Outcome labels a finished pipeline run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder defines observability hooks for pipeline runs. Implementations
// must be safe for concurrent use.
type Recorder interface {
	ObserveRun(category string, d time.Duration, outcome Outcome)
	ObserveStage(category, stage string, d time.Duration)
	IncNotification(kind string)
	SetSessions(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRun(string, time.Duration, Outcome) {}
func (NoopRecorder) ObserveStage(string, string, time.Duration) {}
func (NoopRecorder) IncNotification(string) {}
func (NoopRecorder) SetSessions(int) {}

// Multi fans every observation out to several recorders.
type Multi []Recorder

func (m Multi) ObserveRun(category string, d time.Duration, outcome Outcome) {
	for _, r := range m {
		r.ObserveRun(category, d, outcome)
	}
}

func (m Multi) ObserveStage(category, stage string, d time.Duration) {
	for _, r := range m {
		r.ObserveStage(category, stage, d)
	}
}

func (m Multi) IncNotification(kind string) {
	for _, r := range m {
		r.IncNotification(kind)
	}
}

func (m Multi) SetSessions(n int) {
	for _, r := range m {
		r.SetSessions(n)
	}
}

// BuildStats keeps in-process counters for the dev server status page.
type BuildStats struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	Notifications   int64
	Sessions        int
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// NewBuildStats creates a new stats tracker.
func NewBuildStats() *BuildStats {
	return &BuildStats{}
}

func (bs *BuildStats) ObserveRun(_ string, d time.Duration, outcome Outcome) {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	bs.TotalRuns++
	bs.TotalDuration += d

	if outcome == OutcomeSuccess {
		bs.SuccessfulRuns++
	} else {
		bs.FailedRuns++
	}

	bs.AverageDuration = bs.TotalDuration / time.Duration(bs.TotalRuns)
}

func (bs *BuildStats) ObserveStage(string, string, time.Duration) {}

func (bs *BuildStats) IncNotification(string) {
	bs.mutex.Lock()
	bs.Notifications++
	bs.mutex.Unlock()
}

func (bs *BuildStats) SetSessions(n int) {
	bs.mutex.Lock()
	bs.Sessions = n
	bs.mutex.Unlock()
}

// Snapshot is a lock-free copy of BuildStats.
type Snapshot struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	Notifications   int64
	Sessions        int
	AverageDuration time.Duration
}

// Snapshot returns a copy of the current counters.
func (bs *BuildStats) Snapshot() Snapshot {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	return Snapshot{
		TotalRuns:       bs.TotalRuns,
		SuccessfulRuns:  bs.SuccessfulRuns,
		FailedRuns:      bs.FailedRuns,
		Notifications:   bs.Notifications,
		Sessions:        bs.Sessions,
		AverageDuration: bs.AverageDuration,
	}
}

// SuccessRate returns the success rate as a percentage
func (s Snapshot) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0.0
	}
	return float64(s.SuccessfulRuns) / float64(s.TotalRuns) * 100.0
}
