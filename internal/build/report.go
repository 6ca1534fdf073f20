package build

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/conneroisu/siteforge/internal/pipeline"
	"github.com/conneroisu/siteforge/internal/server"
)

// CategoryResult is the outcome of one category in a full build.
type CategoryResult struct {
	Category string
	Written  []string
	Duration time.Duration
	Err      error
}

// Report summarises a full build.
type Report struct {
	Profile  Profile
	Results  []CategoryResult
	Duration time.Duration
}

// Failed lists the categories whose pipeline failed.
func (r *Report) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if res.Err != nil {
			names = append(names, res.Category)
		}
	}
	return names
}

// Err combines every category error, or returns nil when all succeeded.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Results {
		err = multierr.Append(err, res.Err)
	}
	return err
}

// Written counts the files written across categories.
func (r *Report) Written() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Written)
	}
	return n
}

func (r *Report) sort() {
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Category < r.Results[j].Category })
}

// statusBoard keeps the last run of each category for the status page.
type statusBoard struct {
	mu     sync.RWMutex
	order  []string
	latest map[string]server.CategoryStatus
}

func newStatusBoard(names []string) *statusBoard {
	b := &statusBoard{order: names, latest: make(map[string]server.CategoryStatus, len(names))}
	for _, n := range names {
		b.latest[n] = server.CategoryStatus{Category: n}
	}
	return b
}

func (b *statusBoard) record(res *pipeline.Result) {
	st := server.CategoryStatus{
		Category: res.Category,
		LastRun:  time.Now(),
		Duration: res.Duration,
		Written:  len(res.Written),
	}
	if res.Err != nil {
		st.Error = res.Err.Error()
	}

	b.mu.Lock()
	b.latest[res.Category] = st
	b.mu.Unlock()
}

func (b *statusBoard) snapshot() []server.CategoryStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]server.CategoryStatus, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.latest[n])
	}
	return out
}
