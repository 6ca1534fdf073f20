package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same (path, category) pair and
// delivers only the last one after the delay.
type Debouncer struct {
	delay    time.Duration
	timers   map[debounceKey]*time.Timer
	pending  map[debounceKey]ChangeEvent
	stopped  bool
	mutex    sync.Mutex
	inflight sync.WaitGroup
}

type debounceKey struct {
	path     string
	category string
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		timers:  make(map[debounceKey]*time.Timer),
		pending: make(map[debounceKey]ChangeEvent),
	}
}

// Add records ev and (re)arms its timer. fn runs on the timer goroutine.
func (d *Debouncer) Add(ev ChangeEvent, fn func(ChangeEvent)) {
	key := debounceKey{path: ev.Path}
	if ev.Category != nil {
		key.category = ev.Category.Name
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	d.pending[key] = ev
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mutex.Lock()
		latest, ok := d.pending[key]
		delete(d.pending, key)
		delete(d.timers, key)
		fire := ok && !d.stopped
		if fire {
			d.inflight.Add(1)
		}
		d.mutex.Unlock()

		if fire {
			defer d.inflight.Done()
			fn(latest)
		}
	})
}

// Pending returns the number of events waiting for their timer.
func (d *Debouncer) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

// Stop cancels every pending event and waits for callbacks already
// running. fn must not call Stop.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
		delete(d.pending, key)
	}
	d.mutex.Unlock()

	d.inflight.Wait()
}
