// Package watcher observes the source tree and reports every change as one
// ChangeEvent per matching asset category.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/siteforge/internal/assets"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
)

// ChangeEvent is one (change, category) pair.
type ChangeEvent struct {
	Type     EventType
	Path     string
	Category *assets.Category
	Time     time.Time
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a source-relative path should be considered.
type FileFilter func(rel string) bool

// Resolver maps a source-relative path to the categories it triggers.
type Resolver interface {
	Match(rel string) []*assets.Category
}

// Options configures a FileWatcher.
type Options struct {
	// Debounce coalesces events per (path, category); zero disables it.
	Debounce time.Duration
	Logger   logging.Logger
}

// FileWatcher watches the source tree recursively.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	resolver  Resolver
	debouncer *Debouncer
	filters   []FileFilter
	logger    logging.Logger
	mutex     sync.RWMutex
	closeOnce sync.Once
}

// NewFileWatcher creates a watcher rooted at root.
func NewFileWatcher(root string, resolver Resolver, opts Options) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewWatchError("resolving source root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.NewWatchError("source root is not accessible", err)
	}
	if !info.IsDir() {
		return nil, errors.NewWatchError("source root is not a directory: "+abs, nil)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewWatchError("creating file watcher", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	fw := &FileWatcher{
		watcher:  w,
		root:     abs,
		resolver: resolver,
		filters:  []FileFilter{NoGitFilter, NoEditorTempFilter},
		logger:   logger.WithComponent("watcher"),
	}
	if opts.Debounce > 0 {
		fw.debouncer = NewDebouncer(opts.Debounce)
	}
	return fw, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// Root returns the absolute source root.
func (fw *FileWatcher) Root() string { return fw.root }

// addRecursive adds dir and all its subdirectories, returning the
// source-relative paths of the files found.
func (fw *FileWatcher) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != fw.root && d.Name() == ".git" {
				return filepath.SkipDir
			}
			return fw.watcher.Add(path)
		}
		if rel, ok := fw.relative(path); ok {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// Watch blocks until ctx is done, invoking onMatch once for every (event,
// category) pair. A failure of the notification mechanism is returned as a
// watch error; cancellation returns nil.
func (fw *FileWatcher) Watch(ctx context.Context, onMatch func(ChangeEvent)) error {
	if _, err := fw.addRecursive(fw.root); err != nil {
		return errors.NewWatchError("watching "+fw.root, err)
	}
	fw.logger.Info(ctx, "Watching source tree", "root", fw.root)

	emit := onMatch
	if fw.debouncer != nil {
		emit = func(ev ChangeEvent) { fw.debouncer.Add(ev, onMatch) }
		defer fw.debouncer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleFsnotifyEvent(ctx, event, emit)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Error(ctx, err, "File notification failed")
			return errors.NewWatchError("file notification failed", err)
		}
	}
}

// Close releases the OS watch handle.
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		if fw.debouncer != nil {
			fw.debouncer.Stop()
		}
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event, emit func(ChangeEvent)) {
	if event.Op == fsnotify.Chmod {
		return
	}

	eventType := toEventType(event.Op)

	if eventType == EventTypeCreated {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			files, err := fw.addRecursive(event.Name)
			if err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
			for _, rel := range files {
				fw.dispatch(rel, EventTypeCreated, emit)
			}
			return
		}
	}

	rel, ok := fw.relative(event.Name)
	if !ok {
		return
	}
	fw.dispatch(rel, eventType, emit)
}

func (fw *FileWatcher) dispatch(rel string, eventType EventType, emit func(ChangeEvent)) {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	now := time.Now()
	for _, category := range fw.resolver.Match(rel) {
		emit(ChangeEvent{Type: eventType, Path: rel, Category: category, Time: now})
	}
}

func (fw *FileWatcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(fw.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func toEventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// Common file filters

func NoGitFilter(rel string) bool {
	return !strings.HasPrefix(rel, ".git/") && !strings.Contains(rel, "/.git/")
}

// NoEditorTempFilter drops swap, backup and probe files written by editors.
func NoEditorTempFilter(rel string) bool {
	base := filepath.Base(rel)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		base == "4913":
		return false
	}
	return true
}
