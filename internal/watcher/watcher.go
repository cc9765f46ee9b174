// Package watcher watches a repository's git directory and reports, with
// debouncing, when refs, HEAD or the index change.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/paths"
	"github.com/zjrosen/lanes/internal/pubsub"
)

// EventKind distinguishes watcher events.
type EventKind int

const (
	// GitDirChanged means refs, HEAD or the index changed.
	GitDirChanged EventKind = iota
	// WatcherError carries an fsnotify error. Watching continues.
	WatcherError
)

// Event is the payload published on the watcher's broker.
type Event struct {
	Kind EventKind
	Path string // last relevant file that changed
	Err  error
}

// Watcher monitors a git directory for changes and sends notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dirs      paths.GitDirs
	debounce  time.Duration
	onChange  chan struct{}
	broker    *pubsub.Broker[Event]
	done      chan struct{}
	stopped   chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Dirs        paths.GitDirs
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(dirs paths.GitDirs) Config {
	return Config{
		Dirs:        dirs,
		DebounceDur: 300 * time.Millisecond,
	}
}

// New creates a new git directory watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if cfg.Dirs.CommonDir == "" {
		cfg.Dirs.CommonDir = cfg.Dirs.GitDir
	}

	return &Watcher{
		fsWatcher: fsw,
		dirs:      cfg.Dirs,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		broker:    pubsub.NewBroker[Event](),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}, nil
}

// Broker returns the broker GitDirChanged and WatcherError events are
// published on.
func (w *Watcher) Broker() *pubsub.Broker[Event] {
	return w.broker
}

// Start begins watching the git directory and every directory under refs/.
// Returns a channel that receives a signal when the repository changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsWatcher.Add(w.dirs.GitDir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.dirs.GitDir, err)
	}
	if w.dirs.CommonDir != w.dirs.GitDir {
		if err := w.fsWatcher.Add(w.dirs.CommonDir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", w.dirs.CommonDir, err)
		}
	}
	if err := w.addTree(filepath.Join(w.dirs.CommonDir, "refs")); err != nil {
		return nil, err
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fsWatcher.Close()
	w.broker.Close()
	return err
}

// addTree watches root and its subdirectories. A missing root is ignored.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
		last    string
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// New ref namespaces (refs/remotes/origin, feature/...) need a watch.
			if event.Op&fsnotify.Create != 0 && w.underRefs(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.ErrorErr(log.CatWatcher, "watching new ref directory failed", err, "path", event.Name)
					}
				}
			}

			if !w.isRelevantEvent(event) {
				continue
			}
			last = event.Name

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				log.Debug(log.CatWatcher, "git dir changed", "path", last)
				w.broker.Publish(pubsub.GitDirChangedEvent, Event{Kind: GitDirChanged, Path: last})
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)
			w.broker.Publish(pubsub.GitDirChangedEvent, Event{Kind: WatcherError, Err: err})

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) underRefs(name string) bool {
	rel, err := filepath.Rel(filepath.Join(w.dirs.CommonDir, "refs"), name)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// relevantFiles are the files directly in a git dir whose change moves
// history or the working state.
var relevantFiles = map[string]bool{
	"HEAD":        true,
	"index":       true,
	"packed-refs": true,
	"FETCH_HEAD":  true,
	"ORIG_HEAD":   true,
	"MERGE_HEAD":  true,
}

// isRelevantEvent checks if the event should trigger a refresh.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") {
		return false
	}
	if w.underRefs(event.Name) {
		return true
	}
	dir := filepath.Dir(event.Name)
	return (dir == w.dirs.GitDir || dir == w.dirs.CommonDir) && relevantFiles[base]
}
