/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package watch delivers debounced, filtered file events from a
// recursively watched root. Include and exclude lists use doublestar
// glob syntax; a .gitignore at the root is honoured as well.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"bennypowers.dev/molt/internal/logging"
)

// Op is the reported file operation.
type Op int

const (
	Created Op = iota
	Modified
	Moved
	Deleted
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Moved:
		return "moved"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event is one filtered, debounced file event.
type Event struct {
	Path string
	Op   Op
}

// Sets configures what a watcher observes.
type Sets struct {
	Root    string
	Include []string // doublestar globs relative to Root; empty means everything
	Exclude []string
}

// Callbacks is the consumer seam.
type Callbacks struct {
	OnEvent func(Event)
}

// DefaultDebounce coalesces editor save storms (write + chmod + write)
// into one event per path.
const DefaultDebounce = 100 * time.Millisecond

// FilesWatcher watches one root recursively.
type FilesWatcher struct {
	sets     Sets
	calls    Callbacks
	backend  Backend
	logger   logging.Logger
	debounce time.Duration
	ignorer  *ignore.GitIgnore

	mu     sync.Mutex
	recent map[string]time.Time
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher over sets.Root delivering events through calls.
// The backend is owned by the FilesWatcher once Start is called.
func New(sets Sets, calls Callbacks, backend Backend, logger logging.Logger) *FilesWatcher {
	fw := &FilesWatcher{
		sets:     sets,
		calls:    calls,
		backend:  backend,
		logger:   logging.OrNop(logger),
		debounce: DefaultDebounce,
		recent:   make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(sets.Root, ".gitignore")); err == nil {
		fw.ignorer = gi
	}
	return fw
}

// SetDebounce overrides the debounce window.
func (fw *FilesWatcher) SetDebounce(d time.Duration) {
	fw.debounce = d
}

// Start registers the root (and, when it is a real directory tree, all
// its subdirectories) and begins delivering events.
func (fw *FilesWatcher) Start() error {
	if err := fw.backend.Add(fw.sets.Root); err != nil {
		return err
	}
	// watch subdirectories too; fsnotify is not recursive
	_ = filepath.Walk(fw.sets.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() || p == fw.sets.Root {
			return nil
		}
		if filepath.Base(p)[0] == '.' || filepath.Base(p) == "__pycache__" {
			return filepath.SkipDir
		}
		if err := fw.backend.Add(p); err != nil {
			fw.logger.Debug("cannot watch %s: %v", p, err)
		}
		return nil
	})

	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		fw.loop()
	}()
	return nil
}

// Stop ends delivery and closes the backend.
func (fw *FilesWatcher) Stop() {
	close(fw.done)
	_ = fw.backend.Close()
	fw.wg.Wait()
}

func (fw *FilesWatcher) loop() {
	for {
		select {
		case ev, ok := <-fw.backend.Events():
			if !ok {
				return
			}
			fw.handle(ev)
		case err, ok := <-fw.backend.Errors():
			if !ok {
				return
			}
			fw.logger.Warning("watcher error: %v", err)
		case <-fw.done:
			return
		}
	}
}

func (fw *FilesWatcher) handle(ev Event) {
	if ev.Op == Created {
		// new directories join the watch set
		if info, err := os.Stat(ev.Path); err == nil && info.IsDir() {
			_ = fw.backend.Add(ev.Path)
			return
		}
	}

	if !fw.matches(ev.Path) {
		return
	}

	fw.mu.Lock()
	now := time.Now()
	if last, ok := fw.recent[ev.Path]; ok && now.Sub(last) < fw.debounce {
		fw.mu.Unlock()
		return
	}
	fw.recent[ev.Path] = now
	fw.mu.Unlock()

	if fw.calls.OnEvent != nil {
		fw.calls.OnEvent(ev)
	}
}

func (fw *FilesWatcher) matches(path string) bool {
	rel, err := filepath.Rel(fw.sets.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if fw.ignorer != nil && fw.ignorer.MatchesPath(rel) {
		return false
	}
	for _, pat := range fw.sets.Exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return false
		}
	}
	if len(fw.sets.Include) == 0 {
		return true
	}
	for _, pat := range fw.sets.Include {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
