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
package watch

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Backend is the raw event source a FilesWatcher drains. It speaks the
// reloader's own vocabulary (Event, Op): whatever the platform reports
// is translated before it enters the pipeline. The production backend
// wraps fsnotify; tests trigger a MockBackend by hand.
type Backend interface {
	// Add starts watching the named file or directory
	Add(name string) error

	// Close stops the backend and releases resources
	Close() error

	// Events returns the channel of translated events
	Events() <-chan Event

	// Errors returns the channel of backend errors
	Errors() <-chan error
}

// translateOp maps a raw fsnotify operation onto the reloader's event
// vocabulary. Chmod-only events are dropped here, at the boundary:
// editors touch permissions constantly and no reload decision hangs on
// them.
func translateOp(raw fsnotify.Op) (Op, bool) {
	switch {
	case raw.Has(fsnotify.Create):
		return Created, true
	case raw.Has(fsnotify.Write):
		return Modified, true
	case raw.Has(fsnotify.Rename):
		return Moved, true
	case raw.Has(fsnotify.Remove):
		return Deleted, true
	}
	return 0, false
}

// FSNotifyBackend is the production Backend.
type FSNotifyBackend struct {
	watcher   *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFSNotifyBackend creates a backend over a fresh fsnotify watcher.
func NewFSNotifyBackend() (*FSNotifyBackend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	b := &FSNotifyBackend{
		watcher: watcher,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.forward()
	return b, nil
}

func (b *FSNotifyBackend) Add(name string) error {
	return b.watcher.Add(name)
}

func (b *FSNotifyBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.watcher.Close()
		b.wg.Wait()
		close(b.events)
		close(b.errors)
	})
	return err
}

func (b *FSNotifyBackend) Events() <-chan Event {
	return b.events
}

func (b *FSNotifyBackend) Errors() <-chan error {
	return b.errors
}

// forward drains fsnotify until the backend closes, translating each
// raw operation as it crosses into the reloader's world.
func (b *FSNotifyBackend) forward() {
	defer b.wg.Done()
	for {
		select {
		case raw, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			op, relevant := translateOp(raw.Op)
			if !relevant {
				continue
			}
			select {
			case b.events <- Event{Path: raw.Name, Op: op}:
			case <-b.done:
				return
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}

// MockBackend is a manually triggered Backend for tests: no filesystem,
// no goroutines, events appear exactly when a test says so.
type MockBackend struct {
	mu      sync.Mutex
	watched map[string]bool
	events  chan Event
	errors  chan error
	closed  bool
}

// NewMockBackend creates an idle mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		watched: make(map[string]bool),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
	}
}

func (m *MockBackend) Add(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("backend is closed")
	}
	m.watched[name] = true
	return nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	close(m.errors)
	return nil
}

func (m *MockBackend) Events() <-chan Event {
	return m.events
}

func (m *MockBackend) Errors() <-chan error {
	return m.errors
}

// TriggerEvent injects an event as though the filesystem reported it.
func (m *MockBackend) TriggerEvent(path string, op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- Event{Path: path, Op: op}
}

// TriggerError injects a backend error.
func (m *MockBackend) TriggerError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.errors <- err
}

// WatchedPaths returns the currently watched paths, for assertions.
func (m *MockBackend) WatchedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.watched))
	for p := range m.watched {
		paths = append(paths, p)
	}
	return paths
}
