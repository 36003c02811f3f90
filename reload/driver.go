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
package reload

import (
	"errors"
	"sync"

	"bennypowers.dev/molt/depgraph"
	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/mirror"
	"bennypowers.dev/molt/runtime"
	"bennypowers.dev/molt/watch"
)

// Callbacks is the host seam around one source root.
type Callbacks struct {
	// OnReloadStart fires before planning begins.
	OnReloadStart func()
	// AfterPartialReload fires on success with the source path and the
	// ordered applied actions.
	AfterPartialReload func(path string, actions []mirror.Action)
	// AfterFullReload fires after the fallback path completes.
	AfterFullReload func()
	// OnReloadError fires when planning failed on a syntax error, in which
	// case the live module is untouched, and with the error of a failed
	// full-reload fallback.
	OnReloadError func(err error)
}

// Driver turns file events into reload passes. It serializes passes
// through a single reload lock and coalesces events that arrive while a
// pass is running to at most one pending reload per path.
type Driver struct {
	root    string
	logger  logging.Logger
	loader  *runtime.Loader
	tracker *depgraph.Tracker
	calls   Callbacks

	// reloadMu is the reload lock: exclusive with command execution in
	// the host, held for the whole of one pass including recursive
	// dependent-module updates. Hosts coordinate via Lock/Unlock.
	reloadMu sync.Mutex

	mu         sync.Mutex
	queue      []string
	queued     map[string]bool
	processing bool
}

// NewDriver wires the engine's collaborators together.
func NewDriver(root string, logger logging.Logger, loader *runtime.Loader, tracker *depgraph.Tracker, calls Callbacks) *Driver {
	return &Driver{
		root:    root,
		logger:  logging.OrNop(logger),
		loader:  loader,
		tracker: tracker,
		calls:   calls,
		queued:  make(map[string]bool),
	}
}

// Lock acquires the reload lock, blocking reloads. Hosts take it while
// executing commands; pending events drain once it is released.
func (d *Driver) Lock() { d.reloadMu.Lock() }

// Unlock releases the reload lock.
func (d *Driver) Unlock() { d.reloadMu.Unlock() }

// OnSourceEvent is the watch.Callbacks entry point for source roots.
// Events for files that back no live module are dropped. Events queued
// during a pass are flushed before the lock is released.
func (d *Driver) OnSourceEvent(ev watch.Event) {
	if ev.Op == watch.Deleted {
		// deleting a module's source does not tear the module down;
		// the next edit that recreates the file reloads it
		d.logger.Debug("source %s deleted, keeping live module", ev.Path)
		return
	}

	d.mu.Lock()
	if !d.queued[ev.Path] {
		d.queued[ev.Path] = true
		d.queue = append(d.queue, ev.Path)
	}
	if d.processing {
		d.mu.Unlock()
		return
	}
	d.processing = true
	d.mu.Unlock()

	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.processing = false
			d.mu.Unlock()
			return
		}
		path := d.queue[0]
		d.queue = d.queue[1:]
		delete(d.queued, path)
		d.mu.Unlock()

		d.reloadPath(path)
	}
}

func (d *Driver) reloadPath(path string) {
	modules := d.loader.Registry().ByFile(path)
	if len(modules) == 0 {
		d.logger.Debug("no live module for %s, dropping event", path)
		return
	}

	if d.calls.OnReloadStart != nil {
		d.calls.OnReloadStart()
	}

	for _, module := range modules {
		d.logger.Info("partial reload of %s", module.Name())
		reloader := New(module, d.root, d.logger, d.loader, d.tracker)
		actions, err := reloader.Run()
		switch {
		case err == nil:
			if d.calls.AfterPartialReload != nil {
				d.calls.AfterPartialReload(path, actions)
			}
		case isSyntaxError(err):
			d.logger.Error("%v", err)
			if d.calls.OnReloadError != nil {
				d.calls.OnReloadError(err)
			}
			return
		default:
			d.logger.Error("partial reload of %s failed: %v; falling back to full reload", module.Name(), err)
			if fullErr := d.FullReload(path); fullErr != nil {
				d.logger.Error("full reload of %s failed: %v", path, fullErr)
				if d.calls.OnReloadError != nil {
					d.calls.OnReloadError(fullErr)
				}
				return
			}
			if d.calls.AfterFullReload != nil {
				d.calls.AfterFullReload()
			}
		}
	}
}

// FullReload tears down every module backed by path, drops it from the
// registry and the tracker's file index, and re-imports it from disk.
// Existing references to the old module objects keep the old state;
// full reload trades reference stability for correctness.
func (d *Driver) FullReload(path string) error {
	registry := d.loader.Registry()
	old := registry.ByFile(path)
	for _, m := range old {
		registry.Unregister(m)
		d.tracker.DropModule(m)
	}
	m, err := d.loader.Load(path)
	if err != nil {
		// keep the old modules registered so the next edit can retry
		for _, o := range old {
			registry.Register(o)
			d.tracker.RegisterModule(o)
		}
		return err
	}
	d.tracker.RegisterModule(m)
	return nil
}

func isSyntaxError(err error) bool {
	var syntaxErr *runtime.SyntaxError
	return errors.As(err, &syntaxErr)
}
