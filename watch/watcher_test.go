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
package watch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/molt/watch"
)

type recorder struct {
	mu     sync.Mutex
	events []watch.Event
}

func (r *recorder) record(ev watch.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []watch.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]watch.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) []watch.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(r.snapshot()))
	return nil
}

func newWatcher(t *testing.T, sets watch.Sets) (*watch.MockBackend, *recorder) {
	t.Helper()
	backend := watch.NewMockBackend()
	rec := &recorder{}
	fw := watch.New(sets, watch.Callbacks{OnEvent: rec.record}, backend, nil)
	fw.SetDebounce(50 * time.Millisecond)
	require.NoError(t, fw.Start())
	t.Cleanup(fw.Stop)
	return backend, rec
}

func TestEventDelivery(t *testing.T) {
	backend, rec := newWatcher(t, watch.Sets{
		Root:    "/proj",
		Include: []string{"**/*.py"},
	})

	backend.TriggerEvent("/proj/carwash.py", watch.Modified)
	evs := rec.waitFor(t, 1)
	assert.Equal(t, "/proj/carwash.py", evs[0].Path)
	assert.Equal(t, watch.Modified, evs[0].Op)
}

func TestRootIsWatched(t *testing.T) {
	backend, _ := newWatcher(t, watch.Sets{Root: "/proj"})
	assert.Contains(t, backend.WatchedPaths(), "/proj")
}

func TestOpsPassThrough(t *testing.T) {
	backend, rec := newWatcher(t, watch.Sets{Root: "/proj"})

	backend.TriggerEvent("/proj/a.py", watch.Created)
	backend.TriggerEvent("/proj/b.py", watch.Moved)
	backend.TriggerEvent("/proj/c.py", watch.Deleted)
	evs := rec.waitFor(t, 3)

	assert.Equal(t, watch.Created, evs[0].Op)
	assert.Equal(t, watch.Moved, evs[1].Op)
	assert.Equal(t, watch.Deleted, evs[2].Op)
}

func TestIncludeExcludeFiltering(t *testing.T) {
	backend, rec := newWatcher(t, watch.Sets{
		Root:    "/proj",
		Include: []string{"**/*.py"},
		Exclude: []string{"**/__pycache__/**"},
	})

	backend.TriggerEvent("/proj/notes.txt", watch.Modified)
	backend.TriggerEvent("/proj/__pycache__/carwash.py", watch.Modified)
	backend.TriggerEvent("/proj/carwash.py", watch.Modified)

	evs := rec.waitFor(t, 1)
	require.Len(t, evs, 1, "only the matching source file passes the filters")
	assert.Equal(t, "/proj/carwash.py", evs[0].Path)
}

func TestDebounceCoalescesSaveStorm(t *testing.T) {
	backend, rec := newWatcher(t, watch.Sets{Root: "/proj"})

	backend.TriggerEvent("/proj/carwash.py", watch.Modified)
	backend.TriggerEvent("/proj/carwash.py", watch.Modified)
	backend.TriggerEvent("/proj/carwash.py", watch.Modified)

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "a save storm coalesces to one event")

	backend.TriggerEvent("/proj/carwash.py", watch.Modified)
	rec.waitFor(t, 2)
}
