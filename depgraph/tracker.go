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

// Package depgraph records which module used which symbols of which
// other module, so that updating a symbol can transitively propagate to
// importers. The tracker is the only writer of the dependency map; the
// reload engine is the only reader.
package depgraph

import (
	"strings"
	"sync"

	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/runtime"
)

// Wildcard marks a `from x import *` dependency: the importer observes
// every symbol of the imported module.
const Wildcard = "*"

// maxTraversalDepth bounds the transitive importer walk. Pathological
// import cycles revisit modules; past this depth the walk stops and
// logs a cycle warning instead of recursing further.
const maxTraversalDepth = 8

// Dependency is one recorded import edge: importerFile bound the given
// names from the depended-on module. Names is empty for a plain
// `import x` and [Wildcard] for a star import.
type Dependency struct {
	ImporterFile string
	Names        []string
}

// isUsed reports whether this importer could observe a change to
// usedName. Wildcard importers always can; explicit importers can when
// the name appears in their import list, or when the final segment of
// usedName appears as literal text in the importer's source. An explicit
// importer whose source cannot be read is treated as not affected.
func (d *Dependency) isUsed(usedName string, fs platform.FileSystem) bool {
	parts := strings.Split(usedName, ".")
	for _, n := range d.Names {
		if n == Wildcard {
			return true
		}
	}
	src, err := fs.ReadFile(d.ImporterFile)
	if err != nil {
		// unreadable source: assume not affected
		return false
	}
	for _, n := range d.Names {
		for _, p := range parts {
			if n == p {
				return true
			}
		}
	}
	return strings.Contains(string(src), parts[len(parts)-1])
}

// Tracker is the process-wide dependency registry.
type Tracker struct {
	mu        sync.Mutex
	enabled   bool
	blacklist map[string]bool
	deps      map[string][]Dependency
	files     map[string]map[*runtime.Module]struct{}
	fs        platform.FileSystem
	logger    logging.Logger
}

// NewTracker creates a disabled tracker. Call Enable to start
// recording.
func NewTracker(fs platform.FileSystem, logger logging.Logger) *Tracker {
	return &Tracker{
		deps:   make(map[string][]Dependency),
		files:  make(map[string]map[*runtime.Module]struct{}),
		fs:     fs,
		logger: logging.OrNop(logger),
	}
}

// Enable starts recording import events. A blacklist of module names
// can exclude modules (and their import hierarchies) from tracking;
// blacklisted modules still import fine, they are just not recorded.
func (t *Tracker) Enable(blacklist []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
	if blacklist != nil {
		t.blacklist = make(map[string]bool, len(blacklist))
		for _, b := range blacklist {
			t.blacklist[b] = true
		}
	}
}

// Disable stops recording. Already-recorded edges are kept; the engine
// disables the tracker around ephemeral re-imports so diffing does not
// record phantom dependencies.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
}

// Enabled reports whether import events are being recorded.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Reset drops all recorded state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deps = make(map[string][]Dependency)
	t.files = make(map[string]map[*runtime.Module]struct{})
}

// ObserveImport implements runtime.ImportObserver.
func (t *Tracker) ObserveImport(importerFile string, imported *runtime.Module, fromList []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || t.blacklist[imported.Name()] {
		return
	}
	if importerFile == "" || imported.File() == "" {
		// no resolvable importer: skip the record silently
		return
	}

	set, ok := t.files[imported.File()]
	if !ok {
		set = make(map[*runtime.Module]struct{})
		t.files[imported.File()] = set
	}
	set[imported] = struct{}{}

	dep := Dependency{ImporterFile: importerFile, Names: fromList}
	for _, existing := range t.deps[imported.File()] {
		if existing.ImporterFile == dep.ImporterFile && stringSlicesEqual(existing.Names, dep.Names) {
			return
		}
	}
	t.deps[imported.File()] = append(t.deps[imported.File()], dep)
}

// RegisterModule indexes a live module under its file without recording
// an edge. The driver calls it for boot-loaded modules so that file →
// module resolution works before any import of them is seen.
func (t *Tracker) RegisterModule(m *runtime.Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.files[m.File()]
	if !ok {
		set = make(map[*runtime.Module]struct{})
		t.files[m.File()] = set
	}
	set[m] = struct{}{}
}

// DropModule removes a module from the file index, e.g. on full reload.
func (t *Tracker) DropModule(m *runtime.Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.files[m.File()]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(t.files, m.File())
		}
	}
}

// ModulesForFile returns the live modules backing a source path.
func (t *Tracker) ModulesForFile(path string) []*runtime.Module {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.files[path]
	out := make([]*runtime.Module, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// GetDependencies returns every module that (transitively) imports
// usedName from the module backed by moduleFile, in discovery order,
// deduplicated by module identity. Discovery order matters: nearer
// importers come first so cascading rewrites converge.
func (t *Tracker) GetDependencies(moduleFile string, usedName string) []*runtime.Module {
	t.mu.Lock()
	defer t.mu.Unlock()

	visited := map[string]bool{moduleFile: true}
	flat := t.flatten(moduleFile, usedName, visited, 0)

	var out []*runtime.Module
	seen := map[*runtime.Module]bool{}
	for _, d := range flat {
		for m := range t.files[d.ImporterFile] {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

func (t *Tracker) flatten(moduleFile, usedName string, visited map[string]bool, depth int) []Dependency {
	if depth > maxTraversalDepth {
		t.logger.Warning("dependency cycle involving %s exceeds depth %d; stopping traversal", moduleFile, maxTraversalDepth)
		return nil
	}

	var out []Dependency
	for _, d := range t.deps[moduleFile] {
		if visited[d.ImporterFile] {
			continue
		}
		if !d.isUsed(usedName, t.fs) {
			continue
		}
		visited[d.ImporterFile] = true
		out = append(out, d)
		out = append(out, t.flatten(d.ImporterFile, usedName, visited, depth+1)...)
	}
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
