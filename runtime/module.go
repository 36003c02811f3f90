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
package runtime

import "sync"

// Module is a loaded source file. The live module object persists for
// the life of the process; reloads mutate its namespace in place.
type Module struct {
	name  string
	file  string
	doc   string
	attrs *attrTable
}

// NewModule creates an empty module backed by file.
func NewModule(name, file string) *Module {
	return &Module{name: name, file: file, attrs: newAttrTable()}
}

func (*Module) Type() string { return "module" }

func (m *Module) Repr() string { return "<module '" + m.name + "'>" }

// Name returns the fully-qualified module name.
func (m *Module) Name() string { return m.name }

// File returns the backing source path.
func (m *Module) File() string { return m.file }

// Doc returns the module docstring.
func (m *Module) Doc() string { return m.doc }

// Attr returns the named module global.
func (m *Module) Attr(name string) (Value, bool) {
	return m.attrs.get(name)
}

// SetAttr binds a module global.
func (m *Module) SetAttr(name string, v Value) {
	m.attrs.set(name, v)
}

// DelAttr removes a module global.
func (m *Module) DelAttr(name string) {
	m.attrs.delete(name)
}

// AttrNames returns global names in binding order.
func (m *Module) AttrNames() []string {
	return m.attrs.order()
}

// Registry is the live module registry shared between the loader, the
// reload engine and the host. One source file may back more than one
// registered module name during transitional states, so the file index
// maps to a set.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Module
	byFile map[string]map[*Module]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Module),
		byFile: make(map[string]map[*Module]struct{}),
	}
}

// Register adds m under its name and file.
func (r *Registry) Register(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.name] = m
	set, ok := r.byFile[m.file]
	if !ok {
		set = make(map[*Module]struct{})
		r.byFile[m.file] = set
	}
	set[m] = struct{}{}
}

// Unregister removes m from both indexes.
func (r *Registry) Unregister(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[m.name] == m {
		delete(r.byName, m.name)
	}
	if set, ok := r.byFile[m.file]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(r.byFile, m.file)
		}
	}
}

// ByName returns the module registered under name.
func (r *Registry) ByName(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// ByFile returns all live modules backed by path.
func (r *Registry) ByFile(path string) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byFile[path]
	out := make([]*Module, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// Modules returns every registered module.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	return out
}
