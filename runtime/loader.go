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

import (
	"fmt"
	"path/filepath"
	"strings"

	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/queries"
)

// ImportObserver receives one event per symbol-import during a live
// load. The dependency tracker subscribes; nothing else does.
type ImportObserver interface {
	// ObserveImport reports that the module backed by importerFile
	// bound symbols from imported. fromList is the `from ... import`
	// name list: empty for a plain `import x`, `["*"]` for a star
	// import.
	ObserveImport(importerFile string, imported *Module, fromList []string)
}

// Loader imports source files into module objects. A live load registers
// the module and reports imports to the observer; an ephemeral load does
// neither, producing the throw-away object graph the differ compares
// against.
type Loader struct {
	fs       platform.FileSystem
	registry *Registry
	roots    []string
	observer ImportObserver
	logger   logging.Logger
}

// NewLoader creates a loader resolving imports against roots.
func NewLoader(fs platform.FileSystem, registry *Registry, roots []string, observer ImportObserver, logger logging.Logger) *Loader {
	return &Loader{
		fs:       fs,
		registry: registry,
		roots:    roots,
		observer: observer,
		logger:   logging.OrNop(logger),
	}
}

// Registry returns the live module registry.
func (l *Loader) Registry() *Registry { return l.registry }

// ModuleName derives the module name from a source path.
func ModuleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".py")
}

// Load imports path as a live module: the result is registered and its
// imports are observed. Loading a path that is already registered
// returns the existing module untouched.
func (l *Loader) Load(path string) (*Module, error) {
	if mods := l.registry.ByFile(path); len(mods) > 0 {
		return mods[0], nil
	}
	return l.load(path, false)
}

// LoadEphemeral imports path into a throw-away module object. The
// registry is not touched for the new module itself and no imports are
// observed; modules it imports still resolve against (and, when
// missing, load into) the live registry, so the ephemeral graph aliases
// live objects exactly the way a re-import would.
func (l *Loader) LoadEphemeral(path string) (*Module, error) {
	return l.load(path, true)
}

func (l *Loader) load(path string, ephemeral bool) (*Module, error) {
	content, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	tree, err := queries.ParsePython(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if line, bad := queries.FirstError(root); bad {
		return nil, &SyntaxError{File: path, Line: line}
	}

	m := NewModule(ModuleName(path), path)
	if !ephemeral {
		// Register before evaluating so import cycles resolve to the
		// half-initialized module instead of recursing forever.
		l.registry.Register(m)
	}

	fr := &frame{globals: m, loader: l, content: content, ephemeral: ephemeral}
	if _, _, err := fr.execStmts(root); err != nil {
		if !ephemeral {
			l.registry.Unregister(m)
		}
		return nil, err
	}
	if !ephemeral {
		l.logger.Debug("loaded module %s from %s", m.Name(), path)
	}
	return m, nil
}

// importModule resolves an import by name: registry first, then the
// source roots (plus the importer's own directory), loading from disk on
// first use.
func (l *Loader) importModule(name string, importer *Module) (*Module, error) {
	if m, ok := l.registry.ByName(name); ok {
		return m, nil
	}
	dirs := append([]string{}, l.roots...)
	if importer != nil {
		dirs = append(dirs, filepath.Dir(importer.File()))
	}
	rel := filepath.Join(strings.Split(name, ".")...) + ".py"
	for _, dir := range dirs {
		candidate := filepath.Join(dir, rel)
		if l.fs.Exists(candidate) {
			return l.load(candidate, false)
		}
	}
	return nil, &ImportError{Name: name}
}

// observe forwards one import event to the tracker, if any.
func (l *Loader) observe(importer *Module, imported *Module, fromList []string, ephemeral bool) {
	if ephemeral || l.observer == nil || importer == nil || importer.File() == "" {
		return
	}
	l.observer.ObserveImport(importer.File(), imported, fromList)
}
