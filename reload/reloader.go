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

// Package reload plans and applies partial reloads: it re-imports an
// edited source file into an ephemeral object graph, diffs it against
// the live module, and executes the resulting action plan in place. The
// driver half watches source roots and escalates to a full reload when
// a partial pass cannot be trusted.
package reload

import (
	"fmt"

	"bennypowers.dev/molt/depgraph"
	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/mirror"
	"bennypowers.dev/molt/runtime"
)

// maxDependentDepth caps recursive dependent-module updates. Import
// cycles could otherwise revisit modules without bound.
const maxDependentDepth = 8

// PartialReloader runs one reload pass over one already-loaded module.
type PartialReloader struct {
	module  *runtime.Module
	root    string
	logger  logging.Logger
	loader  *runtime.Loader
	tracker *depgraph.Tracker
	depth   int
}

// New constructs a reloader for a live module. root is the project
// root; loader must be the loader that owns the live registry.
func New(module *runtime.Module, root string, logger logging.Logger, loader *runtime.Loader, tracker *depgraph.Tracker) *PartialReloader {
	return &PartialReloader{
		module:  module,
		root:    root,
		logger:  logging.OrNop(logger),
		loader:  loader,
		tracker: tracker,
	}
}

// Run executes one reload pass and returns the applied actions in
// execution order. Running twice with no intervening source change
// returns an empty list on the second call.
//
// A *runtime.SyntaxError from the re-import leaves the live module
// untouched. Any other error during planning also leaves it untouched;
// errors during execution leave partial progress in place, and the
// caller is expected to fall back to a full reload.
func (r *PartialReloader) Run() ([]mirror.Action, error) {
	// the ephemeral re-import must not record phantom dependencies
	wasEnabled := r.tracker.Enabled()
	r.tracker.Disable()
	fresh, err := r.loader.LoadEphemeral(r.module.File())
	if wasEnabled {
		r.tracker.Enable(nil)
	}
	if err != nil {
		return nil, err
	}

	oldTree := mirror.BuildTree(r.module)
	newTree := mirror.BuildTree(fresh)

	pass := &mirror.Pass{
		Logger:          r.logger,
		Deps:            r.tracker,
		RunModuleUpdate: r.runModuleUpdate,
	}
	actions, err := mirror.Diff(oldTree, newTree, pass)
	if err != nil {
		return nil, err
	}

	for _, a := range actions {
		pass.Record(a)
		r.logger.Debug("%s", a)
		if err := a.Execute(pass); err != nil {
			return pass.Applied, fmt.Errorf("%s: %w", a, err)
		}
	}
	return pass.Applied, nil
}

// runModuleUpdate recursively reloads a dependent module.
func (r *PartialReloader) runModuleUpdate(m *runtime.Module) ([]mirror.Action, error) {
	if r.depth >= maxDependentDepth {
		r.logger.Warning("dependent updates of %s exceed depth %d; likely an import cycle, stopping", m.Name(), maxDependentDepth)
		return nil, nil
	}
	sub := New(m, r.root, r.logger, r.loader, r.tracker)
	sub.depth = r.depth + 1
	return sub.Run()
}
