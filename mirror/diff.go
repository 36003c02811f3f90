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
package mirror

import (
	"errors"
	"fmt"
	"strings"

	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/runtime"
)

// ErrParentReloadNeeded signals that a minimal patch would violate
// closure invariants: a method's free-variable list changed, so its
// container must be rebuilt. The differ recovers by escalating the
// enclosing class; when there is no enclosing class the error
// propagates and the driver falls back to a full reload.
var ErrParentReloadNeeded = errors.New("closure shape changed, parent reload needed")

// Diff computes the ordered action plan that transforms the live module
// mirrored by old into the state mirrored by new. Adds precede deletes,
// deletes precede updates; within adds and updates child nodes precede
// their containers.
func Diff(old, new *Tree, p *Pass) ([]Action, error) {
	p.LiveModule = old.Module
	p.remap = buildRemap(old, new)

	// same full name, different variant: the binding changed shape, so
	// it is replaced rather than updated
	replaced := map[string]bool{}
	for _, a := range old.Flat() {
		if b, ok := new.Lookup(a.FullName()); ok && b.Kind != a.Kind {
			if !referenceAlias(a.Kind, b.Kind) {
				replaced[a.FullName()] = true
			}
		}
	}

	var adds []Action
	for _, b := range new.FlatPostOrder() {
		name := b.FullName()
		_, inOld := old.Lookup(name)
		if inOld && !replaced[name] {
			continue
		}
		parent := resolveParent(old, b)
		adds = append(adds, &AddAction{
			Variant:  b.Kind,
			FullName: name,
			Name:     b.Name,
			Parent:   parent,
			Value:    b.Value,
		})
	}

	var deletes []Action
	for _, a := range old.Flat() {
		name := a.FullName()
		_, inNew := new.Lookup(name)
		if inNew && !replaced[name] {
			continue
		}
		// removing an import binding would break unrelated dependents
		if a.Kind == KindImport {
			continue
		}
		deletes = append(deletes, &DeleteAction{
			Variant:  a.Kind,
			FullName: name,
			Name:     a.Name,
			Parent:   a.Parent.Value,
		})
	}

	var updates []Action
	rebuild := map[string]*Node{} // class full name → old class node
	for _, a := range old.FlatPostOrder() {
		name := a.FullName()
		if replaced[name] {
			continue
		}
		b, ok := new.Lookup(name)
		if !ok {
			continue
		}
		acts, err := updateActions(old, a, b, p)
		if err != nil {
			if errors.Is(err, ErrParentReloadNeeded) {
				class := enclosingClass(a)
				if class == nil {
					return nil, err
				}
				rebuild[class.FullName()] = class
				continue
			}
			return nil, err
		}
		updates = append(updates, acts...)
	}

	if len(rebuild) > 0 {
		adds = pruneWithin(adds, rebuild)
		deletes = pruneWithin(deletes, rebuild)
		updates = pruneWithin(updates, rebuild)
		for fullName, classNode := range rebuild {
			newNode, ok := new.Lookup(fullName)
			if !ok {
				return nil, fmt.Errorf("class %s vanished during rebuild escalation", fullName)
			}
			logging.OrNop(p.Logger).Debug("rebuilding class %s: closure shape changed", fullName)
			updates = append(updates, &RebuildClassAction{
				FullName: fullName,
				Name:     classNode.Name,
				Parent:   classNode.Parent.Value,
				New:      newNode.Value.(*runtime.Class),
			})
		}
	}

	return append(append(adds, deletes...), updates...), nil
}

// buildRemap joins new-tree identities to old-tree identities by full
// name, for the value families whose identity is load-bearing: classes
// and functions. Assignments during execution substitute through it so
// a re-imported class or function never becomes a second, disjoint
// identity. Data values (lists, dicts, instances) are deliberately not
// joined; they diff by content.
func buildRemap(old, new *Tree) map[runtime.Value]runtime.Value {
	remap := make(map[runtime.Value]runtime.Value)
	for _, a := range old.Flat() {
		switch a.Value.(type) {
		case *runtime.Class, *runtime.Function:
		default:
			continue
		}
		if b, ok := new.Lookup(a.FullName()); ok {
			switch b.Value.(type) {
			case *runtime.Class, *runtime.Function:
				if _, dup := remap[b.Value]; !dup {
					remap[b.Value] = a.Value
				}
			}
		}
	}
	return remap
}

// referenceAlias tolerates a node flipping between a concrete variant
// and a Reference to the same value, which happens when binding order
// shifts which occurrence registers first.
func referenceAlias(a, b Kind) bool {
	return a == KindReference || b == KindReference
}

// resolveParent finds the container to mutate: the old tree's node when
// the container already exists live, otherwise the new container (a
// freshly added composite whose subtree is being populated before the
// composite itself is bound).
func resolveParent(old *Tree, b *Node) runtime.Value {
	parentName := b.Parent.FullName()
	if aParent, ok := old.Lookup(parentName); ok {
		return aParent.Value
	}
	return b.Parent.Value
}

func updateActions(old *Tree, a, b *Node, p *Pass) ([]Action, error) {
	switch {
	case a.Kind.isFunctionKind():
		oldFn := a.Value.(*runtime.Function)
		newFn := b.Value.(*runtime.Function)
		if oldFn.Code().Equal(newFn.Code()) {
			return nil, nil
		}
		if a.Kind == KindMethod || a.Kind == KindClassMethod {
			if !freeVarsMatch(oldFn.Code(), newFn.Code()) {
				return nil, ErrParentReloadNeeded
			}
		}
		return []Action{&UpdateCodeAction{
			Variant:  a.Kind,
			FullName: a.FullName(),
			Old:      oldFn,
			New:      newFn,
		}}, nil

	case a.Kind == KindReference:
		if p.remap[b.Value] == a.Value || ValuesEqual(a.Value, b.Value) {
			return nil, nil
		}
		return []Action{&UpdateValueAction{
			Variant:  a.Kind,
			FullName: a.FullName(),
			Name:     a.Name,
			Parent:   a.Parent.Value,
			New:      b.Value,
		}}, nil

	case a.Kind == KindVariable || a.Kind == KindClassVariable || a.Kind == KindDictionaryItem:
		if sameAliased(a, b, p) || ValuesEqual(a.Value, b.Value) {
			return nil, nil
		}
		acts := []Action{&UpdateValueAction{
			Variant:  a.Kind,
			FullName: a.FullName(),
			Name:     a.Name,
			Parent:   a.Parent.Value,
			New:      b.Value,
		}}
		// a rebound symbol cascades to every module that imported it
		usedName := ""
		switch a.Kind {
		case KindVariable:
			usedName = a.Name
		case KindClassVariable:
			usedName = a.Parent.Name
		}
		if usedName != "" && p.Deps != nil {
			for _, dep := range p.Deps.GetDependencies(old.Module.File(), usedName) {
				acts = append(acts, &ModuleUpdateAction{Module: dep})
			}
		}
		return acts, nil

	case a.Kind == KindClass:
		oldCls := a.Value.(*runtime.Class)
		newCls := b.Value.(*runtime.Class)
		if baseShape(oldCls) == baseShape(newCls) {
			return nil, nil
		}
		return []Action{&UpdateClassAction{
			FullName: a.FullName(),
			Old:      oldCls,
			New:      newCls,
		}}, nil
	}

	// Module, Dictionary, Import: containers recurse via their
	// children; imports are never updated
	return nil, nil
}

// sameAliased reports that the new value is the re-imported counterpart
// of exactly the old value, i.e. an unchanged alias.
func sameAliased(a, b *Node, p *Pass) bool {
	if runtime.IsPrimitive(b.Value) {
		return false
	}
	return p.remap[b.Value] == a.Value
}

func freeVarsMatch(a, b *runtime.Code) bool {
	if len(a.FreeVars) != len(b.FreeVars) {
		return false
	}
	for i := range a.FreeVars {
		if a.FreeVars[i] != b.FreeVars[i] {
			return false
		}
	}
	return true
}

// baseShape keys a class's base list by MRO rendering; identity of the
// bases is intentionally ignored (the ephemeral tree has fresh base
// objects with the same names).
func baseShape(c *runtime.Class) string {
	parts := []string{}
	for _, b := range c.Bases() {
		parts = append(parts, b.MROString())
	}
	return strings.Join(parts, " | ")
}

func enclosingClass(n *Node) *Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Kind == KindClass {
			return cur
		}
	}
	return nil
}

func pruneWithin(acts []Action, classes map[string]*Node) []Action {
	prefixes := make([]string, 0, len(classes))
	names := make(map[string]bool, len(classes))
	for fullName := range classes {
		prefixes = append(prefixes, fullName+".")
		names[fullName] = true
	}
	var out []Action
	for _, a := range acts {
		full := actionFullName(a)
		if names[full] {
			continue
		}
		within := false
		for _, p := range prefixes {
			if strings.HasPrefix(full, p) {
				within = true
				break
			}
		}
		if !within {
			out = append(out, a)
		}
	}
	return out
}

func actionFullName(a Action) string {
	switch t := a.(type) {
	case *AddAction:
		return t.FullName
	case *DeleteAction:
		return t.FullName
	case *UpdateCodeAction:
		return t.FullName
	case *UpdateValueAction:
		return t.FullName
	case *UpdateClassAction:
		return t.FullName
	case *RebuildClassAction:
		return t.FullName
	}
	return ""
}
