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
	"fmt"
	"strings"

	"bennypowers.dev/molt/internal/logging"
	"bennypowers.dev/molt/runtime"
)

// DependencySource answers which modules transitively import a symbol.
// The dependency tracker implements it; a nil source means "no
// dependents".
type DependencySource interface {
	GetDependencies(moduleFile, usedName string) []*runtime.Module
}

// Pass is the execution context of one reload pass over one module.
type Pass struct {
	Logger logging.Logger
	Deps   DependencySource

	// RunModuleUpdate runs a sub-reload of a dependent module and
	// returns the actions it applied.
	RunModuleUpdate func(m *runtime.Module) ([]Action, error)

	// LiveModule is the module being mutated.
	LiveModule *runtime.Module

	// Applied is the trace of executed actions, in execution order.
	Applied []Action

	// remap joins new-tree identities to their old-tree counterparts
	// by full name.
	remap   map[runtime.Value]runtime.Value
	adopted map[*runtime.Class]bool
}

// Record appends an action to the applied trace.
func (p *Pass) Record(a Action) {
	p.Applied = append(p.Applied, a)
}

// adopt prepares a value created during the ephemeral re-import for
// assignment into the live module. Classes and functions that have a
// live counterpart are substituted by identity; ones that don't are
// rebound onto the live module so their global reads resolve against
// live state. Instances of re-imported classes get their class pointer
// rewritten to the live class, so the two never become disjoint type
// identities.
func (p *Pass) adopt(v runtime.Value) runtime.Value {
	switch t := v.(type) {
	case *runtime.Class:
		if old, ok := p.remap[v]; ok {
			return old
		}
		p.adoptClass(t)
		return t
	case *runtime.Function:
		if old, ok := p.remap[v]; ok {
			return old
		}
		t.RebindModule(p.LiveModule)
		return t
	case *runtime.Instance:
		if old, ok := p.remap[runtime.Value(t.Class())]; ok {
			t.SetClass(old.(*runtime.Class))
		}
		return t
	}
	return v
}

func (p *Pass) adoptClass(c *runtime.Class) {
	if p.adopted == nil {
		p.adopted = map[*runtime.Class]bool{}
	}
	if p.adopted[c] {
		return
	}
	p.adopted[c] = true

	c.RebindModule(p.LiveModule)
	bases := c.Bases()
	changed := false
	for i, b := range bases {
		if old, ok := p.remap[runtime.Value(b)]; ok {
			bases[i] = old.(*runtime.Class)
			changed = true
		}
	}
	if changed {
		c.SetBases(bases)
	}
	for _, name := range c.AttrNames() {
		v, _ := c.Attr(name)
		switch t := v.(type) {
		case *runtime.Function:
			t.RebindModule(p.LiveModule)
		case *runtime.Property:
			if t.Getter != nil {
				t.Getter.RebindModule(p.LiveModule)
			}
			if t.Setter != nil {
				t.Setter.RebindModule(p.LiveModule)
			}
		case *runtime.Class:
			p.adoptClass(t)
		}
	}
}

// Op is the action kind.
type Op int

const (
	OpAdd Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "Add"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	}
	return "Unknown"
}

// Action is one concrete mutation of the live module. String renders
// the stable trace line `{Kind}: {Variant}: {full_name}`.
type Action interface {
	String() string
	Execute(p *Pass) error
}

func traceLine(op Op, variant Kind, fullName string) string {
	return fmt.Sprintf("%s: %s: %s", op, variant, fullName)
}

// setOn binds name to v inside a container runtime object.
func setOn(parent runtime.Value, name string, v runtime.Value) error {
	switch t := parent.(type) {
	case *runtime.Module:
		t.SetAttr(name, v)
		return nil
	case *runtime.Class:
		t.SetAttr(name, v)
		return nil
	case *runtime.Dict:
		t.Set(name, v)
		return nil
	}
	return fmt.Errorf("cannot bind %q on %s", name, parent.Type())
}

func deleteOn(parent runtime.Value, name string) error {
	switch t := parent.(type) {
	case *runtime.Module:
		t.DelAttr(name)
		return nil
	case *runtime.Class:
		t.DelAttr(name)
		return nil
	case *runtime.Dict:
		t.Delete(name)
		return nil
	}
	return fmt.Errorf("cannot delete %q from %s", name, parent.Type())
}

// AddAction binds a freshly defined object into its container.
type AddAction struct {
	Variant  Kind
	FullName string
	Name     string
	Parent   runtime.Value
	Value    runtime.Value
}

func (a *AddAction) String() string {
	return traceLine(OpAdd, a.Variant, a.FullName)
}

func (a *AddAction) Execute(p *Pass) error {
	switch a.Variant {
	case KindPropertyGetter, KindPropertySetter:
		return addPropertyMember(a, p)
	}
	return setOn(a.Parent, a.Name, p.adopt(a.Value))
}

func addPropertyMember(a *AddAction, p *Pass) error {
	class, ok := a.Parent.(*runtime.Class)
	if !ok {
		return fmt.Errorf("property member %q outside a class", a.Name)
	}
	fn, ok := a.Value.(*runtime.Function)
	if !ok {
		return fmt.Errorf("property member %q is not a function", a.Name)
	}
	fn = p.adopt(fn).(*runtime.Function)
	attr := strings.TrimSuffix(a.Name, "__setter__")
	var prop *runtime.Property
	if existing, ok := class.Attr(attr); ok {
		prop, _ = existing.(*runtime.Property)
	}
	if prop == nil {
		prop = &runtime.Property{}
		class.SetAttr(attr, prop)
	}
	if a.Variant == KindPropertySetter {
		prop.Setter = fn
	} else {
		prop.Getter = fn
	}
	return nil
}

// DeleteAction unbinds a name from its container.
type DeleteAction struct {
	Variant  Kind
	FullName string
	Name     string
	Parent   runtime.Value
}

func (a *DeleteAction) String() string {
	return traceLine(OpDelete, a.Variant, a.FullName)
}

func (a *DeleteAction) Execute(p *Pass) error {
	switch a.Variant {
	case KindPropertyGetter, KindPropertySetter:
		class, ok := a.Parent.(*runtime.Class)
		if !ok {
			return fmt.Errorf("property member %q outside a class", a.Name)
		}
		attr := strings.TrimSuffix(a.Name, "__setter__")
		if existing, ok := class.Attr(attr); ok {
			if prop, isProp := existing.(*runtime.Property); isProp {
				if a.Variant == KindPropertySetter {
					prop.Setter = nil
				} else {
					prop.Getter = nil
				}
				if prop.Getter == nil && prop.Setter == nil {
					class.DelAttr(attr)
				}
				return nil
			}
		}
		return nil
	}
	return deleteOn(a.Parent, a.Name)
}

// UpdateCodeAction swaps a live function's code descriptor in place,
// preserving the function object's identity so every live reference
// (class table, decorator, cached callback) sees the new behaviour.
type UpdateCodeAction struct {
	Variant  Kind
	FullName string
	Old      *runtime.Function
	New      *runtime.Function
}

func (a *UpdateCodeAction) String() string {
	return traceLine(OpUpdate, a.Variant, a.FullName)
}

func (a *UpdateCodeAction) Execute(p *Pass) error {
	a.Old.SwapCode(a.New.Code())
	return nil
}

// UpdateValueAction rebinds a variable, class variable, dictionary item
// or reference to its new value.
type UpdateValueAction struct {
	Variant  Kind
	FullName string
	Name     string
	Parent   runtime.Value
	New      runtime.Value
}

func (a *UpdateValueAction) String() string {
	return traceLine(OpUpdate, a.Variant, a.FullName)
}

func (a *UpdateValueAction) Execute(p *Pass) error {
	return setOn(a.Parent, a.Name, p.adopt(a.New))
}

// UpdateClassAction rewrites a live class's base list to the live
// counterparts of its new bases. The class object keeps its identity;
// the MRO follows the base list.
type UpdateClassAction struct {
	FullName string
	Old      *runtime.Class
	New      *runtime.Class
}

func (a *UpdateClassAction) String() string {
	return traceLine(OpUpdate, KindClass, a.FullName)
}

func (a *UpdateClassAction) Execute(p *Pass) error {
	bases := a.New.Bases()
	mapped := make([]*runtime.Class, len(bases))
	for i, b := range bases {
		if old, ok := p.remap[runtime.Value(b)]; ok {
			mapped[i] = old.(*runtime.Class)
		} else {
			mapped[i] = b
		}
	}
	a.Old.SetBases(mapped)
	return nil
}

// RebuildClassAction replaces a class wholesale. Raised closures mean a
// minimal patch cannot preserve identity, so the fresh class object is
// adopted and rebound under the old name.
type RebuildClassAction struct {
	FullName string
	Name     string
	Parent   runtime.Value
	New      *runtime.Class
}

func (a *RebuildClassAction) String() string {
	return traceLine(OpUpdate, KindClass, a.FullName)
}

func (a *RebuildClassAction) Execute(p *Pass) error {
	p.adoptClass(a.New)
	return setOn(a.Parent, a.Name, a.New)
}

// ModuleUpdateAction runs a sub-reload of a dependent module and
// appends its applied actions to the current trace.
type ModuleUpdateAction struct {
	Module *runtime.Module
}

func (a *ModuleUpdateAction) String() string {
	return traceLine(OpUpdate, KindModule, a.Module.Name())
}

func (a *ModuleUpdateAction) Execute(p *Pass) error {
	if p.RunModuleUpdate == nil {
		return nil
	}
	applied, err := p.RunModuleUpdate(a.Module)
	p.Applied = append(p.Applied, applied...)
	return err
}
