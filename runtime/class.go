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
	"strings"
)

// Class is a user-defined class. The base list and attribute table are
// mutable in place so the class object keeps its identity across
// reloads; already-constructed instances continue to dispatch through
// it and observe updated methods.
type Class struct {
	name     string
	qualName string
	def      *Module
	bases    []*Class
	attrs    *attrTable
	doc      string
}

// NewClass creates a class defined in module def with the given bases.
func NewClass(name, qualName string, def *Module, bases []*Class) *Class {
	return &Class{
		name:     name,
		qualName: qualName,
		def:      def,
		bases:    bases,
		attrs:    newAttrTable(),
	}
}

func (*Class) Type() string { return "type" }

func (c *Class) Repr() string { return "<class '" + c.qualName + "'>" }

// Name returns the unqualified class name.
func (c *Class) Name() string { return c.name }

// QualName returns the dotted name within the defining module.
func (c *Class) QualName() string { return c.qualName }

// DefModule returns the module the class was defined in.
func (c *Class) DefModule() *Module { return c.def }

// Doc returns the docstring.
func (c *Class) Doc() string { return c.doc }

// SetDoc sets the docstring.
func (c *Class) SetDoc(doc string) { c.doc = doc }

// Bases returns the direct base classes.
func (c *Class) Bases() []*Class {
	out := make([]*Class, len(c.bases))
	copy(out, c.bases)
	return out
}

// SetBases rewrites the base list in place.
func (c *Class) SetBases(bases []*Class) {
	c.bases = bases
}

// RebindModule repoints the class's defining module at m; see
// Function.RebindModule.
func (c *Class) RebindModule(m *Module) { c.def = m }

// Attr returns the class's own attribute (no MRO walk).
func (c *Class) Attr(name string) (Value, bool) {
	return c.attrs.get(name)
}

// SetAttr binds an attribute on the class itself.
func (c *Class) SetAttr(name string, v Value) {
	c.attrs.set(name, v)
}

// DelAttr removes the class's own attribute.
func (c *Class) DelAttr(name string) {
	c.attrs.delete(name)
}

// AttrNames returns the class's own attribute names in definition order.
func (c *Class) AttrNames() []string {
	return c.attrs.order()
}

// MRO computes the method resolution order: C3 linearization, falling
// back to a left-to-right depth-first walk when C3 has no solution.
func (c *Class) MRO() []*Class {
	if mro, ok := c3Linearize(c); ok {
		return mro
	}
	seen := map[*Class]bool{}
	var out []*Class
	var walk func(k *Class)
	walk = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for _, b := range k.bases {
			walk(b)
		}
	}
	walk(c)
	return out
}

// MROString renders the MRO as the classes' qualified names joined by
// " -> ". The diff engine uses it
// as the base-shape key: an unchanged MROString means the class's base
// list kept its shape.
func (c *Class) MROString() string {
	parts := []string{}
	for _, k := range c.MRO() {
		parts = append(parts, k.qualName)
	}
	return strings.Join(parts, " -> ")
}

func c3Linearize(c *Class) ([]*Class, bool) {
	seqs := [][]*Class{}
	for _, b := range c.bases {
		bm, ok := c3Linearize(b)
		if !ok {
			return nil, false
		}
		seqs = append(seqs, bm)
	}
	if len(c.bases) > 0 {
		seqs = append(seqs, c.Bases())
	}
	merged, ok := c3Merge(seqs)
	if !ok {
		return nil, false
	}
	return append([]*Class{c}, merged...), true
}

func c3Merge(seqs [][]*Class) ([]*Class, bool) {
	var out []*Class
	for {
		nonEmpty := false
		for _, s := range seqs {
			if len(s) > 0 {
				nonEmpty = true
				break
			}
		}
		if !nonEmpty {
			return out, true
		}
		var head *Class
		for _, s := range seqs {
			if len(s) == 0 {
				continue
			}
			cand := s[0]
			inTail := false
			for _, t := range seqs {
				for _, k := range t[1:] {
					if k == cand {
						inTail = true
						break
					}
				}
				if inTail {
					break
				}
			}
			if !inTail {
				head = cand
				break
			}
		}
		if head == nil {
			return nil, false
		}
		out = append(out, head)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

// Lookup resolves name through the MRO, returning the owning class.
func (c *Class) Lookup(name string) (Value, *Class, bool) {
	for _, k := range c.MRO() {
		if v, ok := k.attrs.get(name); ok {
			return v, k, true
		}
	}
	return nil, nil, false
}

// IsSubclassOf reports whether o appears in c's MRO.
func (c *Class) IsSubclassOf(o *Class) bool {
	for _, k := range c.MRO() {
		if k == o {
			return true
		}
	}
	return false
}

// Call instantiates the class, running __init__ when present.
func (c *Class) Call(args ...Value) (Value, error) {
	inst := NewInstance(c)
	if init, _, ok := c.Lookup("__init__"); ok {
		fn, ok := init.(*Function)
		if !ok {
			return nil, fmt.Errorf("%s.__init__ is not a function", c.qualName)
		}
		if _, err := callFunction(fn, append([]Value{inst}, args...), nil); err != nil {
			return nil, err
		}
	} else if len(args) > 0 {
		return nil, fmt.Errorf("%s() takes no arguments (%d given)", c.name, len(args))
	}
	return inst, nil
}

// Instance is an object of a user-defined class. It holds a pointer to
// its class, never a copy: when the reloader patches the class, method
// dispatch on existing instances yields the new behaviour.
type Instance struct {
	class *Class
	attrs *attrTable
}

// NewInstance creates an empty instance of class.
func NewInstance(class *Class) *Instance {
	return &Instance{class: class, attrs: newAttrTable()}
}

func (i *Instance) Type() string { return i.class.name }

func (i *Instance) Repr() string {
	return "<" + i.class.qualName + " object>"
}

// Class returns the instance's class.
func (i *Instance) Class() *Class { return i.class }

// SetClass rewrites the instance's class pointer. The reload engine
// uses it to substitute the live counterpart for a class created
// during an ephemeral re-import, so the two never coexist as disjoint
// type identities.
func (i *Instance) SetClass(c *Class) { i.class = c }

// Attr resolves an attribute: instance dict first, then the class MRO.
// Functions found on the class bind to the instance; properties invoke
// their getter.
func (i *Instance) Attr(name string) (Value, error) {
	if v, ok := i.attrs.get(name); ok {
		return v, nil
	}
	v, _, ok := i.class.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("'%s' object has no attribute %q", i.class.name, name)
	}
	switch t := v.(type) {
	case *Function:
		if t.Code().Flags&FlagStaticMethod != 0 {
			return t, nil
		}
		if t.Code().Flags&FlagClassMethod != 0 {
			return &BoundMethod{Recv: i.class, Fn: t}, nil
		}
		return &BoundMethod{Recv: i, Fn: t}, nil
	case *Property:
		if t.Getter == nil {
			return nil, fmt.Errorf("property %q has no getter", name)
		}
		return callFunction(t.Getter, []Value{i}, nil)
	}
	return v, nil
}

// SetAttr assigns into the instance dict, honouring property setters
// defined on the class.
func (i *Instance) SetAttr(name string, v Value) error {
	if cv, _, ok := i.class.Lookup(name); ok {
		if prop, isProp := cv.(*Property); isProp {
			if prop.Setter == nil {
				return fmt.Errorf("property %q of %s has no setter", name, i.class.name)
			}
			_, err := callFunction(prop.Setter, []Value{i, v}, nil)
			return err
		}
	}
	i.attrs.set(name, v)
	return nil
}

// AttrNames returns the instance's own attribute names.
func (i *Instance) AttrNames() []string {
	return i.attrs.order()
}
