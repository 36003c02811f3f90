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
	"bennypowers.dev/molt/runtime"
)

// containerCtx says what kind of container a child is being classified
// under; it decides the leaf variant for plain values.
type containerCtx int

const (
	inModule containerCtx = iota
	inClass
	inDict
)

// BuildTree constructs the structural mirror of a module. Foreign
// objects (values defined by another module) are never descended into;
// repeated identities become Reference leaves.
func BuildTree(m *runtime.Module) *Tree {
	t := &Tree{
		Module: m,
		byName: make(map[string]*Node),
		seen:   make(map[runtime.Value]*Node),
	}
	t.Root = &Node{Kind: KindModule, Name: m.Name(), Value: m}
	t.byName[m.Name()] = t.Root
	t.seen[m] = t.Root

	for _, name := range m.AttrNames() {
		if isIgnoredName(name) {
			continue
		}
		v, _ := m.Attr(name)
		t.addValue(t.Root, name, v, inModule)
	}
	return t
}

func (t *Tree) register(n *Node) {
	t.byName[n.FullName()] = n
	if !runtime.IsPrimitive(n.Value) && n.Kind != KindReference {
		if _, ok := t.seen[n.Value]; !ok {
			t.seen[n.Value] = n
		}
	}
}

func (t *Tree) addValue(parent *Node, name string, v runtime.Value, ctx containerCtx) {
	// repeated identity: alias, not a second copy. Primitives are small
	// enough to duplicate.
	if !runtime.IsPrimitive(v) {
		if _, ok := t.seen[v]; ok {
			n := &Node{Kind: KindReference, Name: name, Value: v}
			parent.addChild(n)
			t.byName[n.FullName()] = n
			return
		}
	}

	switch val := v.(type) {
	case *runtime.Module:
		n := &Node{Kind: KindImport, Name: name, Value: v}
		parent.addChild(n)
		t.register(n)
		return

	case *runtime.Class:
		if val.DefModule() != t.Module {
			// foreign class: opaque leaf
			t.addLeaf(parent, name, v, ctx)
			return
		}
		n := &Node{Kind: KindClass, Name: name, Value: v}
		parent.addChild(n)
		t.register(n)
		for _, attr := range val.AttrNames() {
			if isIgnoredName(attr) {
				continue
			}
			av, _ := val.Attr(attr)
			t.addClassMember(n, attr, av)
		}
		return

	case *runtime.Function:
		if val.DefModule() != t.Module {
			t.addLeaf(parent, name, v, ctx)
			return
		}
		kind := KindFunction
		if ctx == inClass {
			if val.Code().Flags&runtime.FlagClassMethod != 0 {
				kind = KindClassMethod
			} else {
				kind = KindMethod
			}
		}
		n := &Node{Kind: kind, Name: name, Value: v}
		parent.addChild(n)
		t.register(n)
		return

	case *runtime.Dict:
		n := &Node{Kind: KindDictionary, Name: name, Value: v}
		parent.addChild(n)
		t.register(n)
		for _, key := range val.Keys() {
			item, _ := val.Get(key)
			t.addValue(n, key, item, inDict)
		}
		return
	}

	t.addLeaf(parent, name, v, ctx)
}

func (t *Tree) addClassMember(class *Node, name string, v runtime.Value) {
	if prop, ok := v.(*runtime.Property); ok {
		if prop.Getter != nil {
			n := &Node{Kind: KindPropertyGetter, Name: name, Value: prop.Getter}
			class.addChild(n)
			t.register(n)
		}
		if prop.Setter != nil {
			n := &Node{Kind: KindPropertySetter, Name: name + "__setter__", Value: prop.Setter}
			class.addChild(n)
			t.register(n)
		}
		return
	}
	t.addValue(class, name, v, inClass)
}

func (t *Tree) addLeaf(parent *Node, name string, v runtime.Value, ctx containerCtx) {
	kind := KindVariable
	switch ctx {
	case inClass:
		kind = KindClassVariable
	case inDict:
		kind = KindDictionaryItem
	}
	n := &Node{Kind: kind, Name: name, Value: v}
	parent.addChild(n)
	t.register(n)
}
