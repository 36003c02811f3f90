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

// Package mirror builds a typed structural tree over a live module and
// diffs it against a tree built from an ephemeral re-import of the same
// file. The diff yields an ordered plan of Add/Update/Delete actions
// that mutate the live module in place.
package mirror

import (
	"strings"

	"bennypowers.dev/molt/runtime"
)

// Kind is the node variant.
type Kind int

const (
	KindModule Kind = iota
	KindClass
	KindDictionary
	KindFunction
	KindMethod
	KindClassMethod
	KindPropertyGetter
	KindPropertySetter
	KindVariable
	KindClassVariable
	KindDictionaryItem
	KindImport
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "Module"
	case KindClass:
		return "Class"
	case KindDictionary:
		return "Dictionary"
	case KindFunction:
		return "Function"
	case KindMethod:
		return "Method"
	case KindClassMethod:
		return "ClassMethod"
	case KindPropertyGetter:
		return "PropertyGetter"
	case KindPropertySetter:
		return "PropertySetter"
	case KindVariable:
		return "Variable"
	case KindClassVariable:
		return "ClassVariable"
	case KindDictionaryItem:
		return "DictionaryItem"
	case KindImport:
		return "Import"
	case KindReference:
		return "Reference"
	}
	return "Unknown"
}

// IsContainer reports whether nodes of this kind own children.
func (k Kind) IsContainer() bool {
	switch k {
	case KindModule, KindClass, KindDictionary:
		return true
	}
	return false
}

// isFunctionKind reports whether the node diffs by code descriptor.
func (k Kind) isFunctionKind() bool {
	switch k {
	case KindFunction, KindMethod, KindClassMethod, KindPropertyGetter, KindPropertySetter:
		return true
	}
	return false
}

// Node is one entry in the structural tree. Nodes own their children;
// within one tree no two nodes share a full name.
type Node struct {
	Kind     Kind
	Name     string
	Value    runtime.Value
	Parent   *Node
	children []*Node
}

// FullName is the dotted path from the module root; it is the join key
// between the old and new trees.
func (n *Node) FullName() string {
	if n.Parent == nil {
		return n.Name
	}
	return n.Parent.FullName() + "." + n.Name
}

// Children returns the node's children in definition order.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the named child.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) addChild(c *Node) {
	c.Parent = n
	n.children = append(n.children, c)
}

func (n *Node) String() string {
	return n.Kind.String() + ": " + n.FullName()
}

// Tree is a transient structural mirror of one module: built at the
// start of a reload pass, discarded at the end.
type Tree struct {
	Root   *Node
	Module *runtime.Module

	byName map[string]*Node
	// seen maps runtime identity to the first node registered for it;
	// repeated identities become Reference leaves, which keeps cyclic
	// object graphs finite and prevents duplicate mutation.
	seen map[runtime.Value]*Node
}

// Lookup finds a node by full name.
func (t *Tree) Lookup(fullName string) (*Node, bool) {
	n, ok := t.byName[fullName]
	return n, ok
}

// Flat returns every node except the root, pre-order.
func (t *Tree) Flat() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// FlatPostOrder returns every node except the root, children before
// their containers. Add and update plans run in this order so that
// composites observe already-patched members.
func (t *Tree) FlatPostOrder() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.children {
			walk(c)
			out = append(out, c)
		}
	}
	walk(t.Root)
	return out
}

// ignored names at module and class level: interpreter bookkeeping that
// must never be diffed or rebound. Dunder methods (__init__, __repr__,
// ...) are user behaviour and stay diffable.
var ignoredNames = map[string]bool{
	"__name__":        true,
	"__file__":        true,
	"__doc__":         true,
	"__builtins__":    true,
	"__module__":      true,
	"__qualname__":    true,
	"__package__":     true,
	"__cached__":      true,
	"__dict__":        true,
	"__weakref__":     true,
	"__annotations__": true,
}

func isIgnoredName(name string) bool {
	if ignoredNames[name] {
		return true
	}
	// cache attributes of hashing machinery
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && strings.Contains(name, "hash")
}
