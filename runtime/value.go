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

// Package runtime is the live interpreted module graph the reloader
// mutates. Modules are loaded from Python source via tree-sitter and
// evaluated into runtime objects. The objects are built for in-place
// mutation: functions dispatch through a swappable code slot, classes
// through a mutable base list and attribute table, so user-held
// references survive a reload.
package runtime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is any runtime object reachable from a module's namespace.
type Value interface {
	// Type returns the Python-style type name ("int", "function", ...)
	Type() string
	// Repr returns a printable rendering of the value
	Repr() string
}

// NoneType is the type of None.
type NoneType struct{}

// None is the singleton none value.
var None = NoneType{}

func (NoneType) Type() string { return "NoneType" }
func (NoneType) Repr() string { return "None" }

// Bool is a Python bool.
type Bool bool

func (Bool) Type() string { return "bool" }
func (b Bool) Repr() string {
	if b {
		return "True"
	}
	return "False"
}

// Int is a Python int.
type Int int64

func (Int) Type() string   { return "int" }
func (i Int) Repr() string { return strconv.FormatInt(int64(i), 10) }

// Float is a Python float.
type Float float64

func (Float) Type() string { return "float" }
func (f Float) Repr() string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Str is a Python str.
type Str string

func (Str) Type() string   { return "str" }
func (s Str) Repr() string { return strconv.Quote(string(s)) }

// List is a Python list. Lists have identity: two loads of the same
// literal are distinct objects.
type List struct {
	Items []Value
}

func NewList(items ...Value) *List { return &List{Items: items} }

func (*List) Type() string { return "list" }
func (l *List) Repr() string {
	parts := make([]string, len(l.Items))
	for i, it := range l.Items {
		parts[i] = it.Repr()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Dict is an insertion-ordered mapping with string keys. Non-string keys
// are stored under their repr, which keeps the diff join key stable.
type Dict struct {
	keys  []string
	items map[string]Value
}

func NewDict() *Dict {
	return &Dict{items: make(map[string]Value)}
}

func (*Dict) Type() string { return "dict" }

func (d *Dict) Repr() string {
	parts := make([]string, len(d.keys))
	for i, k := range d.keys {
		parts[i] = fmt.Sprintf("%q: %s", k, d.items[k].Repr())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value for key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Set binds key to v, keeping first-insertion order for existing keys.
func (d *Dict) Set(key string, v Value) {
	if _, ok := d.items[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.items[key] = v
}

// Delete removes key.
func (d *Dict) Delete(key string) {
	if _, ok := d.items[key]; !ok {
		return
	}
	delete(d.items, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Len returns the item count.
func (d *Dict) Len() int { return len(d.keys) }

// IsPrimitive reports whether v is a scalar small enough to duplicate
// between trees instead of aliasing through a Reference node.
func IsPrimitive(v Value) bool {
	switch v.(type) {
	case NoneType, Bool, Int, Float, Str:
		return true
	}
	return false
}

// Truthy implements Python truthiness for the supported values.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case NoneType:
		return false
	case Bool:
		return bool(t)
	case Int:
		return t != 0
	case Float:
		return t != 0
	case Str:
		return t != ""
	case *List:
		return len(t.Items) > 0
	case *Dict:
		return t.Len() > 0
	}
	return true
}

// Equal is structural equality: scalars by value, lists and dicts by
// deep comparison, everything else by identity.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case NoneType:
		_, ok := b.(NoneType)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return Float(av) == bv
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return av == Float(bv)
		}
		return false
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		ak := av.Keys()
		sort.Strings(ak)
		for _, k := range ak {
			bval, ok := bv.Get(k)
			if !ok {
				return false
			}
			aval, _ := av.Get(k)
			if !Equal(aval, bval) {
				return false
			}
		}
		return true
	}
	return a == b
}

// attrTable is an insertion-ordered attribute namespace shared by
// modules, classes and instances.
type attrTable struct {
	names  []string
	values map[string]Value
}

func newAttrTable() *attrTable {
	return &attrTable{values: make(map[string]Value)}
}

func (t *attrTable) get(name string) (Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

func (t *attrTable) set(name string, v Value) {
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = v
}

func (t *attrTable) delete(name string) {
	if _, ok := t.values[name]; !ok {
		return
	}
	delete(t.values, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i], t.names[i+1:]...)
			break
		}
	}
}

func (t *attrTable) order() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}
