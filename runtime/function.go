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
	"sync/atomic"
)

// Function is a user-defined function. Behaviour lives behind an atomic
// code pointer: swapping the pointer retargets every live reference at
// once, which is what keeps decorated handlers, callbacks and method
// tables current across a partial reload.
type Function struct {
	name     string
	qualName string
	def      *Module
	code     atomic.Pointer[Code]
	free     map[string]Value // closure snapshot for nested functions
}

// NewFunction creates a function defined in module def.
func NewFunction(name, qualName string, def *Module, code *Code) *Function {
	f := &Function{name: name, qualName: qualName, def: def}
	f.code.Store(code)
	return f
}

func (*Function) Type() string { return "function" }

func (f *Function) Repr() string {
	return "<function " + f.qualName + ">"
}

// Name returns the unqualified name.
func (f *Function) Name() string { return f.name }

// QualName returns the dotted name within the defining module.
func (f *Function) QualName() string { return f.qualName }

// DefModule returns the module the function was defined in.
func (f *Function) DefModule() *Module { return f.def }

// Code returns the current code descriptor.
func (f *Function) Code() *Code { return f.code.Load() }

// SwapCode replaces the descriptor in place, preserving the function's
// identity.
func (f *Function) SwapCode(c *Code) { f.code.Store(c) }

// RebindModule repoints the function's global namespace at m. The
// reload engine calls this when adopting a function created during an
// ephemeral re-import into the live module, so global reads resolve
// against live state rather than the throw-away copy.
func (f *Function) RebindModule(m *Module) { f.def = m }

// Call invokes the function with positional args.
func (f *Function) Call(args ...Value) (Value, error) {
	return callFunction(f, args, nil)
}

// BoundMethod pairs a receiver with a function. Produced by attribute
// lookup on instances (and by classmethod lookup on classes).
type BoundMethod struct {
	Recv Value
	Fn   *Function
}

func (*BoundMethod) Type() string { return "method" }

func (m *BoundMethod) Repr() string {
	return "<bound method " + m.Fn.qualName + ">"
}

// Call invokes the underlying function with the receiver prepended.
func (m *BoundMethod) Call(args ...Value) (Value, error) {
	return callFunction(m.Fn, append([]Value{m.Recv}, args...), nil)
}

// Property is a property descriptor holding fget and optionally fset.
type Property struct {
	Getter *Function
	Setter *Function
}

func (*Property) Type() string { return "property" }

func (p *Property) Repr() string {
	name := ""
	if p.Getter != nil {
		name = p.Getter.qualName
	}
	return "<property " + name + ">"
}

// Callable is anything invocable from evaluated source.
type Callable interface {
	Value
	Call(args ...Value) (Value, error)
}
