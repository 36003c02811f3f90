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
	"math"
	"strconv"
	"strings"

	"bennypowers.dev/molt/internal/logging"
)

// Builtin is a native function exposed to evaluated source.
type Builtin struct {
	name string
	fn   func(args []Value) (Value, error)
}

func (*Builtin) Type() string { return "builtin_function_or_method" }

func (b *Builtin) Repr() string {
	return "<built-in function " + b.name + ">"
}

// Call invokes the native implementation.
func (b *Builtin) Call(args ...Value) (Value, error) {
	return b.fn(args)
}

var builtins map[string]*Builtin

// BuiltinNames returns the names visible to evaluated source.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	return names
}

func init() {
	builtins = map[string]*Builtin{}
	reg := func(name string, fn func(args []Value) (Value, error)) {
		builtins[name] = &Builtin{name: name, fn: fn}
	}

	reg("len", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len() takes exactly one argument")
		}
		switch t := args[0].(type) {
		case Str:
			return Int(len([]rune(string(t)))), nil
		case *List:
			return Int(len(t.Items)), nil
		case *Dict:
			return Int(t.Len()), nil
		}
		return nil, fmt.Errorf("object of type %s has no len()", args[0].Type())
	})

	reg("str", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Str(""), nil
		}
		return Str(ToString(args[0])), nil
	})

	reg("int", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Int(0), nil
		}
		switch t := args[0].(type) {
		case Int:
			return t, nil
		case Float:
			return Int(int64(t)), nil
		case Bool:
			if t {
				return Int(1), nil
			}
			return Int(0), nil
		case Str:
			i, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal for int(): %q", string(t))
			}
			return Int(i), nil
		}
		return nil, fmt.Errorf("int() argument must be a number or string")
	})

	reg("float", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Float(0), nil
		}
		if f, ok := toFloat(args[0]); ok {
			return Float(f), nil
		}
		if s, ok := args[0].(Str); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
			if err != nil {
				return nil, fmt.Errorf("could not convert string to float: %q", string(s))
			}
			return Float(f), nil
		}
		return nil, fmt.Errorf("float() argument must be a number or string")
	})

	reg("bool", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Bool(false), nil
		}
		return Bool(Truthy(args[0])), nil
	})

	reg("abs", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs() takes exactly one argument")
		}
		switch t := args[0].(type) {
		case Int:
			if t < 0 {
				return -t, nil
			}
			return t, nil
		case Float:
			return Float(math.Abs(float64(t))), nil
		}
		return nil, fmt.Errorf("bad operand type for abs(): %s", args[0].Type())
	})

	reg("min", func(args []Value) (Value, error) { return extreme(args, true) })
	reg("max", func(args []Value) (Value, error) { return extreme(args, false) })

	reg("sum", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("sum() takes exactly one argument")
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		var acc Value = Int(0)
		for _, it := range items {
			acc, err = binaryOp("+", acc, it)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	})

	reg("range", func(args []Value) (Value, error) {
		var start, stop, step int64 = 0, 0, 1
		get := func(v Value) (int64, error) {
			i, ok := v.(Int)
			if !ok {
				return 0, fmt.Errorf("range() argument must be int, got %s", v.Type())
			}
			return int64(i), nil
		}
		var err error
		switch len(args) {
		case 1:
			stop, err = get(args[0])
		case 2:
			if start, err = get(args[0]); err == nil {
				stop, err = get(args[1])
			}
		case 3:
			if start, err = get(args[0]); err == nil {
				if stop, err = get(args[1]); err == nil {
					step, err = get(args[2])
				}
			}
		default:
			return nil, fmt.Errorf("range expected 1 to 3 arguments, got %d", len(args))
		}
		if err != nil {
			return nil, err
		}
		if step == 0 {
			return nil, fmt.Errorf("range() arg 3 must not be zero")
		}
		items := []Value{}
		if step > 0 {
			for i := start; i < stop; i += step {
				items = append(items, Int(i))
			}
		} else {
			for i := start; i > stop; i += step {
				items = append(items, Int(i))
			}
		}
		return NewList(items...), nil
	})

	reg("print", func(args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ToString(a)
		}
		logging.Info("%s", strings.Join(parts, " "))
		return None, nil
	})

	reg("isinstance", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("isinstance expected 2 arguments, got %d", len(args))
		}
		cls, ok := args[1].(*Class)
		if !ok {
			return nil, fmt.Errorf("isinstance() arg 2 must be a class")
		}
		inst, ok := args[0].(*Instance)
		if !ok {
			return Bool(false), nil
		}
		return Bool(inst.Class().IsSubclassOf(cls)), nil
	})
}

func extreme(args []Value, minimum bool) (Value, error) {
	items := args
	if len(args) == 1 {
		var err error
		items, err = iterate(args[0])
		if err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("arg is an empty sequence")
	}
	best := items[0]
	for _, it := range items[1:] {
		lt, err := compare("<", it, best)
		if err != nil {
			return nil, err
		}
		if lt == minimum {
			best = it
		}
	}
	return best, nil
}

// ToString implements str() semantics.
func ToString(v Value) string {
	switch t := v.(type) {
	case Str:
		return string(t)
	case NoneType, Bool, Int, Float:
		return t.Repr()
	}
	return v.Repr()
}
