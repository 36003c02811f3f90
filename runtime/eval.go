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

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ctl is statement-level control flow.
type ctl int

const (
	ctlNone ctl = iota
	ctlReturn
	ctlBreak
	ctlContinue
)

// frame is one evaluation scope. locals is nil at module level, where
// assignments bind module globals; class is non-nil while a class body
// executes, where assignments bind class attributes.
type frame struct {
	globals     *Module
	locals      *attrTable
	class       *Class
	content     []byte
	loader      *Loader
	ephemeral   bool
	captured    map[string]Value
	globalDecls map[string]bool
	stmtCount   int
}

func (fr *frame) text(n *ts.Node) string {
	return string(fr.content[n.StartByte():n.EndByte()])
}

// execStmts runs the named children of a module or block node.
func (fr *frame) execStmts(n *ts.Node) (ctl, Value, error) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		c, v, err := fr.execStmt(child)
		if err != nil {
			return ctlNone, nil, err
		}
		if c != ctlNone {
			return c, v, nil
		}
	}
	return ctlNone, nil, nil
}

func (fr *frame) execStmt(n *ts.Node) (ctl, Value, error) {
	defer func() { fr.stmtCount++ }()
	switch n.Kind() {
	case "expression_statement":
		inner := n.NamedChild(0)
		if inner == nil {
			return ctlNone, nil, nil
		}
		switch inner.Kind() {
		case "assignment":
			return ctlNone, nil, fr.execAssignment(inner)
		case "augmented_assignment":
			return ctlNone, nil, fr.execAugmented(inner)
		case "string":
			if fr.stmtCount == 0 {
				if doc, err := fr.eval(inner); err == nil {
					if s, ok := doc.(Str); ok {
						if fr.class != nil {
							fr.class.SetDoc(string(s))
						} else if fr.locals == nil {
							fr.globals.doc = string(s)
						}
					}
				}
				return ctlNone, nil, nil
			}
			_, err := fr.eval(inner)
			return ctlNone, nil, err
		default:
			_, err := fr.eval(inner)
			return ctlNone, nil, err
		}
	case "function_definition":
		return ctlNone, nil, fr.execFunctionDef(n, nil)
	case "decorated_definition":
		return ctlNone, nil, fr.execDecorated(n)
	case "class_definition":
		return ctlNone, nil, fr.execClassDef(n)
	case "import_statement":
		return ctlNone, nil, fr.execImport(n)
	case "import_from_statement":
		return ctlNone, nil, fr.execImportFrom(n)
	case "if_statement":
		return fr.execIf(n)
	case "for_statement":
		return fr.execFor(n)
	case "while_statement":
		return fr.execWhile(n)
	case "return_statement":
		if expr := n.NamedChild(0); expr != nil {
			v, err := fr.eval(expr)
			if err != nil {
				return ctlNone, nil, err
			}
			return ctlReturn, v, nil
		}
		return ctlReturn, None, nil
	case "pass_statement":
		return ctlNone, nil, nil
	case "break_statement":
		return ctlBreak, nil, nil
	case "continue_statement":
		return ctlContinue, nil, nil
	case "global_statement":
		if fr.globalDecls == nil {
			fr.globalDecls = map[string]bool{}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			fr.globalDecls[fr.text(n.NamedChild(i))] = true
		}
		return ctlNone, nil, nil
	case "comment":
		return ctlNone, nil, nil
	}
	return ctlNone, nil, fmt.Errorf("unsupported statement %q at line %d", n.Kind(), int(n.StartPosition().Row)+1)
}

// bind writes a name into the frame's innermost namespace.
func (fr *frame) bind(name string, v Value) {
	if fr.class != nil {
		fr.class.SetAttr(name, v)
		return
	}
	if fr.locals != nil && !fr.globalDecls[name] {
		fr.locals.set(name, v)
		return
	}
	fr.globals.SetAttr(name, v)
}

func (fr *frame) execAssignment(n *ts.Node) error {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if right == nil {
		// bare annotation, e.g. `x: int`
		return nil
	}
	v, err := fr.eval(right)
	if err != nil {
		return err
	}
	return fr.assignTo(left, v)
}

func (fr *frame) assignTo(target *ts.Node, v Value) error {
	switch target.Kind() {
	case "identifier":
		fr.bind(fr.text(target), v)
		return nil
	case "attribute":
		obj, err := fr.eval(target.ChildByFieldName("object"))
		if err != nil {
			return err
		}
		name := fr.text(target.ChildByFieldName("attribute"))
		switch o := obj.(type) {
		case *Instance:
			return o.SetAttr(name, v)
		case *Module:
			o.SetAttr(name, v)
			return nil
		case *Class:
			o.SetAttr(name, v)
			return nil
		}
		return fmt.Errorf("cannot set attribute %q on %s", name, obj.Type())
	case "subscript":
		obj, err := fr.eval(target.ChildByFieldName("value"))
		if err != nil {
			return err
		}
		sub, err := fr.eval(target.ChildByFieldName("subscript"))
		if err != nil {
			return err
		}
		switch o := obj.(type) {
		case *Dict:
			o.Set(keyString(sub), v)
			return nil
		case *List:
			i, ok := sub.(Int)
			if !ok {
				return fmt.Errorf("list index must be int, got %s", sub.Type())
			}
			idx, err := listIndex(o, int64(i))
			if err != nil {
				return err
			}
			o.Items[idx] = v
			return nil
		}
		return fmt.Errorf("%s does not support item assignment", obj.Type())
	case "pattern_list", "tuple_pattern":
		items, err := unpack(v)
		if err != nil {
			return err
		}
		if int(target.NamedChildCount()) != len(items) {
			return fmt.Errorf("cannot unpack %d values into %d targets", len(items), target.NamedChildCount())
		}
		for i := uint(0); i < target.NamedChildCount(); i++ {
			if err := fr.assignTo(target.NamedChild(i), items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported assignment target %q", target.Kind())
}

func (fr *frame) execAugmented(n *ts.Node) error {
	left := n.ChildByFieldName("left")
	op := fr.text(n.ChildByFieldName("operator"))
	right, err := fr.eval(n.ChildByFieldName("right"))
	if err != nil {
		return err
	}
	cur, err := fr.eval(left)
	if err != nil {
		return err
	}
	v, err := binaryOp(strings.TrimSuffix(op, "="), cur, right)
	if err != nil {
		return err
	}
	return fr.assignTo(left, v)
}

func (fr *frame) execIf(n *ts.Node) (ctl, Value, error) {
	cond, err := fr.eval(n.ChildByFieldName("condition"))
	if err != nil {
		return ctlNone, nil, err
	}
	if Truthy(cond) {
		return fr.execStmts(n.ChildByFieldName("consequence"))
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		switch child.Kind() {
		case "elif_clause":
			cond, err := fr.eval(child.ChildByFieldName("condition"))
			if err != nil {
				return ctlNone, nil, err
			}
			if Truthy(cond) {
				return fr.execStmts(child.ChildByFieldName("consequence"))
			}
		case "else_clause":
			return fr.execStmts(child.ChildByFieldName("body"))
		}
	}
	return ctlNone, nil, nil
}

func (fr *frame) execFor(n *ts.Node) (ctl, Value, error) {
	left := n.ChildByFieldName("left")
	right, err := fr.eval(n.ChildByFieldName("right"))
	if err != nil {
		return ctlNone, nil, err
	}
	items, err := iterate(right)
	if err != nil {
		return ctlNone, nil, err
	}
	body := n.ChildByFieldName("body")
	for _, item := range items {
		if err := fr.assignTo(left, item); err != nil {
			return ctlNone, nil, err
		}
		c, v, err := fr.execStmts(body)
		if err != nil {
			return ctlNone, nil, err
		}
		switch c {
		case ctlBreak:
			return ctlNone, nil, nil
		case ctlReturn:
			return c, v, nil
		}
	}
	return ctlNone, nil, nil
}

func (fr *frame) execWhile(n *ts.Node) (ctl, Value, error) {
	body := n.ChildByFieldName("body")
	for {
		cond, err := fr.eval(n.ChildByFieldName("condition"))
		if err != nil {
			return ctlNone, nil, err
		}
		if !Truthy(cond) {
			return ctlNone, nil, nil
		}
		c, v, err := fr.execStmts(body)
		if err != nil {
			return ctlNone, nil, err
		}
		switch c {
		case ctlBreak:
			return ctlNone, nil, nil
		case ctlReturn:
			return c, v, nil
		}
	}
}

func (fr *frame) execImport(n *ts.Node) error {
	if fr.loader == nil {
		return fmt.Errorf("import is only supported at module level")
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		var nameNode *ts.Node
		bindAs := ""
		switch child.Kind() {
		case "dotted_name":
			nameNode = child
		case "aliased_import":
			nameNode = child.ChildByFieldName("name")
			bindAs = fr.text(child.ChildByFieldName("alias"))
		default:
			continue
		}
		name := fr.text(nameNode)
		mod, err := fr.loader.importModule(name, fr.globals)
		if err != nil {
			return err
		}
		fr.loader.observe(fr.globals, mod, nil, fr.ephemeral)
		if bindAs == "" {
			bindAs = name
		}
		fr.bind(bindAs, mod)
	}
	return nil
}

func (fr *frame) execImportFrom(n *ts.Node) error {
	if fr.loader == nil {
		return fmt.Errorf("import is only supported at module level")
	}
	modNode := n.ChildByFieldName("module_name")
	modName := fr.text(modNode)
	mod, err := fr.loader.importModule(modName, fr.globals)
	if err != nil {
		return err
	}
	var names []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.StartByte() == modNode.StartByte() && child.EndByte() == modNode.EndByte() {
			continue
		}
		switch child.Kind() {
		case "wildcard_import":
			fr.loader.observe(fr.globals, mod, []string{"*"}, fr.ephemeral)
			for _, attr := range mod.AttrNames() {
				if strings.HasPrefix(attr, "_") {
					continue
				}
				v, _ := mod.Attr(attr)
				fr.bind(attr, v)
			}
			return nil
		case "dotted_name", "aliased_import":
			nameNode := child
			bindAs := ""
			if child.Kind() == "aliased_import" {
				nameNode = child.ChildByFieldName("name")
				bindAs = fr.text(child.ChildByFieldName("alias"))
			}
			name := fr.text(nameNode)
			names = append(names, name)
			v, ok := mod.Attr(name)
			if !ok {
				// `from pkg import name` where name is itself a module:
				// descend the dotted path and record the intermediate
				// binding as well.
				sub, err := fr.loader.importModule(modName+"."+name, fr.globals)
				if err != nil {
					return &ImportError{Name: modName + "." + name, Err: err}
				}
				fr.loader.observe(fr.globals, sub, nil, fr.ephemeral)
				v = sub
			}
			if bindAs == "" {
				bindAs = name
			}
			fr.bind(bindAs, v)
		}
	}
	if len(names) > 0 {
		fr.loader.observe(fr.globals, mod, names, fr.ephemeral)
	}
	return nil
}

type decoratorInfo struct {
	text string
	node *ts.Node
}

func (fr *frame) execDecorated(n *ts.Node) error {
	var decorators []decoratorInfo
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() == "decorator" {
			expr := child.NamedChild(0)
			decorators = append(decorators, decoratorInfo{text: fr.text(expr), node: expr})
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return fmt.Errorf("decorated definition without definition")
	}
	switch def.Kind() {
	case "function_definition":
		return fr.execFunctionDef(def, decorators)
	case "class_definition":
		// class decorators are not modelled; define the class bare
		return fr.execClassDef(def)
	}
	return fmt.Errorf("unsupported decorated definition %q", def.Kind())
}

func (fr *frame) execFunctionDef(n *ts.Node, decorators []decoratorInfo) error {
	name := fr.text(n.ChildByFieldName("name"))

	var flags Flags
	setterTarget := ""
	var applied []decoratorInfo
	for _, d := range decorators {
		switch {
		case d.text == "property":
			flags |= FlagGetter
		case d.text == "classmethod":
			flags |= FlagClassMethod
		case d.text == "staticmethod":
			flags |= FlagStaticMethod
		case strings.HasSuffix(d.text, ".setter"):
			flags |= FlagSetter
			setterTarget = strings.TrimSuffix(d.text, ".setter")
		default:
			applied = append(applied, d)
		}
	}
	if fr.class != nil && flags&(FlagClassMethod|FlagStaticMethod|FlagGetter|FlagSetter) == 0 {
		flags |= FlagMethod
	}

	qualName := name
	if fr.class != nil {
		qualName = fr.class.QualName() + "." + name
	}

	var enclosing map[string]bool
	if fr.locals != nil {
		enclosing = map[string]bool{}
		for _, local := range fr.locals.order() {
			enclosing[local] = true
		}
		for captured := range fr.captured {
			enclosing[captured] = true
		}
	}

	code, err := fr.analyzeFunction(n, name, flags, enclosing)
	if err != nil {
		return err
	}

	fn := NewFunction(name, qualName, fr.globals, code)
	if fr.locals != nil {
		// nested function: capture the enclosing locals by value
		free := map[string]Value{}
		for _, fv := range code.FreeVars {
			if v, ok := fr.locals.get(fv); ok {
				free[fv] = v
			} else if v, ok := fr.captured[fv]; ok {
				free[fv] = v
			}
		}
		fn.free = free
	}

	var bound Value = fn
	// apply unrecognized decorators innermost-first
	for i := len(applied) - 1; i >= 0; i-- {
		dec, err := fr.eval(applied[i].node)
		if err != nil {
			return err
		}
		c, ok := dec.(Callable)
		if !ok {
			return fmt.Errorf("decorator %q is not callable", applied[i].text)
		}
		bound, err = c.Call(bound)
		if err != nil {
			return err
		}
	}

	if fr.class != nil {
		switch {
		case flags&FlagGetter != 0:
			fr.class.SetAttr(name, &Property{Getter: fn})
			return nil
		case flags&FlagSetter != 0:
			target := setterTarget
			if existing, ok := fr.class.Attr(target); ok {
				if prop, isProp := existing.(*Property); isProp {
					prop.Setter = fn
					return nil
				}
			}
			fr.class.SetAttr(target, &Property{Setter: fn})
			return nil
		}
	}
	fr.bind(name, bound)
	return nil
}

func (fr *frame) execClassDef(n *ts.Node) error {
	name := fr.text(n.ChildByFieldName("name"))
	qualName := name
	if fr.class != nil {
		qualName = fr.class.QualName() + "." + name
	}

	var bases []*Class
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for i := uint(0); i < sup.NamedChildCount(); i++ {
			v, err := fr.eval(sup.NamedChild(i))
			if err != nil {
				return err
			}
			base, ok := v.(*Class)
			if !ok {
				return fmt.Errorf("base of class %s is %s, not a class", name, v.Type())
			}
			bases = append(bases, base)
		}
	}

	cls := NewClass(name, qualName, fr.globals, bases)
	body := &frame{
		globals:   fr.globals,
		class:     cls,
		content:   fr.content,
		loader:    fr.loader,
		ephemeral: fr.ephemeral,
		captured:  fr.captured,
	}
	if _, _, err := body.execStmts(n.ChildByFieldName("body")); err != nil {
		return err
	}
	fr.bind(name, cls)
	return nil
}

// eval evaluates an expression node.
func (fr *frame) eval(n *ts.Node) (Value, error) {
	switch n.Kind() {
	case "identifier":
		return fr.lookup(fr.text(n))
	case "integer":
		text := strings.ReplaceAll(fr.text(n), "_", "")
		i, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer literal %q", fr.text(n))
		}
		return Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(fr.text(n), "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("bad float literal %q", fr.text(n))
		}
		return Float(f), nil
	case "string":
		s, err := parsePyString(fr.text(n))
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	case "concatenated_string":
		var sb strings.Builder
		for i := uint(0); i < n.NamedChildCount(); i++ {
			v, err := fr.eval(n.NamedChild(i))
			if err != nil {
				return nil, err
			}
			s, ok := v.(Str)
			if !ok {
				return nil, fmt.Errorf("cannot concatenate %s literal", v.Type())
			}
			sb.WriteString(string(s))
		}
		return Str(sb.String()), nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "none":
		return None, nil
	case "list", "tuple":
		items := make([]Value, 0, n.NamedChildCount())
		for i := uint(0); i < n.NamedChildCount(); i++ {
			v, err := fr.eval(n.NamedChild(i))
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return NewList(items...), nil
	case "dictionary":
		d := NewDict()
		for i := uint(0); i < n.NamedChildCount(); i++ {
			pair := n.NamedChild(i)
			if pair.Kind() != "pair" {
				continue
			}
			k, err := fr.eval(pair.ChildByFieldName("key"))
			if err != nil {
				return nil, err
			}
			v, err := fr.eval(pair.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			d.Set(keyString(k), v)
		}
		return d, nil
	case "parenthesized_expression":
		return fr.eval(n.NamedChild(0))
	case "binary_operator":
		left, err := fr.eval(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		right, err := fr.eval(n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		return binaryOp(fr.text(n.ChildByFieldName("operator")), left, right)
	case "boolean_operator":
		left, err := fr.eval(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		op := fr.text(n.ChildByFieldName("operator"))
		if op == "and" {
			if !Truthy(left) {
				return left, nil
			}
		} else {
			if Truthy(left) {
				return left, nil
			}
		}
		return fr.eval(n.ChildByFieldName("right"))
	case "not_operator":
		v, err := fr.eval(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return Bool(!Truthy(v)), nil
	case "unary_operator":
		v, err := fr.eval(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		switch fr.text(n.ChildByFieldName("operator")) {
		case "-":
			switch t := v.(type) {
			case Int:
				return -t, nil
			case Float:
				return -t, nil
			}
			return nil, fmt.Errorf("bad operand for unary -: %s", v.Type())
		case "+":
			return v, nil
		}
		return nil, fmt.Errorf("unsupported unary operator")
	case "comparison_operator":
		return fr.evalComparison(n)
	case "conditional_expression":
		// children: consequence, condition, alternative
		cond, err := fr.eval(n.NamedChild(1))
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return fr.eval(n.NamedChild(0))
		}
		return fr.eval(n.NamedChild(2))
	case "attribute":
		obj, err := fr.eval(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		return attrOf(obj, fr.text(n.ChildByFieldName("attribute")))
	case "subscript":
		obj, err := fr.eval(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		sub, err := fr.eval(n.ChildByFieldName("subscript"))
		if err != nil {
			return nil, err
		}
		return subscript(obj, sub)
	case "call":
		return fr.evalCall(n)
	}
	return nil, fmt.Errorf("unsupported expression %q at line %d", n.Kind(), int(n.StartPosition().Row)+1)
}

func (fr *frame) lookup(name string) (Value, error) {
	if fr.locals != nil {
		if v, ok := fr.locals.get(name); ok {
			return v, nil
		}
	}
	if v, ok := fr.captured[name]; ok {
		return v, nil
	}
	if fr.class != nil {
		if v, ok := fr.class.Attr(name); ok {
			return v, nil
		}
	}
	if v, ok := fr.globals.Attr(name); ok {
		return v, nil
	}
	if b, ok := builtins[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("name %q is not defined", name)
}

func (fr *frame) evalComparison(n *ts.Node) (Value, error) {
	// operands are named children; operator tokens sit between them.
	// `not in` and `is not` arrive as two adjacent tokens.
	var operands []Value
	var ops []string
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child.IsNamed() {
			v, err := fr.eval(child)
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
		} else {
			kind := child.Kind()
			if len(ops) > 0 {
				last := ops[len(ops)-1]
				if (last == "not" && kind == "in") || (last == "is" && kind == "not") {
					ops[len(ops)-1] = last + " " + kind
					continue
				}
			}
			ops = append(ops, kind)
		}
	}
	if len(operands) != len(ops)+1 {
		return nil, fmt.Errorf("malformed comparison")
	}
	for i, op := range ops {
		ok, err := compare(op, operands[i], operands[i+1])
		if err != nil {
			return nil, err
		}
		if !ok {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func (fr *frame) evalCall(n *ts.Node) (Value, error) {
	fnVal, err := fr.eval(n.ChildByFieldName("function"))
	if err != nil {
		return nil, err
	}
	var args []Value
	kwargs := map[string]Value{}
	argList := n.ChildByFieldName("arguments")
	if argList != nil {
		for i := uint(0); i < argList.NamedChildCount(); i++ {
			a := argList.NamedChild(i)
			if a.Kind() == "keyword_argument" {
				v, err := fr.eval(a.ChildByFieldName("value"))
				if err != nil {
					return nil, err
				}
				kwargs[fr.text(a.ChildByFieldName("name"))] = v
				continue
			}
			v, err := fr.eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}
	switch c := fnVal.(type) {
	case *Function:
		return callFunction(c, args, kwargs)
	case *BoundMethod:
		return callFunction(c.Fn, append([]Value{c.Recv}, args...), kwargs)
	case Callable:
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s does not accept keyword arguments", fnVal.Type())
		}
		return c.Call(args...)
	}
	return nil, fmt.Errorf("%s object is not callable", fnVal.Type())
}

// callFunction binds arguments against the function's current code
// descriptor and executes the body.
func callFunction(fn *Function, args []Value, kwargs map[string]Value) (Value, error) {
	code := fn.Code()
	tree, err := code.bodyTree()
	if err != nil {
		return nil, err
	}

	locals := newAttrTable()
	params := code.Params
	for i, p := range params {
		switch {
		case i < len(args):
			locals.set(p.Name, args[i])
		default:
			if kw, ok := kwargs[p.Name]; ok {
				locals.set(p.Name, kw)
				delete(kwargs, p.Name)
			} else if p.Default != nil {
				locals.set(p.Name, p.Default)
			} else {
				return nil, fmt.Errorf("%s() missing required argument %q", code.Name, p.Name)
			}
		}
	}
	if len(args) > len(params) {
		if code.Flags&FlagVarArgs == 0 {
			return nil, fmt.Errorf("%s() takes %d arguments but %d were given", code.Name, len(params), len(args))
		}
		locals.set(code.VarArg, NewList(args[len(params):]...))
	} else if code.Flags&FlagVarArgs != 0 {
		locals.set(code.VarArg, NewList())
	}
	if len(kwargs) > 0 {
		if code.Flags&FlagKwArgs == 0 {
			for k := range kwargs {
				return nil, fmt.Errorf("%s() got an unexpected keyword argument %q", code.Name, k)
			}
		}
		d := NewDict()
		for k, v := range kwargs {
			d.Set(k, v)
		}
		locals.set(code.KwArg, d)
	} else if code.Flags&FlagKwArgs != 0 {
		locals.set(code.KwArg, NewDict())
	}

	fr := &frame{
		globals:  fn.def,
		locals:   locals,
		content:  []byte(code.Body),
		captured: fn.free,
	}
	c, v, err := fr.execStmts(tree.RootNode())
	if err != nil {
		return nil, err
	}
	if c == ctlReturn {
		return v, nil
	}
	return None, nil
}

// attrOf resolves attribute access on any value.
func attrOf(obj Value, name string) (Value, error) {
	switch o := obj.(type) {
	case *Module:
		if v, ok := o.Attr(name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("module %q has no attribute %q", o.Name(), name)
	case *Instance:
		return o.Attr(name)
	case *Class:
		v, _, ok := o.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("type %q has no attribute %q", o.Name(), name)
		}
		if fn, isFn := v.(*Function); isFn && fn.Code().Flags&FlagClassMethod != 0 {
			return &BoundMethod{Recv: o, Fn: fn}, nil
		}
		return v, nil
	case *Dict:
		switch name {
		case "keys":
			return &Builtin{name: "keys", fn: func(args []Value) (Value, error) {
				keys := o.Keys()
				items := make([]Value, len(keys))
				for i, k := range keys {
					items[i] = Str(k)
				}
				return NewList(items...), nil
			}}, nil
		case "get":
			return &Builtin{name: "get", fn: func(args []Value) (Value, error) {
				if len(args) < 1 {
					return nil, fmt.Errorf("get expected at least 1 argument")
				}
				if v, ok := o.Get(keyString(args[0])); ok {
					return v, nil
				}
				if len(args) > 1 {
					return args[1], nil
				}
				return None, nil
			}}, nil
		}
	case *List:
		if name == "append" {
			return &Builtin{name: "append", fn: func(args []Value) (Value, error) {
				o.Items = append(o.Items, args...)
				return None, nil
			}}, nil
		}
	case Str:
		switch name {
		case "upper":
			return &Builtin{name: "upper", fn: func([]Value) (Value, error) {
				return Str(strings.ToUpper(string(o))), nil
			}}, nil
		case "lower":
			return &Builtin{name: "lower", fn: func([]Value) (Value, error) {
				return Str(strings.ToLower(string(o))), nil
			}}, nil
		}
	}
	return nil, fmt.Errorf("%s object has no attribute %q", obj.Type(), name)
}

func subscript(obj, sub Value) (Value, error) {
	switch o := obj.(type) {
	case *Dict:
		if v, ok := o.Get(keyString(sub)); ok {
			return v, nil
		}
		return nil, fmt.Errorf("key %s not found", sub.Repr())
	case *List:
		i, ok := sub.(Int)
		if !ok {
			return nil, fmt.Errorf("list index must be int, got %s", sub.Type())
		}
		idx, err := listIndex(o, int64(i))
		if err != nil {
			return nil, err
		}
		return o.Items[idx], nil
	case Str:
		i, ok := sub.(Int)
		if !ok {
			return nil, fmt.Errorf("string index must be int, got %s", sub.Type())
		}
		runes := []rune(string(o))
		n := int64(i)
		if n < 0 {
			n += int64(len(runes))
		}
		if n < 0 || n >= int64(len(runes)) {
			return nil, fmt.Errorf("string index out of range")
		}
		return Str(string(runes[n])), nil
	}
	return nil, fmt.Errorf("%s object is not subscriptable", obj.Type())
}

func listIndex(l *List, i int64) (int, error) {
	if i < 0 {
		i += int64(len(l.Items))
	}
	if i < 0 || i >= int64(len(l.Items)) {
		return 0, fmt.Errorf("list index out of range")
	}
	return int(i), nil
}

func iterate(v Value) ([]Value, error) {
	switch t := v.(type) {
	case *List:
		return t.Items, nil
	case *Dict:
		keys := t.Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = Str(k)
		}
		return items, nil
	case Str:
		runes := []rune(string(t))
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = Str(string(r))
		}
		return items, nil
	}
	return nil, fmt.Errorf("%s object is not iterable", v.Type())
}

func unpack(v Value) ([]Value, error) {
	return iterate(v)
}

func binaryOp(op string, a, b Value) (Value, error) {
	if op == "+" {
		if as, ok := a.(Str); ok {
			bs, ok := b.(Str)
			if !ok {
				return nil, fmt.Errorf("can only concatenate str to str, not %s", b.Type())
			}
			return as + bs, nil
		}
		if al, ok := a.(*List); ok {
			bl, ok := b.(*List)
			if !ok {
				return nil, fmt.Errorf("can only concatenate list to list, not %s", b.Type())
			}
			return NewList(append(append([]Value{}, al.Items...), bl.Items...)...), nil
		}
	}
	if op == "*" {
		if as, ok := a.(Str); ok {
			if bi, ok := b.(Int); ok {
				return Str(strings.Repeat(string(as), int(bi))), nil
			}
		}
	}
	ai, aIsInt := a.(Int)
	af, aIsFloat := a.(Float)
	bi, bIsInt := b.(Int)
	bf, bIsFloat := b.(Float)
	if !aIsInt && !aIsFloat || !bIsInt && !bIsFloat {
		return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, a.Type(), b.Type())
	}
	if aIsInt && bIsInt {
		x, y := int64(ai), int64(bi)
		switch op {
		case "+":
			return Int(x + y), nil
		case "-":
			return Int(x - y), nil
		case "*":
			return Int(x * y), nil
		case "/":
			if y == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return Float(float64(x) / float64(y)), nil
		case "//":
			if y == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return Int(int64(math.Floor(float64(x) / float64(y)))), nil
		case "%":
			if y == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			m := x % y
			if (m < 0 && y > 0) || (m > 0 && y < 0) {
				m += y
			}
			return Int(m), nil
		case "**":
			return Int(int64(math.Pow(float64(x), float64(y)))), nil
		}
	}
	var x, y float64
	if aIsInt {
		x = float64(ai)
	} else {
		x = float64(af)
	}
	if bIsInt {
		y = float64(bi)
	} else {
		y = float64(bf)
	}
	switch op {
	case "+":
		return Float(x + y), nil
	case "-":
		return Float(x - y), nil
	case "*":
		return Float(x * y), nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(x / y), nil
	case "//":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(math.Floor(x / y)), nil
	case "%":
		return Float(math.Mod(x, y)), nil
	case "**":
		return Float(math.Pow(x, y)), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func compare(op string, a, b Value) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "in", "not in":
		found, err := contains(b, a)
		if err != nil {
			return false, err
		}
		if op == "in" {
			return found, nil
		}
		return !found, nil
	case "is":
		return a == b, nil
	case "is not":
		return a != b, nil
	}
	// ordering
	if as, ok := a.(Str); ok {
		bs, ok := b.(Str)
		if !ok {
			return false, fmt.Errorf("%q not supported between str and %s", op, b.Type())
		}
		switch op {
		case "<":
			return as < bs, nil
		case "<=":
			return as <= bs, nil
		case ">":
			return as > bs, nil
		case ">=":
			return as >= bs, nil
		}
	}
	x, xok := toFloat(a)
	y, yok := toFloat(b)
	if !xok || !yok {
		return false, fmt.Errorf("%q not supported between %s and %s", op, a.Type(), b.Type())
	}
	switch op {
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	case ">=":
		return x >= y, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}

func contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case *List:
		for _, it := range c.Items {
			if Equal(it, item) {
				return true, nil
			}
		}
		return false, nil
	case *Dict:
		_, ok := c.Get(keyString(item))
		return ok, nil
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string operand")
		}
		return strings.Contains(string(c), string(s)), nil
	}
	return false, fmt.Errorf("argument of type %s is not a container", container.Type())
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	case Bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// keyString renders a dict key. String keys are stored raw; other keys
// under their repr, which keeps the diff join key printable and stable.
func keyString(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	return v.Repr()
}

// parsePyString decodes a Python string literal: prefixes, single or
// triple quotes, common escapes.
func parsePyString(text string) (string, error) {
	raw := false
	for len(text) > 0 {
		c := text[0]
		if c == '"' || c == '\'' {
			break
		}
		if c == 'r' || c == 'R' {
			raw = true
		}
		// f/b/u prefixes are tolerated; interpolation is not evaluated
		text = text[1:]
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			text = text[len(q) : len(text)-len(q)]
			if raw {
				return text, nil
			}
			return decodeEscapes(text), nil
		}
	}
	return "", fmt.Errorf("malformed string literal")
}

func decodeEscapes(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		case '\'':
			sb.WriteByte('\'')
		case '"':
			sb.WriteByte('"')
		case '0':
			sb.WriteByte(0)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
