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

	ts "github.com/tree-sitter/go-tree-sitter"
)

// analyzeFunction derives the code descriptor for a function_definition
// node. The descriptor is a static digest of the function: the differ
// compares descriptors to decide whether two same-named functions
// behave identically, and the call machinery executes from it.
func (fr *frame) analyzeFunction(n *ts.Node, name string, flags Flags, enclosing map[string]bool) (*Code, error) {
	paramsNode := n.ChildByFieldName("parameters")
	bodyNode := n.ChildByFieldName("body")
	if bodyNode == nil {
		return nil, fmt.Errorf("function %s has no body", name)
	}

	code := &Code{
		Name:  name,
		Flags: flags,
		File:  fr.globals.File(),
		Line:  int(n.StartPosition().Row) + 1,
	}

	// parameters
	if paramsNode != nil {
		for i := uint(0); i < paramsNode.NamedChildCount(); i++ {
			p := paramsNode.NamedChild(i)
			switch p.Kind() {
			case "identifier":
				code.Params = append(code.Params, Param{Name: fr.text(p)})
			case "typed_parameter":
				if id := firstOfKind(p, "identifier"); id != nil {
					code.Params = append(code.Params, Param{Name: fr.text(id)})
				}
			case "default_parameter", "typed_default_parameter":
				pname := fr.text(p.ChildByFieldName("name"))
				def, err := fr.eval(p.ChildByFieldName("value"))
				if err != nil {
					return nil, fmt.Errorf("default for %s.%s: %w", name, pname, err)
				}
				code.Params = append(code.Params, Param{Name: pname, Default: def})
			case "list_splat_pattern":
				code.Flags |= FlagVarArgs
				if id := firstOfKind(p, "identifier"); id != nil {
					code.VarArg = fr.text(id)
				}
			case "dictionary_splat_pattern":
				code.Flags |= FlagKwArgs
				if id := firstOfKind(p, "identifier"); id != nil {
					code.KwArg = fr.text(id)
				}
			}
		}
	}
	code.ArgCount = len(code.Params)

	// body source, re-created line-wise so the dedented text parses as
	// a standalone module
	code.Body = fr.blockSource(n, bodyNode)

	// statement line table, relative to the def line so that moving a
	// function within its file does not change the descriptor
	defRow := int(n.StartPosition().Row)
	for i := uint(0); i < bodyNode.NamedChildCount(); i++ {
		stmt := bodyNode.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		code.Lines = append(code.Lines, int(stmt.StartPosition().Row)-defRow)
	}

	locals := map[string]bool{}
	var localOrder []string
	addLocal := func(nm string) {
		if !locals[nm] {
			locals[nm] = true
			localOrder = append(localOrder, nm)
		}
	}
	for _, p := range code.Params {
		addLocal(p.Name)
	}
	if code.VarArg != "" {
		addLocal(code.VarArg)
	}
	if code.KwArg != "" {
		addLocal(code.KwArg)
	}
	collectAssigned(bodyNode, fr.content, addLocal)

	seen := map[string]bool{}
	var refs []string
	collectReferenced(bodyNode, fr.content, func(nm string) {
		if !seen[nm] {
			seen[nm] = true
			refs = append(refs, nm)
		}
	})
	for _, r := range refs {
		if locals[r] {
			continue
		}
		if enclosing[r] {
			code.FreeVars = append(code.FreeVars, r)
		} else {
			code.Names = append(code.Names, r)
		}
	}

	// locals that nested functions close over
	nestedSeen := map[string]bool{}
	walkNodes(bodyNode, func(nd *ts.Node) bool {
		if nd.Kind() == "function_definition" && nd.StartByte() != bodyNode.StartByte() {
			if inner := nd.ChildByFieldName("body"); inner != nil {
				collectReferenced(inner, fr.content, func(nm string) {
					if locals[nm] && !nestedSeen[nm] {
						nestedSeen[nm] = true
						code.CellVars = append(code.CellVars, nm)
					}
				})
			}
			return false
		}
		return true
	})

	collectConsts(bodyNode, fr.content, &code.Consts)

	code.VarNames = localOrder
	code.NLocals = len(localOrder)
	code.StackSize = exprDepth(bodyNode)

	return code, nil
}

// blockSource extracts a block's source so it can later parse on its
// own: full lines, dedented. A body on the def line itself (a one-line
// def) is taken by byte range instead, which already starts at the
// first statement.
func (fr *frame) blockSource(def, block *ts.Node) string {
	startRow := int(block.StartPosition().Row)
	if startRow == int(def.StartPosition().Row) {
		return string(fr.content[block.StartByte():block.EndByte()])
	}
	endRow := int(block.EndPosition().Row)
	lines := strings.Split(string(fr.content), "\n")
	if startRow >= len(lines) {
		return ""
	}
	if endRow >= len(lines) {
		endRow = len(lines) - 1
	}
	return dedent(strings.Join(lines[startRow:endRow+1], "\n"))
}

func firstOfKind(n *ts.Node, kind string) *ts.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}

// walkNodes visits nodes depth-first; fn returning false prunes the
// subtree.
func walkNodes(n *ts.Node, fn func(*ts.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		walkNodes(n.NamedChild(i), fn)
	}
}

// collectAssigned finds names bound inside a function body. Nested
// function and class bodies have their own scope; only the definition
// name itself is a local here.
func collectAssigned(body *ts.Node, content []byte, add func(string)) {
	text := func(n *ts.Node) string { return string(content[n.StartByte():n.EndByte()]) }
	var targets func(n *ts.Node)
	targets = func(n *ts.Node) {
		switch n.Kind() {
		case "identifier":
			add(text(n))
		case "pattern_list", "tuple_pattern":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				targets(n.NamedChild(i))
			}
		}
	}
	walkNodes(body, func(n *ts.Node) bool {
		switch n.Kind() {
		case "assignment", "augmented_assignment":
			if left := n.ChildByFieldName("left"); left != nil {
				targets(left)
			}
		case "for_statement":
			if left := n.ChildByFieldName("left"); left != nil {
				targets(left)
			}
		case "function_definition", "class_definition":
			if n.StartByte() != body.StartByte() {
				if nm := n.ChildByFieldName("name"); nm != nil {
					add(text(nm))
				}
				return false
			}
		}
		return true
	})
}

// collectReferenced finds identifier loads, skipping attribute names,
// keyword-argument names and parameter declarations.
func collectReferenced(body *ts.Node, content []byte, add func(string)) {
	text := func(n *ts.Node) string { return string(content[n.StartByte():n.EndByte()]) }
	var walk func(n *ts.Node)
	walk = func(n *ts.Node) {
		switch n.Kind() {
		case "identifier":
			add(text(n))
			return
		case "attribute":
			walk(n.ChildByFieldName("object"))
			return
		case "keyword_argument":
			walk(n.ChildByFieldName("value"))
			return
		case "parameters":
			return
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(body)
}

// collectConsts gathers literal constants in source order.
func collectConsts(body *ts.Node, content []byte, out *[]string) {
	walkNodes(body, func(n *ts.Node) bool {
		switch n.Kind() {
		case "integer", "float", "string", "true", "false", "none":
			*out = append(*out, string(content[n.StartByte():n.EndByte()]))
			if n.Kind() == "string" {
				return false
			}
		}
		return true
	})
}

// exprDepth approximates stack depth as the deepest expression nesting.
func exprDepth(n *ts.Node) int {
	deepest := 0
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if d := exprDepth(n.NamedChild(i)); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}
