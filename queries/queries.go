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

// Package queries owns the tree-sitter Python grammar and parser pooling.
// Parsers are not thread-safe, so callers retrieve one, parse, and put it
// back. Trees must be closed by the caller.
package queries

import (
	"fmt"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsPython "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var python = ts.NewLanguage(tsPython.Language())

// PythonLanguage returns the shared Python grammar.
func PythonLanguage() *ts.Language {
	return python
}

var pythonParserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(python); err != nil {
			panic(fmt.Sprintf("failed to set Python language: %v", err))
		}
		return parser
	},
}

// RetrievePythonParser gets a pooled Python parser.
func RetrievePythonParser() *ts.Parser {
	return pythonParserPool.Get().(*ts.Parser)
}

// PutPythonParser returns a parser to the pool.
func PutPythonParser(parser *ts.Parser) {
	pythonParserPool.Put(parser)
}

// ParsePython parses Python source into a tree. The caller owns the
// returned tree and must Close it.
func ParsePython(content []byte) (*ts.Tree, error) {
	parser := RetrievePythonParser()
	defer PutPythonParser(parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned no tree (%d bytes)", len(content))
	}
	return tree, nil
}

// FirstError locates the first ERROR or MISSING node in a parse tree and
// returns its 1-based line. ok is false for clean trees.
func FirstError(root *ts.Node) (line int, ok bool) {
	if root == nil || !root.HasError() {
		return 0, false
	}
	found := -1
	var walk func(n *ts.Node)
	walk = func(n *ts.Node) {
		if found >= 0 || n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			found = int(n.StartPosition().Row) + 1
			return
		}
		if !n.HasError() {
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	if found < 0 {
		// The tree reports an error but no ERROR node is reachable;
		// attribute it to the first line.
		found = 1
	}
	return found, true
}
