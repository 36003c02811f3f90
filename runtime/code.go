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
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"bennypowers.dev/molt/queries"
)

// Flags records structural facts about a function that have no slot of
// their own in the descriptor.
type Flags uint32

const (
	FlagVarArgs Flags = 1 << iota
	FlagKwArgs
	FlagMethod
	FlagClassMethod
	FlagStaticMethod
	FlagGetter
	FlagSetter
)

// Param is one formal parameter. Default is nil for required params.
type Param struct {
	Name    string
	Default Value
}

// Code is the descriptor behind a Function's swappable slot. Two
// functions behave identically iff all twelve descriptor fields compare
// equal; everything else on the struct is call machinery.
type Code struct {
	ArgCount  int      // positional parameter count, including self
	FreeVars  []string // names captured from an enclosing function
	CellVars  []string // locals captured by nested functions
	Consts    []string // literal constants in source order
	Body      string   // dedented body source
	Lines     []int    // line offset of each body statement from the def line
	Name      string
	Names     []string // referenced global names
	NLocals   int
	StackSize int
	VarNames  []string // params then assigned locals
	Flags     Flags

	Params []Param
	VarArg string // name of *args, when FlagVarArgs is set
	KwArg  string // name of **kwargs, when FlagKwArgs is set
	File   string
	Line   int

	parseOnce sync.Once
	parsed    *ts.Tree
	parseErr  error
}

// Equal compares the twelve descriptor fields.
func (c *Code) Equal(o *Code) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.ArgCount == o.ArgCount &&
		stringsEqual(c.FreeVars, o.FreeVars) &&
		stringsEqual(c.CellVars, o.CellVars) &&
		stringsEqual(c.Consts, o.Consts) &&
		c.Body == o.Body &&
		intsEqual(c.Lines, o.Lines) &&
		c.Name == o.Name &&
		stringsEqual(c.Names, o.Names) &&
		c.NLocals == o.NLocals &&
		c.StackSize == o.StackSize &&
		stringsEqual(c.VarNames, o.VarNames) &&
		c.Flags == o.Flags
}

// bodyTree lazily parses the dedented body for execution. The tree is
// cached for the life of the code object.
func (c *Code) bodyTree() (*ts.Tree, error) {
	c.parseOnce.Do(func() {
		c.parsed, c.parseErr = queries.ParsePython([]byte(c.Body))
	})
	return c.parsed, c.parseErr
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// dedent strips the common leading whitespace of all non-blank lines.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin <= 0 {
		return s
	}
	for i, line := range lines {
		if len(line) >= margin {
			lines[i] = line[margin:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
