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

import "fmt"

// SyntaxError reports unparseable user source. The reload driver treats
// it as recoverable: the live module is left untouched and the user is
// notified.
type SyntaxError struct {
	File string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s, line %d", e.File, e.Line)
}

// ImportError reports a failed import during evaluation.
type ImportError struct {
	Name string
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot import %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("no module named %q", e.Name)
}

func (e *ImportError) Unwrap() error { return e.Err }
