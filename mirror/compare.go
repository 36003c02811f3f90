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
	"sync"

	"bennypowers.dev/molt/runtime"
)

// Comparator decides value equality for a family of runtime values.
// Registered comparators are consulted in registration order; the first
// whose Match accepts the old value wins. The default is structural
// equality.
type Comparator struct {
	Name  string
	Match func(v runtime.Value) bool
	Cmp   func(a, b runtime.Value) bool
}

var (
	comparatorMu sync.RWMutex
	comparators  []Comparator
)

// RegisterComparator adds a type-specific equality predicate.
func RegisterComparator(c Comparator) {
	comparatorMu.Lock()
	defer comparatorMu.Unlock()
	comparators = append(comparators, c)
}

// ValuesEqual compares two runtime values through the comparator
// registry. Equality must never throw: a panicking comparator is
// treated as "equal" so a noisy custom predicate cannot block reload.
func ValuesEqual(a, b runtime.Value) (eq bool) {
	defer func() {
		if r := recover(); r != nil {
			eq = true
		}
	}()

	comparatorMu.RLock()
	defer comparatorMu.RUnlock()
	for _, c := range comparators {
		if c.Match(a) {
			return c.Cmp(a, b)
		}
	}
	return runtime.Equal(a, b)
}

func init() {
	// dicts and lists are the tabular shapes user modules bind most;
	// compare them per-key / per-index rather than by identity
	RegisterComparator(Comparator{
		Name:  "dict",
		Match: func(v runtime.Value) bool { _, ok := v.(*runtime.Dict); return ok },
		Cmp: func(a, b runtime.Value) bool {
			ad, _ := a.(*runtime.Dict)
			bd, ok := b.(*runtime.Dict)
			if ad == nil || !ok {
				return false
			}
			return runtime.Equal(ad, bd)
		},
	})
	RegisterComparator(Comparator{
		Name:  "list",
		Match: func(v runtime.Value) bool { _, ok := v.(*runtime.List); return ok },
		Cmp: func(a, b runtime.Value) bool {
			al, _ := a.(*runtime.List)
			bl, ok := b.(*runtime.List)
			if al == nil || !ok {
				return false
			}
			return runtime.Equal(al, bl)
		},
	})
}
