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
package watch

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestTranslateOp(t *testing.T) {
	cases := []struct {
		name     string
		raw      fsnotify.Op
		want     Op
		relevant bool
	}{
		{"create", fsnotify.Create, Created, true},
		{"write", fsnotify.Write, Modified, true},
		{"rename", fsnotify.Rename, Moved, true},
		{"remove", fsnotify.Remove, Deleted, true},
		{"chmod is noise", fsnotify.Chmod, 0, false},
		{"write plus chmod", fsnotify.Write | fsnotify.Chmod, Modified, true},
		{"create wins over write", fsnotify.Create | fsnotify.Write, Created, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op, relevant := translateOp(tc.raw)
			assert.Equal(t, tc.relevant, relevant)
			if tc.relevant {
				assert.Equal(t, tc.want, op)
			}
		})
	}
}
