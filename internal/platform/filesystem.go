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
package platform

import (
	"io/fs"
	"os"
	"testing/fstest"
)

// FileSystem provides an abstraction over filesystem operations.
// The module loader reads user source through it, and the dependency
// tracker's literal-usage check reads importer sources through it, so
// tests can run whole reload passes against an in-memory filesystem.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Remove(name string) error
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	Exists(path string) bool
}

// OSFileSystem implements FileSystem using the standard os package.
// This is the production implementation.
type OSFileSystem struct{}

// NewOSFileSystem creates a new filesystem that uses the standard os package.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (o *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (o *OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (o *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (o *OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (o *OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (o *OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MapFS wraps testing/fstest.MapFS to implement FileSystem.
// Paths are stored as given; callers should use consistent relative or
// absolute paths within one test.
type MapFS struct {
	fstest.MapFS
}

// NewMapFS creates a new in-memory filesystem from a map of file contents
func NewMapFS(files map[string]string) *MapFS {
	mapFS := make(fstest.MapFS)
	for path, content := range files {
		mapFS[path] = &fstest.MapFile{
			Data: []byte(content),
			Mode: 0644,
		}
	}
	return &MapFS{MapFS: mapFS}
}

func (m *MapFS) ReadFile(name string) ([]byte, error) {
	f, ok := m.MapFS[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f.Data, nil
}

func (m *MapFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.MapFS[name] = &fstest.MapFile{
		Data: data,
		Mode: perm,
	}
	return nil
}

func (m *MapFS) Remove(name string) error {
	delete(m.MapFS, name)
	return nil
}

func (m *MapFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(m.MapFS, name)
}

func (m *MapFS) Stat(name string) (fs.FileInfo, error) {
	if _, ok := m.MapFS[name]; !ok {
		return nil, fs.ErrNotExist
	}
	return fs.Stat(m.MapFS, name)
}

func (m *MapFS) Exists(path string) bool {
	_, ok := m.MapFS[path]
	return ok
}
