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
package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/molt/workspace"
)

func TestFindRootByConfigFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, workspace.ConfigFileName), []byte("{}\n"), 0644))
	nested := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := workspace.FindRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindRootFallsBackToStartDir(t *testing.T) {
	dir := t.TempDir()
	found, err := workspace.FindRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, found)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	ctx, err := workspace.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"."}, ctx.Config.SourceRoots)
	assert.Equal(t, []string{"**/*.py"}, ctx.Config.Include)
	assert.Equal(t, 100, ctx.Config.DebounceMs)
	assert.Equal(t, []string{dir}, ctx.SourceRootPaths())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := `
sourceRoots:
  - src
  - plugins
include:
  - "**/*.py"
exclude:
  - "**/generated/**"
debounceMs: 250
verbose: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, workspace.ConfigFileName), []byte(config), 0644))

	ctx, err := workspace.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"src", "plugins"}, ctx.Config.SourceRoots)
	assert.Equal(t, []string{"**/generated/**"}, ctx.Config.Exclude)
	assert.Equal(t, 250, ctx.Config.DebounceMs)
	assert.True(t, ctx.Config.Verbose)
	assert.Equal(t, []string{
		filepath.Join(dir, "src"),
		filepath.Join(dir, "plugins"),
	}, ctx.SourceRootPaths())
}
