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
package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/mirror"
	"bennypowers.dev/molt/runtime"
)

func loadModule(t *testing.T, files map[string]string, path string) *runtime.Module {
	t.Helper()
	fs := platform.NewMapFS(files)
	loader := runtime.NewLoader(fs, runtime.NewRegistry(), []string{"proj"}, nil, nil)
	m, err := loader.Load(path)
	require.NoError(t, err)
	return m
}

func kindOf(t *testing.T, tree *mirror.Tree, fullName string) mirror.Kind {
	t.Helper()
	n, ok := tree.Lookup(fullName)
	require.True(t, ok, "no node %q", fullName)
	return n.Kind
}

func TestBuildTreeVariants(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
sprinkler_n = 3

def fun(a):
    return a

class Carwash:
    cars_n = 0

    def wash(self):
        return "clean"

    @classmethod
    def default(cls):
        return cls()

    @property
    def busy(self):
        return False

    @busy.setter
    def busy(self, value):
        pass

car_data = {"engine_power": 200}
alias = fun
`,
	}, "proj/mod.py")

	tree := mirror.BuildTree(m)

	assert.Equal(t, mirror.KindModule, tree.Root.Kind)
	assert.Equal(t, "mod", tree.Root.FullName())
	assert.Equal(t, mirror.KindVariable, kindOf(t, tree, "mod.sprinkler_n"))
	assert.Equal(t, mirror.KindFunction, kindOf(t, tree, "mod.fun"))
	assert.Equal(t, mirror.KindClass, kindOf(t, tree, "mod.Carwash"))
	assert.Equal(t, mirror.KindClassVariable, kindOf(t, tree, "mod.Carwash.cars_n"))
	assert.Equal(t, mirror.KindMethod, kindOf(t, tree, "mod.Carwash.wash"))
	assert.Equal(t, mirror.KindClassMethod, kindOf(t, tree, "mod.Carwash.default"))
	assert.Equal(t, mirror.KindPropertyGetter, kindOf(t, tree, "mod.Carwash.busy"))
	assert.Equal(t, mirror.KindPropertySetter, kindOf(t, tree, "mod.Carwash.busy__setter__"))
	assert.Equal(t, mirror.KindDictionary, kindOf(t, tree, "mod.car_data"))
	assert.Equal(t, mirror.KindDictionaryItem, kindOf(t, tree, "mod.car_data.engine_power"))
	// alias repeats fun's identity: promoted to a Reference leaf
	assert.Equal(t, mirror.KindReference, kindOf(t, tree, "mod.alias"))
}

func TestBuildTreeForeignObjectsAreLeaves(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"proj/other.py": `
def helper():
    return 1

class Base:
    pass
`,
		"proj/mod.py": `
import other
from other import helper, Base
`,
	})
	loader := runtime.NewLoader(fs, runtime.NewRegistry(), []string{"proj"}, nil, nil)
	m, err := loader.Load("proj/mod.py")
	require.NoError(t, err)

	tree := mirror.BuildTree(m)
	assert.Equal(t, mirror.KindImport, kindOf(t, tree, "mod.other"))
	// foreign function and class are opaque Variables, never descended
	assert.Equal(t, mirror.KindVariable, kindOf(t, tree, "mod.helper"))
	assert.Equal(t, mirror.KindVariable, kindOf(t, tree, "mod.Base"))
	helperNode, _ := tree.Lookup("mod.helper")
	assert.Empty(t, helperNode.Children())
}

func TestFullNamesAreUnique(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
x = 1

class A:
    x = 2

data = {"x": 3}
`,
	}, "proj/mod.py")

	tree := mirror.BuildTree(m)
	seen := map[string]bool{}
	for _, n := range tree.Flat() {
		assert.False(t, seen[n.FullName()], "duplicate full name %q", n.FullName())
		seen[n.FullName()] = true
	}
	assert.True(t, seen["mod.x"])
	assert.True(t, seen["mod.A.x"])
	assert.True(t, seen["mod.data.x"])
}

func TestDiffNoChanges(t *testing.T) {
	files := map[string]string{
		"proj/mod.py": `
sprinkler_n = 3

def fun(a, b):
    return a + b

class Carwash:
    def wash(self):
        return "clean"
`,
	}
	fs := platform.NewMapFS(files)
	loader := runtime.NewLoader(fs, runtime.NewRegistry(), []string{"proj"}, nil, nil)
	live, err := loader.Load("proj/mod.py")
	require.NoError(t, err)
	fresh, err := loader.LoadEphemeral("proj/mod.py")
	require.NoError(t, err)

	actions, err := mirror.Diff(mirror.BuildTree(live), mirror.BuildTree(fresh), &mirror.Pass{})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

type noisyValue struct{}

func (noisyValue) Type() string { return "noisy" }
func (noisyValue) Repr() string { return "<noisy>" }

func TestComparatorPanicMeansEqual(t *testing.T) {
	mirror.RegisterComparator(mirror.Comparator{
		Name:  "panics",
		Match: func(v runtime.Value) bool { _, ok := v.(noisyValue); return ok },
		Cmp:   func(a, b runtime.Value) bool { panic("noisy comparator") },
	})
	assert.True(t, mirror.ValuesEqual(noisyValue{}, noisyValue{}),
		"a throwing comparator must not block reload")
}

func TestValuesEqualStructural(t *testing.T) {
	assert.True(t, mirror.ValuesEqual(runtime.Int(3), runtime.Int(3)))
	assert.False(t, mirror.ValuesEqual(runtime.Int(3), runtime.Int(6)))

	a := runtime.NewList(runtime.Int(1), runtime.Int(2))
	b := runtime.NewList(runtime.Int(1), runtime.Int(2))
	assert.True(t, mirror.ValuesEqual(a, b), "lists compare per item, not by identity")

	d1 := runtime.NewDict()
	d1.Set("engine_power", runtime.Int(200))
	d2 := runtime.NewDict()
	d2.Set("engine_power", runtime.Int(250))
	assert.False(t, mirror.ValuesEqual(d1, d2))
}
