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
package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/runtime"
)

func loadModule(t *testing.T, files map[string]string, path string) *runtime.Module {
	t.Helper()
	fs := platform.NewMapFS(files)
	registry := runtime.NewRegistry()
	loader := runtime.NewLoader(fs, registry, []string{"proj"}, nil, nil)
	m, err := loader.Load(path)
	require.NoError(t, err)
	return m
}

func attr(t *testing.T, m *runtime.Module, name string) runtime.Value {
	t.Helper()
	v, ok := m.Attr(name)
	require.True(t, ok, "module %s has no attribute %q", m.Name(), name)
	return v
}

func TestModuleGlobals(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
count = 3
rate = 1.5
name = "carwash"
enabled = True
empty = None
total = count * 2 + 1
ratio = count / 3
floor = 7 // 2
`,
	}, "proj/mod.py")

	assert.Equal(t, runtime.Int(3), attr(t, m, "count"))
	assert.Equal(t, runtime.Float(1.5), attr(t, m, "rate"))
	assert.Equal(t, runtime.Str("carwash"), attr(t, m, "name"))
	assert.Equal(t, runtime.Bool(true), attr(t, m, "enabled"))
	assert.Equal(t, runtime.None, attr(t, m, "empty"))
	assert.Equal(t, runtime.Int(7), attr(t, m, "total"))
	assert.Equal(t, runtime.Float(1), attr(t, m, "ratio"))
	assert.Equal(t, runtime.Int(3), attr(t, m, "floor"))
}

func TestListsAndDicts(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
cars = ["audi", "bmw"]
car_data = {"engine_power": 200, "wheels_n": 4}
first = cars[0]
power = car_data["engine_power"]
n = len(cars)
`,
	}, "proj/mod.py")

	cars, ok := attr(t, m, "cars").(*runtime.List)
	require.True(t, ok)
	assert.Len(t, cars.Items, 2)

	data, ok := attr(t, m, "car_data").(*runtime.Dict)
	require.True(t, ok)
	power, _ := data.Get("engine_power")
	assert.Equal(t, runtime.Int(200), power)
	assert.Equal(t, []string{"engine_power", "wheels_n"}, data.Keys())

	assert.Equal(t, runtime.Str("audi"), attr(t, m, "first"))
	assert.Equal(t, runtime.Int(200), attr(t, m, "power"))
	assert.Equal(t, runtime.Int(2), attr(t, m, "n"))
}

func TestFunctionDefinitionAndCall(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
def add(a, b=10):
    return a + b

def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

result = add(1, 2)
`,
	}, "proj/mod.py")

	assert.Equal(t, runtime.Int(3), attr(t, m, "result"))

	add, ok := attr(t, m, "add").(*runtime.Function)
	require.True(t, ok)
	v, err := add.Call(runtime.Int(5))
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(15), v)

	fib := attr(t, m, "fib").(*runtime.Function)
	v, err = fib.Call(runtime.Int(10))
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(55), v)

	code := add.Code()
	assert.Equal(t, 2, code.ArgCount)
	assert.Equal(t, "add", code.Name)
	assert.Contains(t, code.VarNames, "a")
	assert.Contains(t, code.VarNames, "b")
}

func TestMissingArgument(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
def fun(a, b):
    return a
`,
	}, "proj/mod.py")

	fun := attr(t, m, "fun").(*runtime.Function)
	_, err := fun.Call(runtime.Int(1))
	assert.ErrorContains(t, err, "missing required argument")
	_, err = fun.Call(runtime.Int(1), runtime.Int(2), runtime.Int(3))
	assert.ErrorContains(t, err, "takes 2 arguments")
}

func TestClassDefinition(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
class Carwash:
    sprinklers_n = 3

    def __init__(self, cars_n):
        self.cars_n = cars_n

    def queue(self):
        return self.cars_n + 1

    @classmethod
    def default(cls):
        return cls(0)

    @property
    def busy(self):
        return self.cars_n > 2

wash = Carwash(4)
q = wash.queue()
b = wash.busy
`,
	}, "proj/mod.py")

	cls, ok := attr(t, m, "Carwash").(*runtime.Class)
	require.True(t, ok)
	n, _ := cls.Attr("sprinklers_n")
	assert.Equal(t, runtime.Int(3), n)

	assert.Equal(t, runtime.Int(5), attr(t, m, "q"))
	assert.Equal(t, runtime.Bool(true), attr(t, m, "b"))

	inst, err := cls.Call(runtime.Int(1))
	require.NoError(t, err)
	wash := inst.(*runtime.Instance)
	assert.Same(t, cls, wash.Class())

	bound, err := wash.Attr("default")
	require.NoError(t, err)
	fresh, err := bound.(*runtime.BoundMethod).Call()
	require.NoError(t, err)
	assert.Same(t, cls, fresh.(*runtime.Instance).Class())
}

func TestInheritanceAndMRO(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": `
class Base:
    def kind(self):
        return "base"

class Left(Base):
    pass

class Right(Base):
    def kind(self):
        return "right"

class Child(Left, Right):
    pass

c = Child()
k = c.kind()
`,
	}, "proj/mod.py")

	assert.Equal(t, runtime.Str("right"), attr(t, m, "k"))

	child := attr(t, m, "Child").(*runtime.Class)
	base := attr(t, m, "Base").(*runtime.Class)
	assert.True(t, child.IsSubclassOf(base))
	mro := child.MRO()
	require.Len(t, mro, 4)
	assert.Equal(t, "Child", mro[0].Name())
	assert.Equal(t, "Base", mro[3].Name())
}

func TestImports(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"proj/carwash.py": "sprinkler_n = 3\n",
		"proj/car.py": `
from carwash import sprinkler_n
import carwash

car_sprinklers = sprinkler_n / 3
total = carwash.sprinkler_n
`,
	})
	registry := runtime.NewRegistry()
	loader := runtime.NewLoader(fs, registry, []string{"proj"}, nil, nil)

	car, err := loader.Load("proj/car.py")
	require.NoError(t, err)

	assert.Equal(t, runtime.Float(1), attr(t, car, "car_sprinklers"))
	assert.Equal(t, runtime.Int(3), attr(t, car, "total"))

	carwash, ok := registry.ByName("carwash")
	require.True(t, ok, "imported module registers itself")
	bound, _ := car.Attr("carwash")
	assert.Same(t, carwash, bound)
}

func TestStarImport(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"proj/carwash.py": "sprinkler_n = 3\n_private = 1\n",
		"proj/car.py":     "from carwash import *\nn = sprinkler_n\n",
	})
	registry := runtime.NewRegistry()
	loader := runtime.NewLoader(fs, registry, []string{"proj"}, nil, nil)

	car, err := loader.Load("proj/car.py")
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(3), attr(t, car, "n"))
	_, hasPrivate := car.Attr("_private")
	assert.False(t, hasPrivate, "star import skips underscore names")
}

func TestSyntaxError(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"proj/bad.py": "def fun(:\n    pass\n",
	})
	loader := runtime.NewLoader(fs, runtime.NewRegistry(), []string{"proj"}, nil, nil)

	_, err := loader.Load("proj/bad.py")
	var syntaxErr *runtime.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Equal(t, "proj/bad.py", syntaxErr.File)
}

func TestEphemeralLoadDoesNotRegister(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"proj/mod.py": "x = 1\n",
	})
	registry := runtime.NewRegistry()
	loader := runtime.NewLoader(fs, registry, []string{"proj"}, nil, nil)

	live, err := loader.Load("proj/mod.py")
	require.NoError(t, err)
	fresh, err := loader.LoadEphemeral("proj/mod.py")
	require.NoError(t, err)

	assert.NotSame(t, live, fresh)
	assert.Len(t, registry.ByFile("proj/mod.py"), 1)
	registered, _ := registry.ByName("mod")
	assert.Same(t, live, registered)
}

func TestCodeEquality(t *testing.T) {
	src := "def fun(a, b):\n    return a + b\n"
	m1 := loadModule(t, map[string]string{"proj/mod.py": src}, "proj/mod.py")
	m2 := loadModule(t, map[string]string{"proj/mod.py": src}, "proj/mod.py")

	f1 := attr(t, m1, "fun").(*runtime.Function)
	f2 := attr(t, m2, "fun").(*runtime.Function)
	assert.True(t, f1.Code().Equal(f2.Code()), "same source yields equal descriptors")

	m3 := loadModule(t, map[string]string{
		"proj/mod.py": "def fun(a, b):\n    return a - b\n",
	}, "proj/mod.py")
	f3 := attr(t, m3, "fun").(*runtime.Function)
	assert.False(t, f1.Code().Equal(f3.Code()), "different bodies yield different descriptors")
}

func TestCodeSwapPreservesIdentity(t *testing.T) {
	m := loadModule(t, map[string]string{
		"proj/mod.py": "def fun(a):\n    return a + 1\n",
	}, "proj/mod.py")
	m2 := loadModule(t, map[string]string{
		"proj/mod.py": "def fun(a):\n    return a + 2\n",
	}, "proj/mod.py")

	fun := attr(t, m, "fun").(*runtime.Function)
	held := fun // user code keeps a reference

	fun.SwapCode(attr(t, m2, "fun").(*runtime.Function).Code())

	v, err := held.Call(runtime.Int(1))
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(3), v, "held reference dispatches the new code")
}
