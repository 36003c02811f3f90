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
package reload_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/molt/depgraph"
	"bennypowers.dev/molt/internal/platform"
	"bennypowers.dev/molt/mirror"
	"bennypowers.dev/molt/reload"
	"bennypowers.dev/molt/runtime"
)

type fixture struct {
	fs      *platform.MapFS
	loader  *runtime.Loader
	tracker *depgraph.Tracker
}

func newFixture(files map[string]string) *fixture {
	fs := platform.NewMapFS(files)
	tracker := depgraph.NewTracker(fs, nil)
	tracker.Enable(nil)
	loader := runtime.NewLoader(fs, runtime.NewRegistry(), []string{"proj"}, tracker, nil)
	return &fixture{fs: fs, loader: loader, tracker: tracker}
}

func (f *fixture) load(t *testing.T, path string) *runtime.Module {
	t.Helper()
	m, err := f.loader.Load(path)
	require.NoError(t, err)
	f.tracker.RegisterModule(m)
	return m
}

func (f *fixture) edit(path, content string) {
	_ = f.fs.WriteFile(path, []byte(content), 0644)
}

func (f *fixture) run(t *testing.T, m *runtime.Module) []mirror.Action {
	t.Helper()
	actions, err := reload.New(m, "proj", nil, f.loader, f.tracker).Run()
	require.NoError(t, err)
	return actions
}

func traces(actions []mirror.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}

func attr(t *testing.T, m *runtime.Module, name string) runtime.Value {
	t.Helper()
	v, ok := m.Attr(name)
	require.True(t, ok, "module %s has no attribute %q", m.Name(), name)
	return v
}

func TestAddTopLevelFunction(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "def fun(a, b):\n    return a + b\n",
	})
	m := f.load(t, "proj/module.py")
	funBefore := attr(t, m, "fun")

	f.edit("proj/module.py", "def fun(a, b):\n    return a + b\n\ndef fun2(a):\n    return a * 2\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Add: Function: module.fun2"}, traces(actions))
	assert.Same(t, funBefore, attr(t, m, "fun"), "existing function identity preserved")

	fun2 := attr(t, m, "fun2").(*runtime.Function)
	v, err := fun2.Call(runtime.Int(21))
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(42), v)
}

func TestModifyFunctionBody(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "def fun(a, b):\n    return a + b\n",
	})
	m := f.load(t, "proj/module.py")
	held := attr(t, m, "fun").(*runtime.Function)

	f.edit("proj/module.py", "def fun(a):\n    return a\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Update: Function: module.fun"}, traces(actions))
	assert.Same(t, held, attr(t, m, "fun"), "function identity unchanged")

	v, err := held.Call(runtime.Int(7))
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(7), v, "new arity observable through old reference")
}

func TestDeleteFunction(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "def fun(a):\n    return a\n\ndef fun2(a):\n    return a\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", "def fun(a):\n    return a\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Delete: Function: module.fun2"}, traces(actions))
	_, exists := m.Attr("fun2")
	assert.False(t, exists)
}

func TestVariableCascadesToImporter(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/carwash.py": "sprinkler_n = 3\n",
		"proj/car.py":     "from carwash import sprinkler_n\n\ncar_sprinklers = sprinkler_n / 3\n",
	})
	carwash := f.load(t, "proj/carwash.py")
	car := f.load(t, "proj/car.py")

	f.edit("proj/carwash.py", "sprinkler_n = 6\n")
	actions := f.run(t, carwash)

	want := []string{
		"Update: Variable: carwash.sprinkler_n",
		"Update: Module: car",
		"Update: Variable: car.sprinkler_n",
		"Update: Variable: car.car_sprinklers",
	}
	if diff := cmp.Diff(want, traces(actions)); diff != "" {
		t.Errorf("action trace mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, runtime.Int(6), attr(t, carwash, "sprinkler_n"))
	assert.Equal(t, runtime.Int(6), attr(t, car, "sprinkler_n"))
	assert.Equal(t, runtime.Float(2), attr(t, car, "car_sprinklers"))
}

func TestVariableCascadesThroughStarImport(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/carwash.py": "sprinkler_n = 3\n",
		"proj/car.py":     "from carwash import *\n\ncar_sprinklers = sprinkler_n / 3\n",
	})
	carwash := f.load(t, "proj/carwash.py")
	car := f.load(t, "proj/car.py")

	f.edit("proj/carwash.py", "sprinkler_n = 6\n")
	actions := f.run(t, carwash)

	assert.Equal(t, []string{
		"Update: Variable: carwash.sprinkler_n",
		"Update: Module: car",
		"Update: Variable: car.sprinkler_n",
		"Update: Variable: car.car_sprinklers",
	}, traces(actions))
	assert.Equal(t, runtime.Float(2), attr(t, car, "car_sprinklers"))
}

func TestVariableCascadesTransitively(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/carwash.py":    "sprinkler_n = 3\n",
		"proj/car.py":        "from carwash import sprinkler_n\n\ncar_sprinklers = sprinkler_n / 3\n",
		"proj/accounting.py": "from car import car_sprinklers\n\nsprinklers_cost = car_sprinklers * 100\n",
	})
	carwash := f.load(t, "proj/carwash.py")
	car := f.load(t, "proj/car.py")
	accounting := f.load(t, "proj/accounting.py")

	f.edit("proj/carwash.py", "sprinkler_n = 6\n")
	actions := f.run(t, carwash)

	got := traces(actions)
	assert.Contains(t, got, "Update: Variable: carwash.sprinkler_n")
	assert.Contains(t, got, "Update: Module: car")
	assert.Contains(t, got, "Update: Variable: car.car_sprinklers")
	assert.Contains(t, got, "Update: Module: accounting")
	assert.Contains(t, got, "Update: Variable: accounting.sprinklers_cost")

	assert.Equal(t, runtime.Float(2), attr(t, car, "car_sprinklers"))
	assert.Equal(t, runtime.Float(200), attr(t, accounting, "sprinklers_cost"))
}

func TestSwapDictionaryValue(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": `car_data = {"engine_power": 200, "wheels_n": 4}` + "\n",
	})
	m := f.load(t, "proj/module.py")
	dictBefore := attr(t, m, "car_data")

	f.edit("proj/module.py", `car_data = {"engine_power": 250, "wheels_n": 4}`+"\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Update: DictionaryItem: module.car_data.engine_power"}, traces(actions))
	assert.Same(t, dictBefore, attr(t, m, "car_data"), "dictionary identity preserved")
	power, _ := attr(t, m, "car_data").(*runtime.Dict).Get("engine_power")
	assert.Equal(t, runtime.Int(250), power)
}

func TestRenameDictionaryKey(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": `car_data = {"engine_power": 200}` + "\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", `car_data = {"engine_force": 200}`+"\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{
		"Add: DictionaryItem: module.car_data.engine_force",
		"Delete: DictionaryItem: module.car_data.engine_power",
	}, traces(actions))

	d := attr(t, m, "car_data").(*runtime.Dict)
	_, hasOld := d.Get("engine_power")
	assert.False(t, hasOld)
	force, _ := d.Get("engine_force")
	assert.Equal(t, runtime.Int(200), force)
}

func TestAddBaseClass(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": `
class CarwashBase:
    def base_kind(self):
        return "base"

class Carwash:
    def wash(self):
        return "clean"
`,
	})
	m := f.load(t, "proj/module.py")
	carwashBefore := attr(t, m, "Carwash").(*runtime.Class)
	base := attr(t, m, "CarwashBase").(*runtime.Class)

	f.edit("proj/module.py", `
class CarwashBase:
    def base_kind(self):
        return "base"

class Carwash(CarwashBase):
    def wash(self):
        return "clean"
`)
	actions := f.run(t, m)

	assert.Equal(t, []string{"Update: Class: module.Carwash"}, traces(actions))

	carwash := attr(t, m, "Carwash").(*runtime.Class)
	assert.Same(t, carwashBefore, carwash, "class identity preserved across base swap")
	require.Len(t, carwash.Bases(), 1)
	assert.Same(t, base, carwash.Bases()[0], "base points at the live base class, not the ephemeral one")

	inst, err := carwash.Call()
	require.NoError(t, err)
	assert.True(t, inst.(*runtime.Instance).Class().IsSubclassOf(base))

	kind, err := inst.(*runtime.Instance).Attr("base_kind")
	require.NoError(t, err)
	v, err := kind.(*runtime.BoundMethod).Call()
	require.NoError(t, err)
	assert.Equal(t, runtime.Str("base"), v, "inherited method dispatches through the new base")
}

func TestSyntaxErrorLeavesModuleUntouched(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "x = 1\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", "def fun(:\n")
	_, err := reload.New(m, "proj", nil, f.loader, f.tracker).Run()

	var syntaxErr *runtime.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Equal(t, runtime.Int(1), attr(t, m, "x"), "live module unchanged")
}

func TestIdempotence(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/carwash.py": "sprinkler_n = 3\n\ndef fun(a):\n    return a\n\nclass Carwash:\n    cars_n = 0\n",
		"proj/car.py":     "from carwash import sprinkler_n\n\ncar_sprinklers = sprinkler_n / 3\n",
	})
	carwash := f.load(t, "proj/carwash.py")
	f.load(t, "proj/car.py")

	f.edit("proj/carwash.py", "sprinkler_n = 6\n\ndef fun(a):\n    return a + 1\n\nclass Carwash:\n    cars_n = 2\n")
	first := f.run(t, carwash)
	assert.NotEmpty(t, first)

	second := f.run(t, carwash)
	assert.Empty(t, traces(second), "second run with no source change applies nothing")
}

func TestMethodFreshnessOnExistingInstance(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": `
class Carwash:
    def wash(self):
        return "clean"
`,
	})
	m := f.load(t, "proj/module.py")
	cls := attr(t, m, "Carwash").(*runtime.Class)
	inst, err := cls.Call()
	require.NoError(t, err)
	wash := inst.(*runtime.Instance)

	f.edit("proj/module.py", `
class Carwash:
    def wash(self):
        return "spotless"
`)
	actions := f.run(t, m)
	assert.Equal(t, []string{"Update: Method: module.Carwash.wash"}, traces(actions))

	assert.Same(t, cls, wash.Class(), "instance class pointer unchanged")
	bound, err := wash.Attr("wash")
	require.NoError(t, err)
	v, err := bound.(*runtime.BoundMethod).Call()
	require.NoError(t, err)
	assert.Equal(t, runtime.Str("spotless"), v, "dispatch yields the new code")
}

func TestAddClassVariable(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "class Carwash:\n    def wash(self):\n        return 1\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", "class Carwash:\n    cars_n = 5\n\n    def wash(self):\n        return 1\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Add: ClassVariable: module.Carwash.cars_n"}, traces(actions))
	cls := attr(t, m, "Carwash").(*runtime.Class)
	n, _ := cls.Attr("cars_n")
	assert.Equal(t, runtime.Int(5), n)
}

func TestAddWholeClass(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "x = 1\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", "x = 1\n\nclass Carwash:\n    sprinklers_n = 3\n\n    def print_sprinklers(self):\n        return self.sprinklers_n\n")
	actions := f.run(t, m)

	got := traces(actions)
	assert.ElementsMatch(t, []string{
		"Add: ClassVariable: module.Carwash.sprinklers_n",
		"Add: Method: module.Carwash.print_sprinklers",
		"Add: Class: module.Carwash",
	}, got)

	cls := attr(t, m, "Carwash").(*runtime.Class)
	inst, err := cls.Call()
	require.NoError(t, err)
	bound, err := inst.(*runtime.Instance).Attr("print_sprinklers")
	require.NoError(t, err)
	v, err := bound.(*runtime.BoundMethod).Call()
	require.NoError(t, err)
	assert.Equal(t, runtime.Int(3), v, "added class is fully operational against live globals")
}

func TestAliasKeepsSingleIdentity(t *testing.T) {
	f := newFixture(map[string]string{
		"proj/module.py": "def fun(a):\n    return a\n\nalias = fun\n",
	})
	m := f.load(t, "proj/module.py")

	f.edit("proj/module.py", "def fun(a):\n    return a + 1\n\nalias = fun\n")
	actions := f.run(t, m)

	assert.Equal(t, []string{"Update: Function: module.fun"}, traces(actions))
	assert.Same(t, attr(t, m, "fun"), attr(t, m, "alias"), "alias still points at the same object")
}
