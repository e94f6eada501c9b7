package pixelplace

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockResource1 struct {
	name string
}
type MockResource2 struct {
	name string
}

func NewMockResource1(name string) *MockResource1 {
	return &MockResource1{name: name}
}
func NewMockResource2(name string) *MockResource2 {
	return &MockResource2{name: name}
}

func TestApp_changeState(t *testing.T) {
	app := &App{
		stateful:     true,
		initialState: 1,
		state:        1,
		finalState:   2,
	}

	app.changeState(2)
	assert.Equal(t, State(2), app.nextState)
	assert.True(t, app.stateTransitioning)

	app.executeChangeState(2)
	assert.Equal(t, State(2), app.state)
}

func TestApp_addResources(t *testing.T) {
	app := &App{
		resources: make(map[reflect.Type]any),
	}

	resource1 := NewMockResource1("Resource1")
	app.addResources(resource1)
	assert.Contains(t, app.resources, reflect.TypeOf(resource1).Elem())

	require.PanicsWithValue(t, fmt.Sprintf("%s is already in resources", reflect.TypeOf(resource1)), func() {
		app.addResources(resource1)
	})

	resource2 := NewMockResource2("Resource2")
	app.addResources(resource2)
	assert.Contains(t, app.resources, reflect.TypeOf(resource2).Elem())

	r, ok := app.Resource((*MockResource2)(nil))
	require.True(t, ok)
	assert.Same(t, resource2, r)
}

func TestApp_systemsReceiveResources(t *testing.T) {
	res := NewMockResource1("shared")
	var seen []string
	app := NewAppBuilder().Build()
	app.addResources(res)
	app.UseSystem(System(func(r *MockResource1) {
		seen = append(seen, "update:"+r.name)
	}))
	app.UseSystem(System(func(r *MockResource1, cmd *Commands) {
		seen = append(seen, "prelude:"+r.name)
		cmd.Quit()
	}).InStage(Prelude))

	app.Run()
	assert.Equal(t, []string{"prelude:shared", "update:shared"}, seen)
	assert.Equal(t, uint64(1), app.Frames())
}

func TestApp_unresolvedDependencyPanics(t *testing.T) {
	app := NewAppBuilder().Build()
	app.UseSystem(System(func(r *MockResource2) {}))
	assert.Panics(t, func() { app.Step() })
}

func TestApp_statefulRun(t *testing.T) {
	const (
		running State = iota
		done
	)
	var log []string
	app := NewAppBuilder().UseStates(running, done).Build()
	app.UseSystem(System(func() { log = append(log, "enter running") }).InState(OnEnter(running)))
	app.UseSystem(System(func(cmd *Commands) {
		log = append(log, "tick")
		if len(log) == 3 {
			cmd.ChangeState(done)
		}
	}).InState(OnExecute(running)))
	app.UseSystem(System(func() { log = append(log, "exit running") }).InState(OnExit(running)))
	app.UseSystem(System(func() { log = append(log, "exit done") }).InStage(Finale).InState(OnExit(done)))

	app.Run()
	assert.Equal(t, []string{"enter running", "tick", "tick", "exit running", "exit done"}, log)
}

func TestApp_UseStage(t *testing.T) {
	app := NewAppBuilder().Build()
	custom := Stage{Name: "Flush"}
	app.UseStage(custom, AfterStage(Update))

	var order []string
	app.UseSystem(System(func() { order = append(order, "flush") }).InStage(custom))
	app.UseSystem(System(func() { order = append(order, "update") }))
	app.UseSystem(System(func(cmd *Commands) { order = append(order, "post"); cmd.Quit() }).InStage(PostUpdate))
	app.Run()

	assert.Equal(t, []string{"update", "flush", "post"}, order)
	assert.Panics(t, func() { app.UseStage(Stage{Name: "x"}, BeforeStage(Stage{Name: "missing"})) })
	assert.Panics(t, func() { app.UseSystem(System(func() {}).InStage(Stage{Name: "missing"})) })
	assert.Panics(t, func() { app.UseSystem(System(func() {}).InState(OnEnter(1))) })
}
