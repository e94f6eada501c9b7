package pixelplace

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gekko3d/pixelplace/canvas/edit"
	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/ingest"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/store"
	"github.com/gekko3d/pixelplace/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateRunning State = iota
	stateExit
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func seed(t *testing.T, s *memstore.Store, points ...grid.Point) {
	t.Helper()
	updates := make(map[string]json.RawMessage)
	for _, p := range points {
		key, raw := ingest.EncodeRecord(p)
		updates[key] = raw
	}
	require.NoError(t, s.BatchWrite(context.Background(), "pixels", updates))
}

func newCanvasApp(t *testing.T, s store.Store) (*App, *Canvas, *testClock) {
	t.Helper()
	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	app := NewAppBuilder().
		UseStates(stateRunning, stateExit).
		UseModule(
			TimeModule{Now: clk.Now},
			CanvasModule{Config: DefaultConfig(), Store: s},
			ProfilerModule{},
		).
		Build()
	r, ok := app.Resource((*Canvas)(nil))
	require.True(t, ok)
	return app, r.(*Canvas), clk
}

func TestCanvasModule_IngestsInitialSnapshot(t *testing.T) {
	s := memstore.New()
	seed(t, s, grid.Point{X: 1, Y: 2, Color: 5}, grid.Point{X: -3, Y: 4, Color: 0})
	app, c, _ := newCanvasApp(t, s)

	assert.False(t, c.Ingest.Built())
	require.True(t, app.Step())

	assert.True(t, c.Ingest.Built())
	assert.Equal(t, 2, c.Layer.Cells())
	col, ok := c.Layer.ColorAt(grid.Cell{X: 1, Y: 2})
	require.True(t, ok)
	assert.Equal(t, palette.Index(5), col)

	seed(t, s, grid.Point{X: 7, Y: 7, Color: 9})
	require.True(t, app.Step())
	assert.Equal(t, 3, c.Layer.Cells())
}

func TestCanvasModule_EditsFlushOnTimer(t *testing.T) {
	s := memstore.New()
	app, c, clk := newCanvasApp(t, s)
	require.True(t, app.Step())

	c.Edits.Select(3)
	assert.Equal(t, edit.Queued, c.Paint(grid.Cell{X: 2, Y: 2}, clk.Now()))
	col, ok := c.Layer.ColorAt(grid.Cell{X: 2, Y: 2})
	require.True(t, ok)
	assert.Equal(t, palette.Index(3), col)

	clk.Advance(50 * time.Millisecond)
	require.True(t, app.Step())
	assert.Equal(t, 1, c.Edits.Len())

	clk.Advance(60 * time.Millisecond)
	require.True(t, app.Step())
	assert.Equal(t, 0, c.Edits.Len())

	require.Eventually(t, func() bool {
		_, ok := s.Get("pixels")["2_2"]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCanvasModule_ExitFlushesQueue(t *testing.T) {
	s := memstore.New()
	app, c, clk := newCanvasApp(t, s)
	require.True(t, app.Step())

	c.Paint(grid.Cell{X: 9, Y: -1}, clk.Now())
	app.UseSystem(System(func(cmd *Commands) { cmd.ChangeState(stateExit) }))
	app.Run()

	got := s.Get("pixels")
	require.Contains(t, got, "9_-1")
	var rec store.Record
	require.NoError(t, json.Unmarshal(got["9_-1"], &rec))
	assert.Equal(t, store.Record{X: 9, Y: -1, Color: 0}, rec)
}

func TestCanvas_ClickPaintsAndDragPans(t *testing.T) {
	c, err := NewCanvas(DefaultConfig(), memstore.New(), NewNopLogger())
	require.NoError(t, err)
	defer c.Close()
	now := time.Now()
	in := &Input{WindowWidth: 200, WindowHeight: 200}

	// click
	in.moveMouse(25, 35)
	in.set(MouseButtonLeft, true)
	c.HandleInput(in, now)
	in.set(MouseButtonLeft, false)
	c.HandleInput(in, now)
	assert.Contains(t, c.Edits.Queued(), grid.Cell{X: 2, Y: 3})
	assert.Equal(t, grid.Cell{X: 2, Y: 3}, c.Hovered)

	// drag
	in.set(MouseButtonLeft, true)
	c.HandleInput(in, now)
	in.set(MouseButtonLeft, true)
	in.moveMouse(65, 35)
	c.HandleInput(in, now)
	in.set(MouseButtonLeft, false)
	in.moveMouse(65, 35)
	c.HandleInput(in, now)

	assert.Equal(t, 40.0, c.Viewport.Offset()[0])
	assert.Equal(t, 1, c.Edits.Len())
}

func TestCanvas_WheelZoomKeepsCursorCell(t *testing.T) {
	c, err := NewCanvas(DefaultConfig(), memstore.New(), NewNopLogger())
	require.NoError(t, err)
	defer c.Close()
	in := &Input{}
	in.moveMouse(123, 77)
	before := c.Viewport.CellAt(123, 77, c.CellSize)

	in.ScrollY = 3
	c.HandleInput(in, time.Now())
	assert.InDelta(t, 1.331, c.Viewport.Scale(), 1e-9)
	assert.Equal(t, before, c.Viewport.CellAt(123, 77, c.CellSize))

	in.ScrollY = -1
	c.HandleInput(in, time.Now())
	assert.InDelta(t, 1.21, c.Viewport.Scale(), 1e-9)

	in.ScrollY = 0
	in.set(KeyC, true)
	c.HandleInput(in, time.Now())
	assert.Equal(t, 1.0, c.Viewport.Scale())
}

func TestCanvas_ToolKeys(t *testing.T) {
	c, err := NewCanvas(DefaultConfig(), memstore.New(), NewNopLogger())
	require.NoError(t, err)
	defer c.Close()
	in := &Input{}
	press := func(keys ...int) bool {
		for k := range in.Pressed {
			in.set(k, false)
		}
		for _, k := range keys {
			in.set(k, true)
		}
		return c.HandleInput(in, time.Now())
	}

	press(Key3)
	assert.Equal(t, palette.Index(3), c.Edits.Tool().Color)
	press(KeyShift, Key1)
	assert.Equal(t, palette.Index(11), c.Edits.Tool().Color)
	press(KeyLeftBracket)
	assert.Equal(t, palette.Index(10), c.Edits.Tool().Color)
	press(KeyE)
	assert.True(t, c.Edits.Tool().Eraser)
	press(KeyE)
	assert.False(t, c.Edits.Tool().Eraser)
	assert.True(t, press(KeyEscape))
}

func TestCanvasModule_EditBeforeFirstSnapshotSurvivesBuild(t *testing.T) {
	s := memstore.New()
	seed(t, s, grid.Point{X: 1, Y: 2, Color: 5})
	app, c, clk := newCanvasApp(t, s)

	c.Edits.Select(3)
	require.Equal(t, edit.Queued, c.Paint(grid.Cell{X: 7, Y: 7}, clk.Now()))
	require.True(t, app.Step())

	require.True(t, c.Ingest.Built())
	col, ok := c.Layer.ColorAt(grid.Cell{X: 7, Y: 7})
	require.True(t, ok)
	assert.Equal(t, palette.Index(3), col)
	assert.Equal(t, 2, c.Layer.Cells())
}

func profilerOf(t *testing.T, app *App) *Profiler {
	t.Helper()
	p, ok := app.Resource((*Profiler)(nil))
	require.True(t, ok)
	return p.(*Profiler)
}

func TestProfilerModule_SkipsCountersWithoutDebug(t *testing.T) {
	s := memstore.New()
	seed(t, s, grid.Point{X: 1, Y: 2, Color: 5})
	app, _, _ := newCanvasApp(t, s)

	require.True(t, app.Step())
	p := profilerOf(t, app)
	assert.Empty(t, p.Counts)
	assert.Contains(t, p.Order, "ingest")
	assert.Contains(t, p.Order, "edits")
}

func TestProfilerModule_ReportsAndResetsScopes(t *testing.T) {
	s := memstore.New()
	seed(t, s, grid.Point{X: 1, Y: 2, Color: 5})
	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	app := NewAppBuilder().
		UseStates(stateRunning, stateExit).
		UseModule(
			LoggingModule{Prefix: "test", Debug: true},
			TimeModule{Now: clk.Now},
			CanvasModule{Config: DefaultConfig(), Store: s},
			ProfilerModule{Interval: time.Minute},
		).
		Build()

	require.True(t, app.Step())
	p := profilerOf(t, app)
	assert.Equal(t, 1, p.Counts["cells"])
	assert.Equal(t, 1, p.Counts["snapshots"])
	assert.Equal(t, []string{"ingest", "edits"}, p.Order)
	assert.Zero(t, p.Scopes["ingest"])
	assert.Zero(t, p.Scopes["edits"])

	// inside the interval nothing is gathered
	clk.Advance(time.Second)
	p.SetCount("cells", -1)
	require.True(t, app.Step())
	assert.Equal(t, -1, p.Counts["cells"])
}

func TestProfiler_Stats(t *testing.T) {
	p := NewProfiler()
	p.SetScope("query", 1500*time.Microsecond)
	p.BeginScope("upload")
	p.EndScope("upload")
	p.SetCount("visible", 12345)
	p.SetBytes("uploaded", 2_500_000)

	s := p.GetStatsString()
	assert.Contains(t, s, "query          : 1.50 ms")
	assert.Contains(t, s, "visible        : 12,345")
	assert.Contains(t, s, "uploaded       : 2.5 MB")
	assert.Equal(t, []string{"query", "upload"}, p.Order)

	p.Reset()
	assert.Zero(t, p.Scopes["query"])
}
