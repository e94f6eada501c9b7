package pixelplace

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Bytes      map[string]uint64
	Order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Bytes:      make(map[string]uint64),
	}
}

func (p *Profiler) track(name string) {
	if !slices.Contains(p.Order, name) {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	p.track(name)
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

// SetScope records a duration measured elsewhere.
func (p *Profiler) SetScope(name string, d time.Duration) {
	p.track(name)
	p.Scopes[name] = d
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) SetBytes(name string, n uint64) {
	p.Bytes[name] = n
}

func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		ms := float64(p.Scopes[name].Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	for _, k := range sortedKeys(p.Counts) {
		sb.WriteString(fmt.Sprintf("  %-15s: %s\n", k, humanize.Comma(int64(p.Counts[k]))))
	}
	for _, k := range sortedKeys(p.Bytes) {
		sb.WriteString(fmt.Sprintf("  %-15s: %s\n", k, humanize.Bytes(p.Bytes[k])))
	}

	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProfilerModule adds a Profiler resource and logs its stats at debug level every
// Interval. Counters are only gathered for a report.
type ProfilerModule struct {
	Interval time.Duration
}

type profilerReport struct {
	every time.Duration
	last  time.Time
	log   Logger
}

func (m ProfilerModule) Install(app *App, cmd *Commands) {
	every := m.Interval
	if every <= 0 {
		every = 5 * time.Second
	}
	p := NewProfiler()
	cmd.AddResources(p, &profilerReport{every: every, log: app.Logger()})
	if c, ok := app.Resource((*Canvas)(nil)); ok {
		c.(*Canvas).prof = p
	}
	app.UseSystem(
		System(profilerSystem).
			InStage(Finale).
			RunAlways(),
	)
}

func profilerSystem(p *Profiler, r *profilerReport, c *Canvas, t *Time) {
	if t.Time.Sub(r.last) < r.every {
		return
	}
	r.last = t.Time
	if !r.log.DebugEnabled() {
		return
	}

	ingestStats := c.Ingest.Stats()
	editStats := c.Edits.Stats()
	index := c.Layer.Stats()
	p.SetCount("cells", c.Layer.Cells())
	p.SetCount("index points", index.Points)
	p.SetCount("index nodes", index.Nodes)
	p.SetCount("snapshots", ingestStats.Snapshots)
	p.SetCount("queued edits", c.Edits.Len())
	p.SetCount("written", editStats.Written)
	p.SetCount("failed writes", editStats.Failed)

	r.log.Debugf("frame %d\n%s", t.Frame, p.GetStatsString())
	p.Reset()
}
