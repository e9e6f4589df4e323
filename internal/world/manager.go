package world

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"voxelstream/internal/config"
	"voxelstream/internal/generation"
	"voxelstream/internal/mesh"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

// Handoff is a freshly meshed chunk for the rendering collaborator.
type Handoff struct {
	Key        Key
	Origin     mgl32.Vec3
	Generation uint64
	Mesh       *mesh.MeshData
}

// Sink receives rendering hand-offs. Calls happen on the tick goroutine and
// must not block.
type Sink interface {
	MeshReady(h Handoff)
	VisibilityChanged(key Key, visible bool)
	Evicted(key Key)
}

// Recorder observes every applied completion.
type Recorder interface {
	RecordCompletion(res generation.Result)
}

// Options are the load-time constants of the streaming manager.
type Options struct {
	Width        int
	ViewDistance int
	MaxResident  int
	DrainBatch   int

	Seed    int64
	Noise   noise.Params
	Ground  terrain.VariantSpec
	Table   terrain.Table
	Atlas   mesh.Atlas
	Shading mesh.Shading

	WaterEnabled bool
	Water        terrain.VariantSpec
	WaterTable   terrain.Table
	WaterNoise   noise.Params
	WaterSpeed   float64
	WaterRefresh time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	keys := make([]noise.CurveKey, len(cfg.Noise.Curve))
	for i, k := range cfg.Noise.Curve {
		keys[i] = noise.CurveKey{Time: k.Time, Value: k.Value}
	}
	params := noise.Params{
		Scale:         cfg.Noise.Scale,
		Octaves:       cfg.Noise.Octaves,
		Persistence:   cfg.Noise.Persistence,
		Lacunarity:    cfg.Noise.Lacunarity,
		BaseFrequency: cfg.Noise.BaseFrequency,
		Offset:        cfg.Noise.Offset,
		Curve:         noise.NewCurve(keys),
		Basis:         cfg.Noise.Basis,
	}
	waterParams := noise.Params{
		Scale:  cfg.Water.Scale,
		Offset: cfg.Noise.Offset,
		Basis:  cfg.Noise.Basis,
	}
	return Options{
		Width:        cfg.Chunk.Width,
		ViewDistance: cfg.Stream.ViewDistance,
		MaxResident:  cfg.Stream.MaxResident,
		DrainBatch:   cfg.Stream.DrainBatch,
		Seed:         cfg.Noise.Seed,
		Noise:        params,
		Ground:       terrain.GroundSpec(cfg.Chunk),
		Table:        terrain.NewTable(cfg.Terrain),
		Atlas:        mesh.Atlas{Blocks: cfg.Atlas.Blocks},
		Shading:      mesh.ShadingFromConfig(cfg.Shading),
		WaterEnabled: cfg.Water.Enabled,
		Water:        terrain.WaterSpec(cfg.Water),
		WaterTable:   terrain.Table{terrain.FromConfig(cfg.Water.Terrain)},
		WaterNoise:   waterParams,
		WaterSpeed:   noise.Magnitude(cfg.Water.Speed),
		WaterRefresh: cfg.Water.RefreshRate.Duration(),
	}
}

// StreamingState is everything the manager tracks between ticks.
type StreamingState struct {
	Resident        map[Key]*Chunk
	PreviousVisible []Key
	ViewerChunk     ChunkCoord
	Initialized     bool
	Tick            uint64
}

// DrainReport summarizes one Drain call.
type DrainReport struct {
	Applied        int
	Stale          int
	MeshDispatched int
}

// TickReport summarizes one Tick call.
type TickReport struct {
	Drain          DrainReport
	Streamed       bool
	WaterRefreshed int
	Evicted        int
}

// Manager owns the resident chunk set. Tick, UpdateVisible, Drain,
// RefreshWater and Evict must be called from a single goroutine; Chunk and
// Stats may be called from anywhere.
type Manager struct {
	opts      Options
	queue     *generation.Queue
	dispatch  generation.Dispatcher
	sink      Sink
	recorders []Recorder
	logger    *log.Logger
	limiter   *rate.Limiter
	now       func() time.Time

	mu         sync.RWMutex
	state      StreamingState
	nextSerial uint64
	elapsed    float64
}

func NewManager(opts Options, queue *generation.Queue, dispatch generation.Dispatcher, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "world ", log.LstdFlags|log.Lmicroseconds)
	}
	limit := rate.Inf
	if opts.WaterRefresh > 0 {
		limit = rate.Every(opts.WaterRefresh)
	}
	return &Manager{
		opts:     opts,
		queue:    queue,
		dispatch: dispatch,
		sink:     nopSink{},
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		state: StreamingState{
			Resident: make(map[Key]*Chunk),
		},
	}
}

// SetSink replaces the rendering sink. nil disables hand-offs.
func (m *Manager) SetSink(sink Sink) {
	if sink == nil {
		sink = nopSink{}
	}
	m.sink = sink
}

func (m *Manager) AddRecorder(r Recorder) {
	if r != nil {
		m.recorders = append(m.recorders, r)
	}
}

func (m *Manager) Options() Options {
	return m.opts
}

// Chunk returns the resident record for key. Callers must treat it as read
// only.
func (m *Manager) Chunk(key Key) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.state.Resident[key]
	return ch, ok
}

// Stats is a snapshot of residency counters.
type Stats struct {
	Resident    int
	Visible     int
	MeshReady   int
	ViewerChunk ChunkCoord
	Tick        uint64
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{
		Resident:    len(m.state.Resident),
		Visible:     len(m.state.PreviousVisible),
		ViewerChunk: m.state.ViewerChunk,
		Tick:        m.state.Tick,
	}
	for _, ch := range m.state.Resident {
		if ch.State == StateMeshReady {
			stats.MeshReady++
		}
	}
	return stats
}

// SurfaceHeight returns the voxel column height of the ground at a world
// block column, if its chunk data is resident.
func (m *Manager) SurfaceHeight(blockX, blockZ int) (int, bool) {
	coord, lx, lz := LocateColumn(blockX, blockZ, m.opts.Width)
	ch, ok := m.Chunk(Key{Coord: coord, Variant: terrain.Ground})
	if !ok {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ch.ColumnHeight(lx, lz)
}

func (m *Manager) variants() []terrain.VariantSpec {
	if m.opts.WaterEnabled {
		return []terrain.VariantSpec{m.opts.Ground, m.opts.Water}
	}
	return []terrain.VariantSpec{m.opts.Ground}
}

// UpdateVisible recomputes the visible window around the viewer. It does
// nothing while the viewer stays in the same chunk. Chunks that left the
// window are hidden, resident chunks in the window are shown and missing
// chunks are registered before their data jobs are dispatched.
func (m *Manager) UpdateVisible(viewer mgl64.Vec3) bool {
	center := ViewerChunk(viewer, m.opts.Width)

	m.mu.Lock()
	if m.state.Initialized && center == m.state.ViewerChunk {
		m.mu.Unlock()
		return false
	}
	m.state.Initialized = true
	m.state.ViewerChunk = center
	tick := m.state.Tick

	window := Window(center, m.opts.ViewDistance)
	inWindow := make(map[ChunkCoord]struct{}, len(window))
	for _, coord := range window {
		inWindow[coord] = struct{}{}
	}

	var hidden []Key
	for _, key := range m.state.PreviousVisible {
		if _, ok := inWindow[key.Coord]; ok {
			continue
		}
		if ch, ok := m.state.Resident[key]; ok && ch.Visible {
			ch.Visible = false
			ch.LastVisibleTick = tick
			hidden = append(hidden, key)
		}
	}
	m.state.PreviousVisible = m.state.PreviousVisible[:0]

	var shown []Key
	var missing []*Chunk
	for _, coord := range window {
		for _, spec := range m.variants() {
			key := Key{Coord: coord, Variant: spec.Variant}
			ch, ok := m.state.Resident[key]
			if !ok {
				m.nextSerial++
				ch = newChunk(key, m.nextSerial, spec, m.opts.Width)
				m.state.Resident[key] = ch
				missing = append(missing, ch)
			}
			if !ch.Visible {
				ch.Visible = true
				shown = append(shown, key)
			}
			ch.LastVisibleTick = tick
			m.state.PreviousVisible = append(m.state.PreviousVisible, key)
		}
	}

	jobs := make([]generation.DataJob, 0, len(missing))
	for _, ch := range missing {
		ch.Requested = 1
		jobs = append(jobs, m.dataJob(ch, m.elapsed))
	}
	resident := len(m.state.Resident)
	m.mu.Unlock()

	for _, key := range hidden {
		m.sink.VisibilityChanged(key, false)
	}
	for _, key := range shown {
		m.sink.VisibilityChanged(key, true)
	}
	for _, job := range jobs {
		m.dispatch.DispatchData(job)
	}
	if len(missing) > 0 {
		m.logger.Printf("viewer chunk %v: %d resident, %d requested", center, resident, len(missing))
	}
	return true
}

func (m *Manager) dataJob(ch *Chunk, elapsed float64) generation.DataJob {
	params := m.opts.Noise
	table := m.opts.Table
	if ch.Spec.Variant == terrain.Water {
		params = m.opts.WaterNoise
		table = m.opts.WaterTable
	}
	params.Offset = [2]float64{
		params.Offset[0] + float64(ch.Key.Coord.X*m.opts.Width),
		params.Offset[1] + float64(ch.Key.Coord.Z*m.opts.Width),
	}
	return generation.DataJob{
		Key:        ch.Key,
		Serial:     ch.Serial,
		Generation: ch.Requested,
		Width:      m.opts.Width,
		Spec:       ch.Spec,
		Seed:       m.opts.Seed,
		Noise:      params,
		Table:      table,
		Elapsed:    elapsed,
		WaterSpeed: m.opts.WaterSpeed,
	}
}

func (m *Manager) meshJob(ch *Chunk) generation.MeshJob {
	table := m.opts.Table
	if ch.Spec.Variant == terrain.Water {
		table = m.opts.WaterTable
	}
	return generation.MeshJob{
		Key:        ch.Key,
		Serial:     ch.Serial,
		Generation: ch.DataGeneration,
		Grid:       ch.Grid,
		Volume:     ch.Volume,
		Table:      table,
		Options: mesh.Options{
			Spec:    ch.Spec,
			Atlas:   m.opts.Atlas,
			Shading: m.opts.Shading,
		},
	}
}

// Drain applies queued completions in enqueue order. Once the whole batch is
// applied, mesh jobs are dispatched for every chunk whose data changed.
// Results for evicted chunks or superseded generations are dropped.
func (m *Manager) Drain() DrainReport {
	var report DrainReport
	results := m.queue.Drain(m.opts.DrainBatch)
	if len(results) == 0 {
		return report
	}

	var handoffs []Handoff
	var applied []generation.Result
	var meshJobs []generation.MeshJob
	needMesh := make(map[Key]*Chunk)
	var meshOrder []Key

	m.mu.Lock()
	for _, res := range results {
		ch, ok := m.state.Resident[res.Key]
		if !ok || ch.Serial != res.Serial {
			report.Stale++
			continue
		}
		switch res.Kind {
		case generation.KindData:
			if res.Generation <= ch.DataGeneration {
				report.Stale++
				continue
			}
			ch.Grid = res.Grid
			ch.Volume = res.Volume
			ch.DataGeneration = res.Generation
			if ch.State == StateRequested {
				ch.State = StateDataReady
			}
			if _, queued := needMesh[ch.Key]; !queued {
				meshOrder = append(meshOrder, ch.Key)
			}
			needMesh[ch.Key] = ch
		case generation.KindMesh:
			if res.Generation != ch.DataGeneration || res.Generation <= ch.MeshGeneration {
				report.Stale++
				continue
			}
			ch.Mesh = res.Mesh
			ch.MeshGeneration = res.Generation
			ch.State = StateMeshReady
			handoffs = append(handoffs, Handoff{
				Key:        ch.Key,
				Origin:     ch.Origin(),
				Generation: res.Generation,
				Mesh:       res.Mesh,
			})
		default:
			report.Stale++
			continue
		}
		report.Applied++
		applied = append(applied, res)
	}
	for _, key := range meshOrder {
		meshJobs = append(meshJobs, m.meshJob(needMesh[key]))
	}
	m.mu.Unlock()

	for _, res := range applied {
		for _, r := range m.recorders {
			r.RecordCompletion(res)
		}
	}
	for _, h := range handoffs {
		if h.Generation == 1 {
			m.logger.Printf("chunk %v mesh ready (%d faces)", h.Key, h.Mesh.Faces())
		}
		m.sink.MeshReady(h)
	}
	for _, job := range meshJobs {
		m.dispatch.DispatchMesh(job)
	}
	report.MeshDispatched = len(meshJobs)
	return report
}

// RefreshWater regenerates the data of every visible, meshed water chunk
// that has no refresh in flight. elapsed is seconds since session start.
func (m *Manager) RefreshWater(elapsed float64) int {
	if !m.opts.WaterEnabled {
		return 0
	}
	var jobs []generation.DataJob
	m.mu.Lock()
	for _, key := range m.state.PreviousVisible {
		if key.Variant != terrain.Water {
			continue
		}
		ch, ok := m.state.Resident[key]
		if !ok || ch.State != StateMeshReady || ch.RefreshPending() {
			continue
		}
		ch.Requested++
		jobs = append(jobs, m.dataJob(ch, elapsed))
	}
	m.mu.Unlock()

	for _, job := range jobs {
		m.dispatch.DispatchData(job)
	}
	return len(jobs)
}

// Evict drops hidden chunks, least recently visible first, until the
// resident set fits MaxResident. Visible chunks are never evicted.
func (m *Manager) Evict() int {
	if m.opts.MaxResident <= 0 {
		return 0
	}
	m.mu.Lock()
	excess := len(m.state.Resident) - m.opts.MaxResident
	if excess <= 0 {
		m.mu.Unlock()
		return 0
	}
	candidates := make([]*Chunk, 0, len(m.state.Resident))
	for _, ch := range m.state.Resident {
		if !ch.Visible {
			candidates = append(candidates, ch)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.LastVisibleTick != b.LastVisibleTick {
			return a.LastVisibleTick < b.LastVisibleTick
		}
		return a.Serial < b.Serial
	})
	if excess > len(candidates) {
		excess = len(candidates)
	}
	evicted := make([]Key, 0, excess)
	for _, ch := range candidates[:excess] {
		delete(m.state.Resident, ch.Key)
		evicted = append(evicted, ch.Key)
	}
	m.mu.Unlock()

	for _, key := range evicted {
		m.sink.Evicted(key)
	}
	return len(evicted)
}

// Tick runs one control step: apply completions, stream around the viewer,
// animate water when the refresh limiter allows it and enforce the resident
// bound.
func (m *Manager) Tick(viewer mgl64.Vec3, elapsed float64) TickReport {
	m.mu.Lock()
	m.state.Tick++
	m.elapsed = elapsed
	m.mu.Unlock()

	var report TickReport
	report.Drain = m.Drain()
	report.Streamed = m.UpdateVisible(viewer)
	if m.opts.WaterEnabled && m.limiter.AllowN(m.now(), 1) {
		report.WaterRefreshed = m.RefreshWater(elapsed)
	}
	report.Evicted = m.Evict()
	return report
}

type nopSink struct{}

func (nopSink) MeshReady(Handoff)            {}
func (nopSink) VisibilityChanged(Key, bool) {}
func (nopSink) Evicted(Key)                 {}
