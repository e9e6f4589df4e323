package world

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelstream/internal/config"
	"voxelstream/internal/generation"
	"voxelstream/internal/terrain"
)

type recordingDispatcher struct {
	data []generation.DataJob
	mesh []generation.MeshJob
}

func (d *recordingDispatcher) DispatchData(job generation.DataJob) {
	d.data = append(d.data, job)
}

func (d *recordingDispatcher) DispatchMesh(job generation.MeshJob) {
	d.mesh = append(d.mesh, job)
}

// runAll executes every recorded job into q and clears the records.
func (d *recordingDispatcher) runAll(q *generation.Queue) {
	data, meshes := d.data, d.mesh
	d.data, d.mesh = nil, nil
	for _, job := range data {
		q.Enqueue(generation.RunData(job))
	}
	for _, job := range meshes {
		q.Enqueue(generation.RunMesh(job))
	}
}

type recordingSink struct {
	meshes     []Handoff
	visibility map[Key]bool
	evicted    []Key
}

func newRecordingSink() *recordingSink {
	return &recordingSink{visibility: make(map[Key]bool)}
}

func (s *recordingSink) MeshReady(h Handoff) {
	s.meshes = append(s.meshes, h)
}

func (s *recordingSink) VisibilityChanged(key Key, visible bool) {
	s.visibility[key] = visible
}

func (s *recordingSink) Evicted(key Key) {
	s.evicted = append(s.evicted, key)
}

type recordingRecorder struct {
	results []generation.Result
}

func (r *recordingRecorder) RecordCompletion(res generation.Result) {
	r.results = append(r.results, res)
}

func testOptions() Options {
	cfg := config.Default()
	cfg.Chunk.Width = 4
	cfg.Chunk.Height = 6
	cfg.Stream.ViewDistance = 1
	cfg.Water.Enabled = false
	cfg.Water.Height = 3
	cfg.Water.RefreshRate = 0
	return OptionsFromConfig(cfg)
}

func newTestManager(opts Options) (*Manager, *generation.Queue, *recordingDispatcher, *recordingSink) {
	q := generation.NewQueue()
	d := &recordingDispatcher{}
	m := NewManager(opts, q, d, log.New(io.Discard, "", 0))
	sink := newRecordingSink()
	m.SetSink(sink)
	return m, q, d, sink
}

func groundKey(x, z int) Key {
	return Key{Coord: ChunkCoord{X: x, Z: z}, Variant: terrain.Ground}
}

func TestViewerChunkRounds(t *testing.T) {
	tests := []struct {
		pos  mgl64.Vec3
		want ChunkCoord
	}{
		{mgl64.Vec3{0, 50, 0}, ChunkCoord{X: 0, Z: 0}},
		{mgl64.Vec3{11.9, 0, 12.1}, ChunkCoord{X: 0, Z: 1}},
		{mgl64.Vec3{-12.1, 0, -11.9}, ChunkCoord{X: -1, Z: 0}},
		{mgl64.Vec3{48, 0, -48}, ChunkCoord{X: 2, Z: -2}},
	}
	for _, tc := range tests {
		if got := ViewerChunk(tc.pos, 24); got != tc.want {
			t.Fatalf("expected %v for %v, got %v", tc.want, tc.pos, got)
		}
	}
}

func TestWindowIsSquareAndCentered(t *testing.T) {
	window := Window(ChunkCoord{X: 5, Z: -3}, 2)
	if len(window) != 25 {
		t.Fatalf("expected 25 coords, got %d", len(window))
	}
	seen := map[ChunkCoord]bool{}
	for _, c := range window {
		if c.X < 3 || c.X > 7 || c.Z < -5 || c.Z > -1 {
			t.Fatalf("coord %v outside window", c)
		}
		seen[c] = true
	}
	if len(seen) != 25 {
		t.Fatalf("expected distinct coords, got %d", len(seen))
	}
}

func TestLocateColumnNegative(t *testing.T) {
	coord, lx, lz := LocateColumn(-1, 25, 24)
	if coord != (ChunkCoord{X: -1, Z: 1}) || lx != 23 || lz != 1 {
		t.Fatalf("expected chunk (-1,1) local (23,1), got %v (%d,%d)", coord, lx, lz)
	}
}

func TestUpdateVisibleRegistersBeforeDispatch(t *testing.T) {
	m, _, d, sink := newTestManager(testOptions())

	if !m.UpdateVisible(mgl64.Vec3{0, 0, 0}) {
		t.Fatal("expected initial update to do work")
	}
	if len(d.data) != 9 {
		t.Fatalf("expected 9 data jobs, got %d", len(d.data))
	}
	if len(d.mesh) != 0 {
		t.Fatalf("expected no mesh jobs before data is ready, got %d", len(d.mesh))
	}
	for _, job := range d.data {
		ch, ok := m.Chunk(job.Key)
		if !ok {
			t.Fatalf("expected chunk %v to be registered", job.Key)
		}
		if ch.State != StateRequested || !ch.Visible || ch.Serial != job.Serial {
			t.Fatalf("unexpected record for %v: %+v", job.Key, ch)
		}
		wantOffset := [2]float64{float64(job.Key.Coord.X * 4), float64(job.Key.Coord.Z * 4)}
		if job.Noise.Offset != wantOffset {
			t.Fatalf("expected noise offset %v for %v, got %v", wantOffset, job.Key, job.Noise.Offset)
		}
	}
	if len(sink.visibility) != 9 {
		t.Fatalf("expected 9 visibility hand-offs, got %d", len(sink.visibility))
	}
}

func TestUpdateVisibleIdempotentWithinChunk(t *testing.T) {
	m, _, d, sink := newTestManager(testOptions())
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	before := m.Stats()
	dispatched := len(d.data)
	changes := len(sink.visibility)

	if m.UpdateVisible(mgl64.Vec3{1.5, 30, -1.9}) {
		t.Fatal("expected no work while the viewer chunk is unchanged")
	}
	if len(d.data) != dispatched || len(d.mesh) != 0 {
		t.Fatalf("expected no new dispatches, got %d data %d mesh", len(d.data), len(d.mesh))
	}
	if after := m.Stats(); after.Visible != before.Visible || after.Resident != before.Resident {
		t.Fatalf("expected unchanged visible set, got %+v vs %+v", after, before)
	}
	if len(sink.visibility) != changes {
		t.Fatalf("expected no visibility hand-offs, got %d", len(sink.visibility)-changes)
	}
}

func TestUpdateVisibleHidesChunksLeavingWindow(t *testing.T) {
	m, _, d, sink := newTestManager(testOptions())
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	d.data = nil

	// One chunk east: column x=-1 leaves, column x=2 enters.
	if !m.UpdateVisible(mgl64.Vec3{4, 0, 0}) {
		t.Fatal("expected crossing a boundary to do work")
	}
	if len(d.data) != 3 {
		t.Fatalf("expected 3 new data jobs, got %d", len(d.data))
	}
	for z := -1; z <= 1; z++ {
		ch, ok := m.Chunk(groundKey(-1, z))
		if !ok {
			t.Fatalf("expected hidden chunk to stay resident")
		}
		if ch.Visible || sink.visibility[groundKey(-1, z)] {
			t.Fatalf("expected chunk (-1,%d) to be hidden", z)
		}
		if !sink.visibility[groundKey(2, z)] {
			t.Fatalf("expected chunk (2,%d) to be shown", z)
		}
	}
	if stats := m.Stats(); stats.Resident != 12 || stats.Visible != 9 {
		t.Fatalf("expected 12 resident and 9 visible, got %+v", stats)
	}

	// Moving back shows resident chunks without dispatching.
	d.data = nil
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	if len(d.data) != 0 {
		t.Fatalf("expected resident chunks to be reused, got %d jobs", len(d.data))
	}
	if !sink.visibility[groundKey(-1, 0)] || sink.visibility[groundKey(2, 0)] {
		t.Fatal("expected visibility to follow the viewer back")
	}
}

func TestDrainDispatchesMeshAfterBatch(t *testing.T) {
	m, q, d, sink := newTestManager(testOptions())
	rec := &recordingRecorder{}
	m.AddRecorder(rec)
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	d.runAll(q)

	report := m.Drain()
	if report.Applied != 9 || report.MeshDispatched != 9 {
		t.Fatalf("expected 9 applied and 9 mesh jobs, got %+v", report)
	}
	if len(d.mesh) != 9 {
		t.Fatalf("expected 9 mesh jobs, got %d", len(d.mesh))
	}
	for _, job := range d.mesh {
		ch, _ := m.Chunk(job.Key)
		if ch.State != StateDataReady || ch.Grid.Width != 4 || ch.Volume.Height != 6 {
			t.Fatalf("expected data attached before mesh dispatch, got %+v", ch)
		}
	}
	if len(sink.meshes) != 0 {
		t.Fatalf("expected no mesh hand-offs yet, got %d", len(sink.meshes))
	}

	d.runAll(q)
	report = m.Drain()
	if report.Applied != 9 || report.MeshDispatched != 0 {
		t.Fatalf("expected 9 mesh results applied, got %+v", report)
	}
	if len(sink.meshes) != 9 {
		t.Fatalf("expected 9 mesh hand-offs, got %d", len(sink.meshes))
	}
	for _, h := range sink.meshes {
		ch, _ := m.Chunk(h.Key)
		if ch.State != StateMeshReady || ch.Mesh != h.Mesh {
			t.Fatalf("expected mesh attached for %v", h.Key)
		}
		if h.Origin.X() != float32(h.Key.Coord.X*4) || h.Origin.Z() != float32(h.Key.Coord.Z*4) {
			t.Fatalf("expected origin at chunk offset, got %v for %v", h.Origin, h.Key)
		}
		if err := h.Mesh.Validate(); err != nil {
			t.Fatalf("unexpected mesh error: %v", err)
		}
	}
	if len(rec.results) != 18 {
		t.Fatalf("expected 18 recorded completions, got %d", len(rec.results))
	}
	if stats := m.Stats(); stats.MeshReady != 9 {
		t.Fatalf("expected 9 mesh ready chunks, got %d", stats.MeshReady)
	}
}

func TestDrainRespectsBatchLimit(t *testing.T) {
	opts := testOptions()
	opts.DrainBatch = 4
	m, q, d, _ := newTestManager(opts)
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	d.runAll(q)
	if report := m.Drain(); report.Applied != 4 {
		t.Fatalf("expected 4 applied, got %+v", report)
	}
	if q.Len() != 5 {
		t.Fatalf("expected 5 results to remain, got %d", q.Len())
	}
}

func TestDrainDropsStaleResults(t *testing.T) {
	opts := testOptions()
	opts.MaxResident = 9
	m, q, d, _ := newTestManager(opts)
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	first := d.data
	d.data = nil

	// Move far away and evict the first window before its results land.
	m.UpdateVisible(mgl64.Vec3{400, 0, 0})
	if evicted := m.Evict(); evicted != 9 {
		t.Fatalf("expected 9 evictions, got %d", evicted)
	}
	for _, job := range first {
		q.Enqueue(generation.RunData(job))
	}
	report := m.Drain()
	if report.Stale != 9 || report.Applied != 0 {
		t.Fatalf("expected 9 stale results, got %+v", report)
	}

	// A re-registered chunk gets a new serial, so the old result stays stale.
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	q.Enqueue(generation.RunData(first[0]))
	if report := m.Drain(); report.Stale != 1 {
		t.Fatalf("expected result for the old serial to be dropped, got %+v", report)
	}
}

func TestDrainDropsSupersededMesh(t *testing.T) {
	opts := testOptions()
	m, q, d, sink := newTestManager(opts)
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	d.runAll(q)
	m.Drain()
	staleMesh := d.mesh[0]
	d.mesh = nil

	// Pretend a newer data generation arrived for the same chunk.
	ch, _ := m.Chunk(staleMesh.Key)
	newer := generation.RunData(generation.DataJob{
		Key: ch.Key, Serial: ch.Serial, Generation: 2, Width: 4, Spec: ch.Spec,
		Seed: 5, Noise: opts.Noise, Table: opts.Table,
	})
	q.Enqueue(generation.RunMesh(staleMesh))
	q.Enqueue(newer)
	report := m.Drain()
	// The mesh built from generation 1 lands first and is applied; the data
	// for generation 2 then schedules a fresh mesh.
	if report.Applied != 2 || report.MeshDispatched != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(sink.meshes) != 1 {
		t.Fatalf("expected one hand-off, got %d", len(sink.meshes))
	}

	// Replaying the generation 1 mesh now is stale.
	q.Enqueue(generation.RunMesh(staleMesh))
	if report := m.Drain(); report.Stale != 1 {
		t.Fatalf("expected superseded mesh to be dropped, got %+v", report)
	}
	if ch.DataGeneration != 2 || ch.MeshGeneration != 1 {
		t.Fatalf("unexpected generations data=%d mesh=%d", ch.DataGeneration, ch.MeshGeneration)
	}
}

func TestEvictNeverRemovesVisibleChunks(t *testing.T) {
	opts := testOptions()
	opts.MaxResident = 1
	m, _, _, sink := newTestManager(opts)
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	if evicted := m.Evict(); evicted != 0 {
		t.Fatalf("expected no evictions while all chunks are visible, got %d", evicted)
	}
	if stats := m.Stats(); stats.Resident != 9 {
		t.Fatalf("expected 9 resident, got %d", stats.Resident)
	}
	if len(sink.evicted) != 0 {
		t.Fatalf("expected no eviction hand-offs, got %d", len(sink.evicted))
	}
}

func TestEvictLeastRecentlyVisibleFirst(t *testing.T) {
	opts := testOptions()
	opts.MaxResident = 12
	m, _, _, sink := newTestManager(opts)

	// Walk east twice; column x=-1 is hidden first, then x=0.
	m.Tick(mgl64.Vec3{0, 0, 0}, 0)
	m.Tick(mgl64.Vec3{4, 0, 0}, 0)
	m.Tick(mgl64.Vec3{8, 0, 0}, 0)

	stats := m.Stats()
	if stats.Resident != 12 {
		t.Fatalf("expected resident set bounded to 12, got %d", stats.Resident)
	}
	if len(sink.evicted) != 3 {
		t.Fatalf("expected 3 evictions, got %d", len(sink.evicted))
	}
	for _, key := range sink.evicted {
		if key.Coord.X != -1 {
			t.Fatalf("expected oldest column x=-1 to be evicted, got %v", key)
		}
	}
	for z := -1; z <= 1; z++ {
		if _, ok := m.Chunk(groundKey(0, z)); !ok {
			t.Fatalf("expected more recently visible chunk (0,%d) to stay", z)
		}
	}
}

func TestTickStreamsWaterAndRefreshes(t *testing.T) {
	opts := testOptions()
	opts.WaterEnabled = true
	opts.ViewDistance = 0
	opts.WaterRefresh = time.Second
	m, q, d, sink := newTestManager(opts)
	now := time.Unix(100, 0)
	m.now = func() time.Time { return now }

	report := m.Tick(mgl64.Vec3{0, 0, 0}, 0)
	if !report.Streamed || len(d.data) != 2 {
		t.Fatalf("expected ground and water jobs, got %d (%+v)", len(d.data), report)
	}
	var waterJob generation.DataJob
	for _, job := range d.data {
		if job.Key.Variant == terrain.Water {
			waterJob = job
		}
	}
	if waterJob.Spec.SeedOffset != 1 || waterJob.Spec.VerticalExtent != opts.Water.VerticalExtent {
		t.Fatalf("unexpected water job spec %+v", waterJob.Spec)
	}
	if report.WaterRefreshed != 0 {
		t.Fatalf("expected no refresh before water is meshed, got %d", report.WaterRefreshed)
	}

	d.runAll(q)
	m.Tick(mgl64.Vec3{0, 0, 0}, 0.1)
	d.runAll(q)
	now = now.Add(2 * time.Second)
	report = m.Tick(mgl64.Vec3{0, 0, 0}, 2.5)
	if report.Drain.Applied != 2 {
		t.Fatalf("expected both meshes applied, got %+v", report.Drain)
	}
	if report.WaterRefreshed != 1 {
		t.Fatalf("expected one water refresh, got %d", report.WaterRefreshed)
	}
	if len(d.data) != 1 || d.data[0].Generation != 2 || d.data[0].Elapsed != 2.5 {
		t.Fatalf("expected generation 2 water job at 2.5s, got %+v", d.data)
	}

	// Limiter blocks a second refresh within the interval, and an in-flight
	// refresh is not duplicated.
	now = now.Add(100 * time.Millisecond)
	if report := m.Tick(mgl64.Vec3{0, 0, 0}, 2.6); report.WaterRefreshed != 0 {
		t.Fatalf("expected refresh to be rate limited, got %d", report.WaterRefreshed)
	}
	now = now.Add(2 * time.Second)
	if report := m.Tick(mgl64.Vec3{0, 0, 0}, 4.6); report.WaterRefreshed != 0 {
		t.Fatalf("expected pending refresh to block another, got %d", report.WaterRefreshed)
	}

	d.runAll(q)
	m.Tick(mgl64.Vec3{0, 0, 0}, 4.7)
	d.runAll(q)
	m.Tick(mgl64.Vec3{0, 0, 0}, 4.8)
	water, _ := m.Chunk(Key{Coord: ChunkCoord{}, Variant: terrain.Water})
	if water.MeshGeneration != 2 || water.State != StateMeshReady {
		t.Fatalf("expected regenerated water mesh, got generation %d state %v", water.MeshGeneration, water.State)
	}
	if water.Origin().Y() != float32(opts.Water.Elevation) {
		t.Fatalf("expected water origin at elevation %v, got %v", opts.Water.Elevation, water.Origin())
	}
	waterHandoffs := 0
	for _, h := range sink.meshes {
		if h.Key.Variant == terrain.Water {
			waterHandoffs++
		}
	}
	if waterHandoffs != 2 {
		t.Fatalf("expected 2 water hand-offs, got %d", waterHandoffs)
	}
}

func TestSurfaceHeightFromResidentData(t *testing.T) {
	m, q, d, _ := newTestManager(testOptions())
	if _, ok := m.SurfaceHeight(0, 0); ok {
		t.Fatal("expected no height before streaming")
	}
	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	d.runAll(q)
	m.Drain()
	h, ok := m.SurfaceHeight(-3, 5)
	if !ok {
		t.Fatal("expected height for resident column")
	}
	if h < 1 || h > 5 {
		t.Fatalf("expected height within [1,5], got %d", h)
	}
}

func TestManagerWithPool(t *testing.T) {
	q := generation.NewQueue()
	pool := generation.NewPool(q)
	m := NewManager(testOptions(), q, pool, log.New(io.Discard, "", 0))
	sink := newRecordingSink()
	m.SetSink(sink)

	m.UpdateVisible(mgl64.Vec3{0, 0, 0})
	pool.Wait()
	m.Drain()
	pool.Wait()
	m.Drain()
	if len(sink.meshes) != 9 {
		t.Fatalf("expected 9 meshes through the pool, got %d", len(sink.meshes))
	}
}
