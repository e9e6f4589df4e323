package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelstream/internal/config"
	"voxelstream/internal/generation"
	"voxelstream/internal/world"
)

type timings struct {
	durations []time.Duration
	faces     int
}

func (t *timings) add(d time.Duration, faces int) {
	t.durations = append(t.durations, d)
	t.faces += faces
}

func (t *timings) percentile(p float64) time.Duration {
	if len(t.durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), t.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func (t *timings) mean() time.Duration {
	if len(t.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range t.durations {
		total += d
	}
	return total / time.Duration(len(t.durations))
}

// profileRecorder collects completion timings. The manager calls it from the
// tick goroutine only.
type profileRecorder struct {
	data map[string]*timings
	mesh map[string]*timings
}

func newProfileRecorder() *profileRecorder {
	return &profileRecorder{data: make(map[string]*timings), mesh: make(map[string]*timings)}
}

func (r *profileRecorder) RecordCompletion(res generation.Result) {
	bucket := r.data
	faces := 0
	if res.Kind == generation.KindMesh {
		bucket = r.mesh
		if res.Mesh != nil {
			faces = res.Mesh.Faces()
		}
	}
	variant := res.Key.Variant.String()
	t, ok := bucket[variant]
	if !ok {
		t = &timings{}
		bucket[variant] = t
	}
	t.add(res.Duration, faces)
}

func main() {
	var (
		cfgPath = flag.String("config", "", "path to a streaming configuration file (defaults when empty)")
		radius  = flag.Int("radius", 4, "chunks on each side of the origin; (2r+1)^2 chunks per variant are generated")
		basis   = flag.String("basis", "", "override noise.basis: perlin, opensimplex or value")
		water   = flag.Bool("water", true, "include water chunks when enabled in the configuration")
		timeout = flag.Duration("timeout", time.Minute, "give up if the window is not fully meshed in time")
	)
	flag.Parse()

	if *radius < 0 {
		fmt.Fprintln(os.Stderr, "radius cannot be negative")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *basis != "" {
		cfg.Noise.Basis = *basis
	}
	cfg.Stream.ViewDistance = max(*radius, 1)
	cfg.Stream.MaxResident = 0
	if !*water {
		cfg.Water.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	opts := world.OptionsFromConfig(cfg)
	opts.ViewDistance = *radius
	queue := generation.NewQueue()
	pool := generation.NewPool(queue)
	manager := world.NewManager(opts, queue, pool, log.New(io.Discard, "", 0))
	recorder := newProfileRecorder()
	manager.AddRecorder(recorder)

	variants := 1
	if cfg.Water.Enabled {
		variants = 2
	}
	side := 2**radius + 1
	expected := side * side * variants

	start := time.Now()
	deadline := start.Add(*timeout)
	ticks := 0
	for {
		manager.Tick(mgl64.Vec3{}, time.Since(start).Seconds())
		ticks++
		stats := manager.Stats()
		if stats.Resident == expected && stats.MeshReady == expected {
			break
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "timed out: %d/%d chunks meshed\n", stats.MeshReady, expected)
			os.Exit(1)
		}
		pool.Wait()
	}
	wall := time.Since(start)

	fmt.Println("== Terrain Generation Profile ==")
	fmt.Printf("Window: %dx%d chunks, %d variant(s)\n", side, side, variants)
	fmt.Printf("Chunk dimensions: %dx%dx%d\n", cfg.Chunk.Width, cfg.Chunk.Height, cfg.Chunk.Width)
	fmt.Printf("Noise basis: %s, octaves %d, scale %.2f\n", cfg.Noise.Basis, cfg.Noise.Octaves, cfg.Noise.Scale)
	fmt.Printf("Ticks until fully meshed: %d\n", ticks)
	fmt.Printf("Wall clock duration: %s\n", wall)
	report("data", recorder.data)
	report("mesh", recorder.mesh)
}

func report(kind string, buckets map[string]*timings) {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := buckets[name]
		fmt.Printf("%s %s: %d jobs, mean %s, p50 %s, p95 %s",
			name, kind, len(t.durations), t.mean(), t.percentile(0.5), t.percentile(0.95))
		if kind == "mesh" {
			fmt.Printf(", %d faces (%.1f per chunk)", t.faces, float64(t.faces)/float64(len(t.durations)))
		}
		fmt.Println()
	}
}
