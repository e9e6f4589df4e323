package generation

import (
	"time"

	"voxelstream/internal/mesh"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

// DataJob is a snapshot of everything needed to synthesize a chunk's height
// grid and terrain volume. Workers must not retain references into shared
// state beyond what the job carries.
type DataJob struct {
	Key        Key
	Serial     uint64
	Generation uint64
	Width      int
	Spec       terrain.VariantSpec
	Seed       int64
	Noise      noise.Params
	Table      terrain.Table
	Elapsed    float64 // seconds since session start, water only
	WaterSpeed float64 // magnitude of the water speed vector
}

// MeshJob builds the mesh for a chunk whose data is ready.
type MeshJob struct {
	Key        Key
	Serial     uint64
	Generation uint64
	Grid       noise.HeightGrid
	Volume     terrain.Volume
	Table      terrain.Table
	Options    mesh.Options
}

// RunData generates the height grid and terrain volume for a job.
func RunData(job DataJob) Result {
	start := time.Now()
	seed := job.Seed + job.Spec.SeedOffset

	var grid noise.HeightGrid
	if job.Spec.Variant == terrain.Water {
		grid = noise.GenerateWater(job.Width, job.Width, seed, job.Noise, job.WaterSpeed, job.Elapsed)
	} else {
		grid = noise.Generate(job.Width, job.Width, seed, job.Noise)
	}
	vol := terrain.BuildVolume(job.Spec, job.Table, job.Width)

	return Result{
		Kind:       KindData,
		Key:        job.Key,
		Serial:     job.Serial,
		Generation: job.Generation,
		Grid:       grid,
		Volume:     vol,
		Duration:   time.Since(start),
	}
}

// RunMesh culls and assembles the chunk mesh for a job.
func RunMesh(job MeshJob) Result {
	start := time.Now()
	m := mesh.Build(job.Grid, job.Volume, job.Table, job.Options)
	return Result{
		Kind:       KindMesh,
		Key:        job.Key,
		Serial:     job.Serial,
		Generation: job.Generation,
		Grid:       job.Grid,
		Volume:     job.Volume,
		Mesh:       &m,
		Duration:   time.Since(start),
	}
}
