package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream/internal/mesh"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

// State is the generation phase of a chunk record.
type State uint8

const (
	StateRequested State = iota
	StateDataReady
	StateMeshReady
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateDataReady:
		return "data-ready"
	case StateMeshReady:
		return "mesh-ready"
	default:
		return "unknown"
	}
}

// Chunk is the record of one resident chunk. It is only mutated on the tick;
// Grid, Volume and Mesh are replaced wholesale, never edited in place.
type Chunk struct {
	Key     Key
	Serial  uint64
	Spec    terrain.VariantSpec
	Width   int
	State   State
	Visible bool

	Grid   noise.HeightGrid
	Volume terrain.Volume
	Mesh   *mesh.MeshData

	// Requested is the newest data generation dispatched. DataGeneration and
	// MeshGeneration are the generations currently attached.
	Requested      uint64
	DataGeneration uint64
	MeshGeneration uint64

	LastVisibleTick uint64
}

func newChunk(key Key, serial uint64, spec terrain.VariantSpec, width int) *Chunk {
	return &Chunk{
		Key:    key,
		Serial: serial,
		Spec:   spec,
		Width:  width,
		State:  StateRequested,
	}
}

// Origin is the world-space offset of the chunk's local (0,0,0) corner.
func (c *Chunk) Origin() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(c.Key.Coord.X * c.Width),
		float32(c.Spec.Elevation),
		float32(c.Key.Coord.Z * c.Width),
	}
}

// HasData reports whether a height grid is attached.
func (c *Chunk) HasData() bool {
	return c.DataGeneration > 0
}

// RefreshPending reports whether a newer data generation is in flight.
func (c *Chunk) RefreshPending() bool {
	return c.Requested > c.MeshGeneration
}

// ColumnHeight returns the voxel stack height of a local column.
func (c *Chunk) ColumnHeight(localX, localZ int) (int, bool) {
	if !c.HasData() || !c.Grid.InBounds(localX, localZ) {
		return 0, false
	}
	return mesh.ColumnHeight(c.Grid.At(localX, localZ), c.Spec.VerticalExtent), true
}
