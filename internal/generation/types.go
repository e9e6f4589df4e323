package generation

import (
	"fmt"
	"time"

	"voxelstream/internal/mesh"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

// ChunkCoord addresses a chunk on the horizontal chunk grid.
type ChunkCoord struct {
	X int
	Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Key identifies a chunk record. Ground and water chunks at the same
// coordinate are separate records.
type Key struct {
	Coord   ChunkCoord
	Variant terrain.Variant
}

func (k Key) String() string {
	return fmt.Sprintf("%s%v", k.Variant, k.Coord)
}

// Kind tells which phase produced a Result.
type Kind uint8

const (
	KindData Kind = iota
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// Result is the immutable output of one job. Serial identifies the record
// that requested it and Generation orders regenerations of that record.
type Result struct {
	Kind       Kind
	Key        Key
	Serial     uint64
	Generation uint64
	Grid       noise.HeightGrid
	Volume     terrain.Volume
	Mesh       *mesh.MeshData
	Duration   time.Duration
}
