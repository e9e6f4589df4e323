package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelstream/internal/generation"
)

// ChunkCoord identifies a chunk in global chunk space.
type ChunkCoord = generation.ChunkCoord

// Key identifies a resident chunk record.
type Key = generation.Key

// ViewerChunk returns the chunk the viewer stands in, rounding each
// horizontal axis to the nearest chunk index. Y is ignored.
func ViewerChunk(pos mgl64.Vec3, width int) ChunkCoord {
	if width <= 0 {
		return ChunkCoord{}
	}
	w := float64(width)
	return ChunkCoord{
		X: int(math.Round(pos.X() / w)),
		Z: int(math.Round(pos.Z() / w)),
	}
}

// Window lists every chunk within distance of center on both axes, row by
// row.
func Window(center ChunkCoord, distance int) []ChunkCoord {
	if distance < 0 {
		return nil
	}
	side := 2*distance + 1
	coords := make([]ChunkCoord, 0, side*side)
	for dz := -distance; dz <= distance; dz++ {
		for dx := -distance; dx <= distance; dx++ {
			coords = append(coords, ChunkCoord{X: center.X + dx, Z: center.Z + dz})
		}
	}
	return coords
}

// LocateColumn maps a world block column to its chunk and the column's local
// offset inside that chunk.
func LocateColumn(blockX, blockZ, width int) (ChunkCoord, int, int) {
	chunk := ChunkCoord{
		X: floorDiv(blockX, width),
		Z: floorDiv(blockZ, width),
	}
	return chunk, blockX - chunk.X*width, blockZ - chunk.Z*width
}

func floorDiv(value, size int) int {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}
