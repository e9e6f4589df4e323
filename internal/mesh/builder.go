package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream/internal/config"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

// Shading controls the per-face vertex light level.
type Shading struct {
	Base          float64
	TopMultiplier float64
}

func ShadingFromConfig(cfg config.ShadingConfig) Shading {
	return Shading{Base: cfg.Base, TopMultiplier: cfg.TopMultiplier}
}

// Color returns the vertex colour for a face. Light is carried in alpha.
func (s Shading) Color(face Face) mgl32.Vec4 {
	light := s.Base
	if face == FaceTop {
		light *= s.TopMultiplier
	}
	return mgl32.Vec4{0, 0, 0, float32(light)}
}

// Options carries the per-chunk constants of a build.
type Options struct {
	Spec    terrain.VariantSpec
	Atlas   Atlas
	Shading Shading
}

// ColumnHeight converts a normalized height into a voxel stack height in
// [1, extent-1]. Extents below 2 yield 1.
func ColumnHeight(value float64, extent int) int {
	h := int(math.Floor(value * float64(extent)))
	if h > extent-1 {
		h = extent - 1
	}
	if h < 1 {
		h = 1
	}
	return h
}

// FaceVisible decides whether face of the voxel at height y in column (x,z)
// is emitted. Faces on the chunk boundary are always visible; neighbouring
// chunks are not consulted.
func FaceVisible(grid noise.HeightGrid, spec terrain.VariantSpec, x, y, z int, face Face) bool {
	extent := spec.VerticalExtent
	switch face {
	case FaceBottom:
		// The water floor is the lowest two layers.
		return spec.Variant == terrain.Water && y <= 1
	case FaceTop:
		return y >= ColumnHeight(grid.At(x, z), extent)-1
	}

	if y == 0 {
		return false
	}
	n := face.Normal()
	nx, nz := x+n[0], z+n[2]
	if !grid.InBounds(nx, nz) {
		return true
	}
	return ColumnHeight(grid.At(nx, nz), extent) <= y
}

// Build culls hidden faces of every voxel column and assembles the mesh.
// Voxel positions are chunk-local.
func Build(grid noise.HeightGrid, vol terrain.Volume, table terrain.Table, opts Options) MeshData {
	var m MeshData
	extent := opts.Spec.VerticalExtent

	for z := 0; z < grid.Depth; z++ {
		for x := 0; x < grid.Width; x++ {
			height := ColumnHeight(grid.At(x, z), extent)
			for y := 0; y < height; y++ {
				id := vol.At(x, y, z)
				pos := mgl32.Vec3{float32(x), float32(y), float32(z)}
				for _, face := range Faces {
					if !FaceVisible(grid, opts.Spec, x, y, z, face) {
						continue
					}
					m.AddFace(
						faceVertices(pos, face),
						opts.Atlas.UV(table.FaceTexture(id, int(face))),
						opts.Shading.Color(face),
					)
				}
			}
		}
	}
	return m
}

func faceVertices(pos mgl32.Vec3, face Face) [4]mgl32.Vec3 {
	var verts [4]mgl32.Vec3
	for i, corner := range faceCorners[face] {
		verts[i] = pos.Add(cubeCorners[corner])
	}
	return verts
}
