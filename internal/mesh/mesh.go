package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// MeshData holds index-aligned vertex, uv and colour buffers plus the
// triangle list. Four vertices and six indices are stored per face.
type MeshData struct {
	Vertices  []mgl32.Vec3
	Triangles []uint32
	UVs       []mgl32.Vec2
	Colors    []mgl32.Vec4
}

// AddFace appends one quad. Vertices must be ordered so that (0,1,2) and
// (2,1,3) wind counter-clockwise.
func (m *MeshData) AddFace(verts [4]mgl32.Vec3, uvs [4]mgl32.Vec2, color mgl32.Vec4) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, verts[:]...)
	m.UVs = append(m.UVs, uvs[:]...)
	m.Colors = append(m.Colors, color, color, color, color)
	m.Triangles = append(m.Triangles,
		base, base+1, base+2,
		base+2, base+1, base+3,
	)
}

// Faces returns the number of quads emitted.
func (m *MeshData) Faces() int {
	return len(m.Vertices) / 4
}

// Empty reports whether no face was emitted.
func (m *MeshData) Empty() bool {
	return len(m.Vertices) == 0
}

// Validate checks the buffer alignment invariants.
func (m *MeshData) Validate() error {
	faces := m.Faces()
	if len(m.Vertices) != 4*faces {
		return fmt.Errorf("mesh: %d vertices is not a multiple of 4", len(m.Vertices))
	}
	if len(m.Triangles) != 6*faces {
		return fmt.Errorf("mesh: expected %d triangle indices, got %d", 6*faces, len(m.Triangles))
	}
	if len(m.UVs) != len(m.Vertices) {
		return fmt.Errorf("mesh: expected %d uvs, got %d", len(m.Vertices), len(m.UVs))
	}
	if len(m.Colors) != len(m.Vertices) {
		return fmt.Errorf("mesh: expected %d colors, got %d", len(m.Vertices), len(m.Colors))
	}
	for i, idx := range m.Triangles {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("mesh: triangle index %d at %d out of range", idx, i)
		}
	}
	return nil
}
