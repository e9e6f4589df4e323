package mesh

import "github.com/go-gl/mathgl/mgl32"

// Face identifies one side of a voxel. The order matches the face texture
// order of terrain types.
type Face int

const (
	FaceBack Face = iota
	FaceFront
	FaceTop
	FaceBottom
	FaceLeft
	FaceRight
)

// Faces lists every face in emission order.
var Faces = [...]Face{FaceBack, FaceFront, FaceTop, FaceBottom, FaceLeft, FaceRight}

func (f Face) String() string {
	switch f {
	case FaceBack:
		return "back"
	case FaceFront:
		return "front"
	case FaceTop:
		return "top"
	case FaceBottom:
		return "bottom"
	case FaceLeft:
		return "left"
	case FaceRight:
		return "right"
	default:
		return "unknown"
	}
}

// IsSide reports whether the face is one of the four horizontal sides.
func (f Face) IsSide() bool {
	return f != FaceTop && f != FaceBottom
}

// Normal returns the outward unit vector of the face.
func (f Face) Normal() [3]int {
	return faceNormals[f]
}

// corners of the unit cube.
var cubeCorners = [8]mgl32.Vec3{
	{0, 0, 0},
	{1, 0, 0},
	{1, 1, 0},
	{0, 1, 0},
	{0, 0, 1},
	{1, 0, 1},
	{1, 1, 1},
	{0, 1, 1},
}

// faceCorners selects four cube corners per face. Corners 0,1,2 and 2,1,3
// form the face's two counter-clockwise triangles.
var faceCorners = [6][4]int{
	{0, 3, 1, 2}, // back
	{5, 6, 4, 7}, // front
	{3, 7, 2, 6}, // top
	{1, 5, 0, 4}, // bottom
	{4, 7, 0, 3}, // left
	{1, 2, 5, 6}, // right
}

var faceNormals = [6][3]int{
	{0, 0, -1},
	{0, 0, 1},
	{0, 1, 0},
	{0, -1, 0},
	{-1, 0, 0},
	{1, 0, 0},
}
