package mesh

import "github.com/go-gl/mathgl/mgl32"

// Atlas addresses a square texture atlas of Blocks x Blocks cells by linear
// id, row-major from the top-left.
type Atlas struct {
	Blocks int
}

// Size returns the number of textures in the atlas.
func (a Atlas) Size() int {
	if a.Blocks <= 0 {
		return 1
	}
	return a.Blocks * a.Blocks
}

// UV returns the four corners of the texture cell in face vertex order.
// Out of range ids are clamped.
func (a Atlas) UV(textureID int) [4]mgl32.Vec2 {
	blocks := a.Blocks
	if blocks <= 0 {
		blocks = 1
	}
	if textureID < 0 {
		textureID = 0
	}
	if last := blocks*blocks - 1; textureID > last {
		textureID = last
	}

	cell := 1 / float32(blocks)
	row := textureID / blocks
	col := textureID - row*blocks

	u := float32(col) * cell
	v := float32(row) * cell
	v = 1 - v - cell

	u0, u1 := unit(u), unit(u+cell)
	v0, v1 := unit(v), unit(v+cell)
	return [4]mgl32.Vec2{
		{u0, v0},
		{u0, v1},
		{u1, v0},
		{u1, v1},
	}
}

// unit clamps float32 rounding drift back into [0,1].
func unit(f float32) float32 {
	return mgl32.Clamp(f, 0, 1)
}
