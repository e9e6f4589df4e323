package terrain

// Volume is a Width x Height x Depth grid of terrain ids.
type Volume struct {
	Width  int
	Height int
	Depth  int
	IDs    []ID
}

func (v Volume) index(x, y, z int) int {
	return (y*v.Depth+z)*v.Width + x
}

func (v Volume) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

// At returns the id at (x,y,z), or 0 outside the volume.
func (v Volume) At(x, y, z int) ID {
	if !v.InBounds(x, y, z) {
		return 0
	}
	return v.IDs[v.index(x, y, z)]
}

// BuildVolume classifies every cell of a width x extent x width volume. Each
// vertical index is classified on its own, so a layer holds a single id.
func BuildVolume(spec VariantSpec, table Table, width int) Volume {
	height := spec.VerticalExtent
	if width <= 0 || height <= 0 {
		return Volume{Width: max(width, 0), Height: max(height, 0), Depth: max(width, 0)}
	}
	vol := Volume{
		Width:  width,
		Height: height,
		Depth:  width,
		IDs:    make([]ID, width*height*width),
	}
	layer := width * width
	for y := 0; y < height; y++ {
		id := Classify(spec, table, y)
		cells := vol.IDs[y*layer : (y+1)*layer]
		for i := range cells {
			cells[i] = id
		}
	}
	return vol
}
