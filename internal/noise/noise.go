package noise

import (
	"math"
	"math/rand"
)

// MinScale is the smallest usable sampling scale. Smaller values are clamped.
const MinScale = 1e-4

// Params controls fractal noise synthesis.
type Params struct {
	Scale         float64
	Octaves       int
	Persistence   float64
	Lacunarity    float64
	BaseFrequency float64
	Offset        [2]float64 // world-space scroll, normally chunk coord * width
	Curve         Curve
	Basis         string
}

// HeightGrid is a row-major Width x Depth grid of normalized heights in
// [0,1]. It is never mutated after Generate returns it.
type HeightGrid struct {
	Width  int
	Depth  int
	Values []float64
}

func (g HeightGrid) At(x, z int) float64 {
	return g.Values[z*g.Width+x]
}

// InBounds reports whether (x,z) addresses a cell of the grid.
func (g HeightGrid) InBounds(x, z int) bool {
	return x >= 0 && z >= 0 && x < g.Width && z < g.Depth
}

// Generate synthesizes a width x depth fractal height grid. The same inputs
// always produce the same grid.
func Generate(width, depth int, seed int64, p Params) HeightGrid {
	grid := HeightGrid{Width: width, Depth: depth, Values: make([]float64, width*depth)}
	if width <= 0 || depth <= 0 {
		grid.Values = nil
		return grid
	}

	octaves := p.Octaves
	if octaves < 1 {
		octaves = 1
	}
	scale := clampScale(p.Scale)
	baseFrequency := p.BaseFrequency
	if baseFrequency <= 0 {
		baseFrequency = 0.5
	}

	rng := rand.New(rand.NewSource(seed))
	offsets := make([][2]float64, octaves)
	for i := range offsets {
		offsets[i][0] = float64(rng.Intn(200000)-100000) + p.Offset[0]
		offsets[i][1] = float64(rng.Intn(200000)-100000) + p.Offset[1]
	}

	basis := basisOrDefault(p.Basis, seed)
	halfWidth := float64(width) / 2
	halfDepth := float64(depth) / 2

	minValue := math.Inf(1)
	maxValue := math.Inf(-1)
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			amplitude := 1.0
			frequency := baseFrequency
			height := 0.0
			for o := 0; o < octaves; o++ {
				sx := (float64(x)-halfWidth)/scale*frequency + offsets[o][0]
				sz := (float64(z)-halfDepth)/scale*frequency + offsets[o][1]
				height += basis.Sample(sx, sz) * amplitude
				amplitude *= p.Persistence
				frequency *= p.Lacunarity
			}
			minValue = math.Min(minValue, height)
			maxValue = math.Max(maxValue, height)
			grid.Values[z*width+x] = height
		}
	}

	normalize(grid.Values, minValue, maxValue, p.Curve)
	return grid
}

// GenerateWater produces the animated water surface grid: one noise layer
// passed through cos(n + speed*elapsed) and normalized. elapsed is in seconds.
func GenerateWater(width, depth int, seed int64, p Params, speed, elapsed float64) HeightGrid {
	grid := HeightGrid{Width: width, Depth: depth, Values: make([]float64, width*depth)}
	if width <= 0 || depth <= 0 {
		grid.Values = nil
		return grid
	}

	scale := clampScale(p.Scale)
	basis := basisOrDefault(p.Basis, seed)
	halfWidth := float64(width) / 2
	halfDepth := float64(depth) / 2
	phase := speed * elapsed

	minValue := math.Inf(1)
	maxValue := math.Inf(-1)
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			sx := (float64(x)-halfWidth)/scale + p.Offset[0]
			sz := (float64(z)-halfDepth)/scale + p.Offset[1]
			v := math.Cos(basis.Sample(sx, sz) + phase)
			minValue = math.Min(minValue, v)
			maxValue = math.Max(maxValue, v)
			grid.Values[z*width+x] = v
		}
	}

	normalize(grid.Values, minValue, maxValue, nil)
	return grid
}

// Magnitude returns the length of a 2D vector.
func Magnitude(v [2]float64) float64 {
	return math.Hypot(v[0], v[1])
}

func clampScale(scale float64) float64 {
	if scale < MinScale {
		return MinScale
	}
	return scale
}

func basisOrDefault(name string, seed int64) Basis {
	b, err := NewBasis(name, seed)
	if err != nil {
		b, _ = NewBasis(BasisPerlin, seed)
	}
	return b
}

// normalize inverse-lerps values into [0,1] and applies the curve. A flat grid
// maps to zero.
func normalize(values []float64, minValue, maxValue float64, curve Curve) {
	span := maxValue - minValue
	for i, v := range values {
		t := 0.0
		if span > 0 {
			t = clamp01((v - minValue) / span)
		}
		values[i] = clamp01(curve.Evaluate(t))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
