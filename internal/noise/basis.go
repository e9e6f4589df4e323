package noise

import (
	"fmt"
	"math"

	perlin "github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Basis is a seeded coherent 2D noise function sampled once per octave.
type Basis interface {
	Sample(x, y float64) float64
}

const (
	BasisPerlin      = "perlin"
	BasisOpenSimplex = "opensimplex"
	BasisValue       = "value"
)

// NewBasis returns the named basis seeded with seed. An empty name selects
// perlin.
func NewBasis(name string, seed int64) (Basis, error) {
	switch name {
	case "", BasisPerlin:
		// One octave per Sample call; octave stacking happens in Generate.
		return perlinBasis{p: perlin.NewPerlin(2, 2, 1, seed)}, nil
	case BasisOpenSimplex:
		return simplexBasis{n: opensimplex.NewNormalized(seed)}, nil
	case BasisValue:
		return valueBasis{seed: seed}, nil
	default:
		return nil, fmt.Errorf("unknown noise basis %q", name)
	}
}

// perlinPeriod is the lattice period of go-perlin's permutation table.
const perlinPeriod = 256

type perlinBasis struct {
	p *perlin.Perlin
}

// Sample remaps go-perlin's roughly [-1,1] output into [0,1]. go-perlin
// truncates lattice coordinates toward zero, which breaks below -4096, so
// samples are wrapped into one positive period first.
func (b perlinBasis) Sample(x, y float64) float64 {
	return b.p.Noise2D(wrapPeriod(x), wrapPeriod(y))*0.5 + 0.5
}

func wrapPeriod(v float64) float64 {
	v = math.Mod(v, perlinPeriod)
	if v < 0 {
		v += perlinPeriod
	}
	return v
}

type simplexBasis struct {
	n opensimplex.Noise
}

func (b simplexBasis) Sample(x, y float64) float64 {
	return b.n.Eval2(x, y)
}

// valueBasis is lattice value noise with smoothstep interpolation.
type valueBasis struct {
	seed int64
}

func (b valueBasis) Sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	n0 := random2D(x0, y0, b.seed)
	n1 := random2D(x1, y0, b.seed)
	ix0 := lerp(n0, n1, sx)

	n2 := random2D(x0, y1, b.seed)
	n3 := random2D(x1, y1, b.seed)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// random2D hashes a lattice point into [0,1).
func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF) / 0x10000
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}
