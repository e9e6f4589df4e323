package terrain

import (
	"fmt"

	"voxelstream/internal/config"
)

// Variant is the closed set of chunk kinds.
type Variant uint8

const (
	Ground Variant = iota
	Water
)

func (v Variant) String() string {
	switch v {
	case Ground:
		return "ground"
	case Water:
		return "water"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// VariantSpec carries the constants a chunk variant is generated with. It is
// chosen once when the chunk is created.
type VariantSpec struct {
	Variant        Variant
	VerticalExtent int
	FixedID        ID      // water only
	SeedOffset     int64   // added to the process seed
	Elevation      float64 // world Y of the chunk origin
}

// GroundSpec returns the ground variant: seed+0, classified by table scan.
func GroundSpec(cfg config.ChunkConfig) VariantSpec {
	return VariantSpec{
		Variant:        Ground,
		VerticalExtent: cfg.Height,
	}
}

// WaterSpec returns the water variant: seed+1, one fixed terrain id.
func WaterSpec(cfg config.WaterConfig) VariantSpec {
	return VariantSpec{
		Variant:        Water,
		VerticalExtent: cfg.Height,
		FixedID:        0,
		SeedOffset:     1,
		Elevation:      cfg.Elevation,
	}
}

// Classify returns the terrain id of vertical index y for the variant.
func Classify(spec VariantSpec, table Table, y int) ID {
	if spec.Variant == Water {
		return spec.FixedID
	}
	return table.Classify(Fraction(y, spec.VerticalExtent))
}

// Fraction normalizes a vertical index against the extent.
func Fraction(y, extent int) float64 {
	if extent <= 1 {
		return 0
	}
	return float64(y) / float64(extent-1)
}
