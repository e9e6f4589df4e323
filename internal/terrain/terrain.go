package terrain

import (
	"voxelstream/internal/config"
)

// ID indexes a TerrainType within its Table.
type ID uint8

// FaceCount is the number of faces of a voxel.
const FaceCount = 6

// TerrainType is one classification band. Faces holds atlas texture ids in
// the order back, front, top, bottom, left, right.
type TerrainType struct {
	Name         string
	Threshold    float64
	Color        string
	Transparency float64
	Faces        [FaceCount]int
}

// Table is an ordered set of bands, lowest first. Order is priority: the
// first band whose threshold admits a fraction wins.
type Table []TerrainType

// NewTable converts configured terrain types into a Table.
func NewTable(types []config.TerrainType) Table {
	table := make(Table, len(types))
	for i, t := range types {
		table[i] = FromConfig(t)
	}
	return table
}

func FromConfig(t config.TerrainType) TerrainType {
	return TerrainType{
		Name:         t.Name,
		Threshold:    t.Threshold,
		Color:        t.Color,
		Transparency: t.Transparency,
		Faces:        t.Faces,
	}
}

// Classify returns the id of the first band whose threshold is at or above
// fraction. A fraction no band admits maps to id 0.
func (t Table) Classify(fraction float64) ID {
	for i, tt := range t {
		if fraction <= tt.Threshold {
			return ID(i)
		}
	}
	return 0
}

// Type returns the band for id, falling back to the first band for ids
// outside the table.
func (t Table) Type(id ID) TerrainType {
	if len(t) == 0 {
		return TerrainType{}
	}
	if int(id) >= len(t) {
		return t[0]
	}
	return t[id]
}

// FaceTexture returns the atlas texture id for one face of a band.
func (t Table) FaceTexture(id ID, face int) int {
	if face < 0 || face >= FaceCount {
		return 0
	}
	return t.Type(id).Faces[face]
}
