// Package decimate reduces mesh density by spatial-grid vertex
// clustering: every vertex falling into the same grid cell is replaced
// by the cell centroid, and faces are remapped onto the surviving
// vertices.
package decimate

import (
	"math"

	"github.com/hupe1980/meshgo/geometry"
)

// Quality selects the clustering grid size. Coarser grids mean fewer
// output vertices.
type Quality int

const (
	// QualityFull disables clustering; the mesh passes through unchanged.
	QualityFull Quality = iota
	// QualityHigh clusters on a 1.5cm grid.
	QualityHigh
	// QualityMedium clusters on a 2.5cm grid.
	QualityMedium
	// QualityLow clusters on a 5cm grid.
	QualityLow
)

// GridSize returns the cell edge length in meters, or 0 for QualityFull.
func (q Quality) GridSize() float32 {
	switch q {
	case QualityHigh:
		return 0.015
	case QualityMedium:
		return 0.025
	case QualityLow:
		return 0.05
	default:
		return 0
	}
}

func (q Quality) String() string {
	switch q {
	case QualityFull:
		return "full"
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	}
	return "unknown"
}

// normalEpsilon is the squared length below which a mean normal is
// considered degenerate and replaced by a zero normal instead of being
// normalized into NaN.
const normalEpsilon = 1e-12

// cellKey identifies a grid cell by its per-axis floor-divided
// coordinates.
type cellKey struct {
	X, Y, Z int32
}

func keyFor(v geometry.Vector3, gridSize float32) cellKey {
	return cellKey{
		X: int32(math.Floor(float64(v.X / gridSize))),
		Y: int32(math.Floor(float64(v.Y / gridSize))),
		Z: int32(math.Floor(float64(v.Z / gridSize))),
	}
}

type cell struct {
	sum       geometry.Vector3
	normalSum geometry.Vector3
	count     int
	index     uint32
}

// Decimate clusters the mesh's vertices on the quality's grid and
// returns the reduced mesh. QualityFull returns the input unchanged.
//
// Output vertex ordering follows map iteration order and is not stable
// across runs. Downstream consumers treat indices as opaque, so this is
// acceptable, but callers must not rely on any particular ordering.
//
// A face is dropped when two or more of its corners collapse into the
// same cell, or when a corner maps to a cell that was never populated
// (checked defensively; full coverage makes this unreachable).
func Decimate(m *geometry.Mesh, q Quality) *geometry.Mesh {
	gridSize := q.GridSize()
	if gridSize <= 0 {
		return m
	}

	hasNormals := m.HasNormals()
	cells := make(map[cellKey]*cell)

	// Pass 1: bucket vertices into cells.
	for i, v := range m.Vertices {
		k := keyFor(v, gridSize)
		c, ok := cells[k]
		if !ok {
			c = &cell{index: uint32(len(cells))}
			cells[k] = c
		}
		c.sum = c.sum.Add(v)
		if hasNormals {
			c.normalSum = c.normalSum.Add(m.Normals[i])
		}
		c.count++
	}

	// Pass 2: emit one centroid per cell.
	vertices := make([]geometry.Vector3, len(cells))
	var normals []geometry.Vector3
	if hasNormals {
		normals = make([]geometry.Vector3, len(cells))
	}
	for _, c := range cells {
		vertices[c.index] = c.sum.Scale(1 / float32(c.count))
		if hasNormals {
			normals[c.index] = normalize(c.normalSum)
		}
	}

	// Pass 3: remap faces, dropping degenerate ones.
	faces := make([]geometry.Face, 0, len(m.Faces))
faceLoop:
	for _, face := range m.Faces {
		remapped := make(geometry.Face, len(face))
		for j, idx := range face {
			c, ok := cells[keyFor(m.Vertices[idx], gridSize)]
			if !ok {
				continue faceLoop
			}
			remapped[j] = c.index
		}
		// Two corners in one cell leaves fewer than three distinct
		// indices: the face is degenerate after clustering.
		if hasDuplicate(remapped) {
			continue
		}
		faces = append(faces, remapped)
	}

	return &geometry.Mesh{Vertices: vertices, Normals: normals, Faces: faces}
}

// normalize scales v to unit length. Near-zero means yield a zero
// normal rather than a NaN one; count alignment with vertices is kept.
func normalize(v geometry.Vector3) geometry.Vector3 {
	lenSq := float64(v.X)*float64(v.X) + float64(v.Y)*float64(v.Y) + float64(v.Z)*float64(v.Z)
	if lenSq < normalEpsilon {
		return geometry.Vector3{}
	}
	inv := float32(1 / math.Sqrt(lenSq))
	return v.Scale(inv)
}

func hasDuplicate(face geometry.Face) bool {
	for i := 0; i < len(face); i++ {
		for j := i + 1; j < len(face); j++ {
			if face[i] == face[j] {
				return true
			}
		}
	}
	return false
}
