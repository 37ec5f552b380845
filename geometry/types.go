package geometry

// Vector3 is a point or direction in 3D space.
type Vector3 struct {
	X, Y, Z float32
}

// Add returns the component-wise sum v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float32) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

// Face is an ordered tuple of vertex indices. Most fragments carry
// triangles, but larger primitives are allowed.
type Face []uint32

// Mesh is an indexed mesh: vertices, optional per-vertex normals and
// faces whose indices are 0-based into Vertices. Normals, when present,
// are index-aligned with Vertices.
type Mesh struct {
	Vertices []Vector3
	Normals  []Vector3
	Faces    []Face
}

// HasNormals reports whether the mesh carries a count-consistent normal
// per vertex.
func (m *Mesh) HasNormals() bool {
	return len(m.Normals) > 0 && len(m.Normals) == len(m.Vertices)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// FaceCount returns the number of faces.
func (m *Mesh) FaceCount() int { return len(m.Faces) }
