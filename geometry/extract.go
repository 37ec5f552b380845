package geometry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Source describes a fragment's live geometry buffers as exposed by the
// sensor subsystem. The byte slices returned by VertexBytes and
// IndexBytes are only valid for the duration of the delivering callback;
// Extract copies out of them before returning.
type Source interface {
	// VertexCount is the number of vertices in the buffer.
	VertexCount() int
	// VertexStride is the byte distance between consecutive vertices.
	VertexStride() int
	// VertexOffset is the byte offset of the first vertex.
	VertexOffset() int
	// VertexBytes exposes the raw vertex buffer.
	VertexBytes() []byte

	// FaceCount is the number of faces in the index buffer.
	FaceCount() int
	// IndicesPerFace is the primitive size (3 for triangles).
	IndicesPerFace() int
	// BytesPerIndex is the index width, 2 or 4.
	BytesPerIndex() int
	// IndexBytes exposes the raw index buffer.
	IndexBytes() []byte
}

// Snapshot is an owned copy of a fragment's geometry, safe to hand to a
// background task after the sensor buffers have been invalidated. The
// transform is applied when the snapshot is decoded, baking vertices
// into world space.
type Snapshot struct {
	VertexData   []byte
	VertexCount  int
	VertexStride int
	VertexOffset int

	IndexData      []byte
	FaceCount      int
	IndicesPerFace int
	BytesPerIndex  int

	Transform Transform
}

// Extract copies the byte ranges backing a fragment's geometry out of
// sensor-owned memory. It must run synchronously on the delivering
// callback: the source buffers may be invalidated as soon as the
// callback returns.
//
// The copies are sized exactly to offset + stride*count and
// bytesPerIndex*indicesPerFace*faceCount. Extract returns false when
// the fragment has no vertices, the declared stride cannot hold a
// 12-byte position, or the source buffers are shorter than their
// declared layout; it never copies partially.
func Extract(src Source, tf Transform) (*Snapshot, bool) {
	vertexCount := src.VertexCount()
	if vertexCount <= 0 {
		return nil, false
	}

	// A vertex position is 12 bytes (3 float32); a declared stride below
	// that would make Decode read past the copied range.
	stride := src.VertexStride()
	offset := src.VertexOffset()
	vertexLen := offset + stride*vertexCount
	raw := src.VertexBytes()
	if stride < 12 || offset < 0 || vertexLen > len(raw) {
		return nil, false
	}

	faceCount := src.FaceCount()
	perFace := src.IndicesPerFace()
	width := src.BytesPerIndex()
	indexLen := width * perFace * faceCount
	rawIdx := src.IndexBytes()
	if faceCount > 0 {
		if (width != 2 && width != 4) || perFace < 3 || indexLen > len(rawIdx) {
			return nil, false
		}
	}

	vertexData := make([]byte, vertexLen)
	copy(vertexData, raw[:vertexLen])

	indexData := make([]byte, indexLen)
	copy(indexData, rawIdx[:indexLen])

	return &Snapshot{
		VertexData:     vertexData,
		VertexCount:    vertexCount,
		VertexStride:   stride,
		VertexOffset:   offset,
		IndexData:      indexData,
		FaceCount:      faceCount,
		IndicesPerFace: perFace,
		BytesPerIndex:  width,
		Transform:      tf,
	}, true
}

// Decode parses the snapshot into an indexed mesh with the transform
// baked into every vertex. Face indices are validated against the
// vertex count; an out-of-range index rejects the whole snapshot.
func (s *Snapshot) Decode() (*Mesh, error) {
	if s.VertexCount <= 0 {
		return nil, fmt.Errorf("snapshot has no vertices")
	}
	if s.VertexStride < 12 || s.VertexOffset < 0 ||
		s.VertexOffset+(s.VertexCount-1)*s.VertexStride+12 > len(s.VertexData) {
		return nil, fmt.Errorf("vertex layout exceeds buffer")
	}
	if s.FaceCount > 0 {
		if s.BytesPerIndex != 2 && s.BytesPerIndex != 4 {
			return nil, fmt.Errorf("unsupported index width %d", s.BytesPerIndex)
		}
		if s.FaceCount*s.IndicesPerFace*s.BytesPerIndex > len(s.IndexData) {
			return nil, fmt.Errorf("index layout exceeds buffer")
		}
	}

	vertices := make([]Vector3, s.VertexCount)
	for i := 0; i < s.VertexCount; i++ {
		base := s.VertexOffset + i*s.VertexStride
		v := Vector3{
			X: f32(s.VertexData[base:]),
			Y: f32(s.VertexData[base+4:]),
			Z: f32(s.VertexData[base+8:]),
		}
		vertices[i] = s.Transform.Apply(v)
	}

	faces := make([]Face, 0, s.FaceCount)
	for f := 0; f < s.FaceCount; f++ {
		face := make(Face, s.IndicesPerFace)
		for j := 0; j < s.IndicesPerFace; j++ {
			pos := (f*s.IndicesPerFace + j) * s.BytesPerIndex
			var idx uint32
			if s.BytesPerIndex == 2 {
				idx = uint32(binary.LittleEndian.Uint16(s.IndexData[pos:]))
			} else {
				idx = binary.LittleEndian.Uint32(s.IndexData[pos:])
			}
			if idx >= uint32(s.VertexCount) {
				return nil, fmt.Errorf("face %d references vertex %d of %d", f, idx, s.VertexCount)
			}
			face[j] = idx
		}
		faces = append(faces, face)
	}

	return &Mesh{Vertices: vertices, Faces: faces}, nil
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
