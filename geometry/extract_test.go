package geometry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource builds sensor-style geometry buffers for tests.
type fakeSource struct {
	vertices [][3]float32
	faces    [][3]uint32

	stride        int
	offset        int
	bytesPerIndex int

	truncateVertexBytes int
}

func (f *fakeSource) VertexCount() int  { return len(f.vertices) }
func (f *fakeSource) VertexStride() int { return f.strideOrDefault() }
func (f *fakeSource) VertexOffset() int { return f.offset }

func (f *fakeSource) strideOrDefault() int {
	if f.stride == 0 {
		return 12
	}
	return f.stride
}

func (f *fakeSource) widthOrDefault() int {
	if f.bytesPerIndex == 0 {
		return 4
	}
	return f.bytesPerIndex
}

func (f *fakeSource) VertexBytes() []byte {
	stride := f.strideOrDefault()
	buf := make([]byte, f.offset+stride*len(f.vertices))
	for i, v := range f.vertices {
		base := f.offset + i*stride
		binary.LittleEndian.PutUint32(buf[base:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[base+4:], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[base+8:], math.Float32bits(v[2]))
	}
	if f.truncateVertexBytes > 0 {
		buf = buf[:len(buf)-f.truncateVertexBytes]
	}
	return buf
}

func (f *fakeSource) FaceCount() int      { return len(f.faces) }
func (f *fakeSource) IndicesPerFace() int { return 3 }
func (f *fakeSource) BytesPerIndex() int  { return f.widthOrDefault() }

func (f *fakeSource) IndexBytes() []byte {
	width := f.widthOrDefault()
	buf := make([]byte, width*3*len(f.faces))
	for i, face := range f.faces {
		for j, idx := range face {
			pos := (i*3 + j) * width
			if width == 2 {
				binary.LittleEndian.PutUint16(buf[pos:], uint16(idx))
			} else {
				binary.LittleEndian.PutUint32(buf[pos:], idx)
			}
		}
	}
	return buf
}

func TestExtract_CopiesOwnedData(t *testing.T) {
	src := &fakeSource{
		vertices: [][3]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		faces:    [][3]uint32{{0, 1, 2}},
	}

	snap, ok := Extract(src, Identity())
	require.True(t, ok)
	require.Equal(t, 3, snap.VertexCount)
	require.Equal(t, 1, snap.FaceCount)
	require.Len(t, snap.VertexData, 36)
	require.Len(t, snap.IndexData, 12)

	mesh, err := snap.Decode()
	require.NoError(t, err)
	require.Equal(t, []Vector3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, mesh.Vertices)
	require.Equal(t, []Face{{0, 1, 2}}, mesh.Faces)
}

func TestExtract_RejectsEmptyAndShortBuffers(t *testing.T) {
	_, ok := Extract(&fakeSource{}, Identity())
	require.False(t, ok)

	short := &fakeSource{
		vertices:            [][3]float32{{1, 2, 3}, {4, 5, 6}},
		truncateVertexBytes: 4,
	}
	_, ok = Extract(short, Identity())
	require.False(t, ok)
}

// strideSource declares an arbitrary vertex layout without filling in
// position data, as a buggy sensor descriptor might.
type strideSource struct {
	count  int
	stride int
}

func (s *strideSource) VertexCount() int    { return s.count }
func (s *strideSource) VertexStride() int   { return s.stride }
func (s *strideSource) VertexOffset() int   { return 0 }
func (s *strideSource) VertexBytes() []byte { return make([]byte, s.count*s.stride) }
func (s *strideSource) FaceCount() int      { return 0 }
func (s *strideSource) IndicesPerFace() int { return 3 }
func (s *strideSource) BytesPerIndex() int  { return 4 }
func (s *strideSource) IndexBytes() []byte  { return nil }

func TestExtract_RejectsStrideBelowPositionSize(t *testing.T) {
	// A stride under 12 bytes cannot hold an xyz position; accepting it
	// would send Decode past the copied buffer.
	_, ok := Extract(&strideSource{count: 2, stride: 4}, Identity())
	require.False(t, ok)

	// Exactly position-sized stride is the minimum accepted, and the
	// snapshot stays decodable.
	snap, ok := Extract(&strideSource{count: 2, stride: 12}, Identity())
	require.True(t, ok)
	_, err := snap.Decode()
	require.NoError(t, err)
}

func TestExtract_InterleavedStrideAndOffset(t *testing.T) {
	// Positions embedded in a larger per-vertex record at a nonzero
	// base offset, as delivered by real sensor buffers.
	src := &fakeSource{
		vertices: [][3]float32{{1, 0, 0}, {0, 1, 0}},
		stride:   24,
		offset:   8,
	}

	snap, ok := Extract(src, Identity())
	require.True(t, ok)

	mesh, err := snap.Decode()
	require.NoError(t, err)
	require.Equal(t, []Vector3{{1, 0, 0}, {0, 1, 0}}, mesh.Vertices)
}

func TestSnapshotDecode_BakesTransform(t *testing.T) {
	src := &fakeSource{
		vertices: [][3]float32{{1, 2, 3}},
	}

	snap, ok := Extract(src, Translation(10, 20, 30))
	require.True(t, ok)

	mesh, err := snap.Decode()
	require.NoError(t, err)
	require.Equal(t, Vector3{11, 22, 33}, mesh.Vertices[0])
}

func TestSnapshotDecode_RejectsOutOfRangeIndex(t *testing.T) {
	src := &fakeSource{
		vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		faces:    [][3]uint32{{0, 1, 7}},
	}

	snap, ok := Extract(src, Identity())
	require.True(t, ok)

	_, err := snap.Decode()
	require.Error(t, err)
}

func TestSnapshotDecode_RejectsLayoutBeyondBuffer(t *testing.T) {
	// A hand-built snapshot whose declared layout overruns its buffer
	// must fail cleanly; Decode runs on the background writer, where a
	// panic would take the process down.
	snap := &Snapshot{
		VertexData:   make([]byte, 8),
		VertexCount:  2,
		VertexStride: 4,
	}
	_, err := snap.Decode()
	require.Error(t, err)
}

func TestSnapshotDecode_SixteenBitIndices(t *testing.T) {
	src := &fakeSource{
		vertices:      [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		faces:         [][3]uint32{{2, 1, 0}},
		bytesPerIndex: 2,
	}

	snap, ok := Extract(src, Identity())
	require.True(t, ok)

	mesh, err := snap.Decode()
	require.NoError(t, err)
	require.Equal(t, []Face{{2, 1, 0}}, mesh.Faces)
}
