package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/blobstore"
	"github.com/hupe1980/meshgo/decimate"
	"github.com/hupe1980/meshgo/geometry"
)

// buildSnap encodes a decodable snapshot: a fan of vertices along X and
// triangle faces over them.
func buildSnap(t *testing.T, vertices, faces int) *geometry.Snapshot {
	t.Helper()
	require.GreaterOrEqual(t, vertices, 3)
	require.LessOrEqual(t, faces, vertices-2)

	vertexData := make([]byte, vertices*12)
	for i := 0; i < vertices; i++ {
		binary.LittleEndian.PutUint32(vertexData[i*12:], math.Float32bits(float32(i)))
		binary.LittleEndian.PutUint32(vertexData[i*12+4:], math.Float32bits(float32(i)*0.5))
	}

	indexData := make([]byte, faces*3*4)
	for f := 0; f < faces; f++ {
		for j, idx := range []uint32{0, uint32(f + 1), uint32(f + 2)} {
			binary.LittleEndian.PutUint32(indexData[(f*3+j)*4:], idx)
		}
	}

	return &geometry.Snapshot{
		VertexData:     vertexData,
		VertexCount:    vertices,
		VertexStride:   12,
		IndexData:      indexData,
		FaceCount:      faces,
		IndicesPerFace: 3,
		BytesPerIndex:  4,
		Transform:      geometry.Identity(),
	}
}

func waitDrained(t *testing.T, s *Store) {
	t.Helper()
	require.True(t, s.WaitForPendingWrites(2*time.Second))
}

func TestStore_AccumulateAndExport(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("anchor-a", buildSnap(t, 10, 4))
	s.Upsert("anchor-b", buildSnap(t, 15, 6))
	s.Upsert("anchor-c", buildSnap(t, 8, 3))
	waitDrained(t, s)

	require.Equal(t, Stats{FragmentCount: 3, VertexCount: 33, FaceCount: 13}, s.Stats())

	// One blob per fragment.
	names, err := bs.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, names, 3)

	var buf bytes.Buffer
	vertices, faces, err := s.ExportMerged(context.Background(), &buf, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, 33, vertices)
	require.Equal(t, 13, faces)

	out := buf.String()
	require.Equal(t, 33, strings.Count(out, "\nv ")+boolToInt(strings.HasPrefix(out, "v ")))
	require.Equal(t, 13, strings.Count(out, "\nf "))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestStore_ReplaceInPlace(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("anchor-a", buildSnap(t, 10, 4))
	waitDrained(t, s)
	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 10, FaceCount: 4}, s.Stats())

	// A revised observation replaces the fragment wholesale.
	s.Upsert("anchor-a", buildSnap(t, 4, 2))
	waitDrained(t, s)
	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 4, FaceCount: 2}, s.Stats())

	names, err := bs.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, names, 1)
}

func TestStore_ThrottleParksLatestAndFlushPersists(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(time.Hour))
	defer s.Close()

	require.Equal(t, Admitted, s.Upsert("anchor-a", buildSnap(t, 3, 1)))
	waitDrained(t, s)

	// Rapid revisions inside the interval are skipped; the latest one
	// is parked.
	require.Equal(t, ThrottledSkip, s.Upsert("anchor-a", buildSnap(t, 4, 1)))
	require.Equal(t, ThrottledSkip, s.Upsert("anchor-a", buildSnap(t, 6, 2)))
	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 3, FaceCount: 1}, s.Stats())

	// Flush bypasses the throttle so the final geometry is durable.
	require.Equal(t, 1, s.Flush())
	waitDrained(t, s)
	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 6, FaceCount: 2}, s.Stats())
}

func TestStore_InvalidSnapshotSkipped(t *testing.T) {
	s := New(blobstore.NewMemoryStore())
	defer s.Close()

	require.Equal(t, InvalidSkip, s.Upsert("anchor-a", nil))
	require.Equal(t, InvalidSkip, s.Upsert("anchor-a", &geometry.Snapshot{}))
	require.Equal(t, Stats{}, s.Stats())
}

func TestStore_Remove(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("anchor-a", buildSnap(t, 5, 2))
	s.Upsert("anchor-b", buildSnap(t, 3, 1))
	waitDrained(t, s)

	s.Remove("anchor-a")
	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 3, FaceCount: 1}, s.Stats())

	// Removing an unknown id is a no-op.
	s.Remove("anchor-x")
	require.Equal(t, 1, s.Stats().FragmentCount)
}

func TestStore_ClearEmptiesEverything(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("anchor-a", buildSnap(t, 5, 2))
	s.Upsert("anchor-b", buildSnap(t, 3, 1))
	waitDrained(t, s)

	s.Clear()
	waitDrained(t, s)

	require.Equal(t, Stats{}, s.Stats())

	require.Eventually(t, func() bool {
		names, err := bs.List(context.Background(), "")
		return err == nil && len(names) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The store accepts new fragments after the reset completes.
	require.Eventually(t, func() bool {
		return s.Upsert("anchor-c", buildSnap(t, 3, 1)) == Admitted
	}, 2*time.Second, 10*time.Millisecond)
	waitDrained(t, s)
	require.Equal(t, 1, s.Stats().FragmentCount)
}

func TestStore_ClearIdempotent(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	// Clearing an empty store leaves it empty and writable.
	s.Clear()
	require.Eventually(t, func() bool {
		return s.Upsert("anchor-a", buildSnap(t, 3, 1)) == Admitted
	}, 2*time.Second, 10*time.Millisecond)
	waitDrained(t, s)
	require.Equal(t, 1, s.Stats().FragmentCount)

	// Back-to-back clears behave like one.
	s.Clear()
	s.Clear()
	require.Equal(t, Stats{}, s.Stats())
	require.Eventually(t, func() bool {
		return s.Upsert("anchor-b", buildSnap(t, 3, 1)) == Admitted
	}, 2*time.Second, 10*time.Millisecond)
	waitDrained(t, s)
	require.Equal(t, 1, s.Stats().FragmentCount)
}

func TestStore_ExportIncludesLivePending(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(time.Hour))
	defer s.Close()

	require.Equal(t, Admitted, s.Upsert("anchor-a", buildSnap(t, 3, 1)))
	waitDrained(t, s)

	// The parked revision supersedes the file-backed one; the export
	// must contain 6 vertices, not 3+6.
	require.Equal(t, ThrottledSkip, s.Upsert("anchor-a", buildSnap(t, 6, 2)))

	var buf bytes.Buffer
	vertices, faces, err := s.ExportMerged(context.Background(), &buf, ExportOptions{IncludeLive: true})
	require.NoError(t, err)
	require.Equal(t, 6, vertices)
	require.Equal(t, 2, faces)

	// Without IncludeLive only durable geometry is merged.
	buf.Reset()
	vertices, _, err = s.ExportMerged(context.Background(), &buf, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, vertices)
}

func TestStore_ExportDecimated(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	// Vertices 1m apart survive any grid; counts pass through.
	s.Upsert("anchor-a", buildSnap(t, 8, 3))
	waitDrained(t, s)

	var buf bytes.Buffer
	vertices, _, err := s.ExportMerged(context.Background(), &buf, ExportOptions{Quality: decimate.QualityLow})
	require.NoError(t, err)
	require.Equal(t, 8, vertices)
	require.Contains(t, buf.String(), "# quality: low\n")
}

func TestStore_ExportEmptyReturnsErrNoData(t *testing.T) {
	s := New(blobstore.NewMemoryStore())
	defer s.Close()

	var buf bytes.Buffer
	_, _, err := s.ExportMerged(context.Background(), &buf, ExportOptions{})
	require.Error(t, err)
}

func TestStore_LoadAllSmallestFirstUnderCap(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("big", buildSnap(t, 20, 5))
	s.Upsert("small", buildSnap(t, 3, 1))
	s.Upsert("mid", buildSnap(t, 6, 2))
	waitDrained(t, s)

	// Cap of 10 admits small (3) and mid (6); big would exceed it.
	mesh, err := s.LoadAll(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 9, mesh.VertexCount())
	require.Equal(t, 3, mesh.FaceCount())

	// Uncapped load assembles everything.
	mesh, err = s.LoadAll(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 29, mesh.VertexCount())
}

func TestStore_ClearOrdersAfterQueuedWrites(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	s := New(bs, WithThrottleInterval(0))
	defer s.Close()

	// A burst of writes cleared before they settle: the storage reset
	// runs behind them on the serial queue, so no pre-clear geometry may
	// survive or be attributed to a fragment admitted after the clear.
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Upsert(id, buildSnap(t, 5, 2))
	}
	s.Clear()

	require.Eventually(t, func() bool {
		return s.Upsert("post", buildSnap(t, 3, 1)) == Admitted
	}, 2*time.Second, 10*time.Millisecond)
	waitDrained(t, s)

	require.Equal(t, Stats{FragmentCount: 1, VertexCount: 3, FaceCount: 1}, s.Stats())

	names, err := bs.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"post.frag"}, names)
}

func TestStore_LoadAllCanceledContext(t *testing.T) {
	s := New(blobstore.NewMemoryStore(), WithThrottleInterval(0))
	defer s.Close()

	s.Upsert("anchor-a", buildSnap(t, 3, 1))
	waitDrained(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadAll(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_UpsertAfterClose(t *testing.T) {
	s := New(blobstore.NewMemoryStore(), WithThrottleInterval(0))

	s.Upsert("anchor-a", buildSnap(t, 3, 1))
	require.NoError(t, s.Close())

	require.Equal(t, ClosedSkip, s.Upsert("anchor-b", buildSnap(t, 3, 1)))

	// Close drained the queued write first.
	require.Equal(t, 1, s.Stats().FragmentCount)
}

func TestStore_CompressedFragments(t *testing.T) {
	for _, compression := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(compression.Ext(), func(t *testing.T) {
			bs := blobstore.NewMemoryStore()
			s := New(bs, WithThrottleInterval(0), WithCompression(compression))
			defer s.Close()

			s.Upsert("anchor-a", buildSnap(t, 5, 2))
			waitDrained(t, s)

			names, err := bs.List(context.Background(), "")
			require.NoError(t, err)
			require.Len(t, names, 1)
			require.True(t, strings.HasSuffix(names[0], compression.Ext()))

			var buf bytes.Buffer
			vertices, faces, err := s.ExportMerged(context.Background(), &buf, ExportOptions{})
			require.NoError(t, err)
			require.Equal(t, 5, vertices)
			require.Equal(t, 2, faces)
		})
	}
}

func TestStore_BlobNameSanitized(t *testing.T) {
	s := New(blobstore.NewMemoryStore())
	defer s.Close()

	name := s.blobName("anchor/../../etc:passwd")
	require.NotContains(t, name, "/")
	require.NotContains(t, name, ":")
	require.True(t, strings.HasSuffix(name, ".frag"))
}
