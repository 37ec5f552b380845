package meshgo

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/blobstore"
)

type fakeCatalog struct {
	scanID    string
	objectKey string
	vertices  int
	faces     int
	commits   int
}

func (c *fakeCatalog) Commit(_ context.Context, scanID, objectKey string, vertices, faces int) (uint64, error) {
	c.scanID = scanID
	c.objectKey = objectKey
	c.vertices = vertices
	c.faces = faces
	c.commits++
	return uint64(c.commits), nil
}

func writeTestExport(t *testing.T) ExportResult {
	t.Helper()
	path := filepath.Join(t.TempDir(), "room.obj")
	content := []byte("# test export\n\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return ExportResult{Path: path, VertexCount: 3, FaceCount: 1}
}

func TestArchiver_UploadsExport(t *testing.T) {
	dest := blobstore.NewMemoryStore()
	archiver := NewArchiver(dest)

	res := writeTestExport(t)
	key, err := archiver.Archive(context.Background(), "scan-1", res)
	require.NoError(t, err)
	require.Equal(t, "scan-1/room.obj", key)

	blob, err := dest.Open(context.Background(), key)
	require.NoError(t, err)
	defer blob.Close()

	uploaded, err := blobstore.ReadAll(context.Background(), blob)
	require.NoError(t, err)

	original, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, original, uploaded)
}

func TestArchiver_CompressedUpload(t *testing.T) {
	dest := blobstore.NewMemoryStore()
	archiver := NewArchiver(dest, WithArchiveCompression(true))

	res := writeTestExport(t)
	key, err := archiver.Archive(context.Background(), "scan-1", res)
	require.NoError(t, err)
	require.Equal(t, "scan-1/room.obj.zst", key)

	blob, err := dest.Open(context.Background(), key)
	require.NoError(t, err)
	defer blob.Close()

	compressed, err := blobstore.ReadAll(context.Background(), blob)
	require.NoError(t, err)

	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer zr.Close()

	decompressed, err := io.ReadAll(zr)
	require.NoError(t, err)

	original, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, original, decompressed)
}

func TestArchiver_CommitsToCatalog(t *testing.T) {
	dest := blobstore.NewMemoryStore()
	catalog := &fakeCatalog{}
	archiver := NewArchiver(dest, WithCatalog(catalog))

	res := writeTestExport(t)
	key, err := archiver.Archive(context.Background(), "scan-1", res)
	require.NoError(t, err)

	require.Equal(t, 1, catalog.commits)
	require.Equal(t, "scan-1", catalog.scanID)
	require.Equal(t, key, catalog.objectKey)
	require.Equal(t, 3, catalog.vertices)
	require.Equal(t, 1, catalog.faces)
}

func TestArchiver_MissingExport(t *testing.T) {
	archiver := NewArchiver(blobstore.NewMemoryStore())

	_, err := archiver.Archive(context.Background(), "scan-1", ExportResult{Path: "/nonexistent/file.obj"})
	require.Error(t, err)
}
