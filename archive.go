package meshgo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/meshgo/blobstore"
)

// Catalog records committed exports so other consumers can find the
// current export of a scan. Implemented by s3.ExportCatalog.
type Catalog interface {
	// Commit records objectKey as the next version of the scan's export
	// and returns the version number.
	Commit(ctx context.Context, scanID, objectKey string, vertices, faces int) (uint64, error)
}

type archiverOptions struct {
	compress bool
	catalog  Catalog
	logger   *Logger
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*archiverOptions)

// WithArchiveCompression enables zstd compression of uploaded exports.
// The object key gains a ".zst" suffix.
func WithArchiveCompression(enable bool) ArchiverOption {
	return func(o *archiverOptions) { o.compress = enable }
}

// WithCatalog commits each upload to the given export catalog.
func WithCatalog(c Catalog) ArchiverOption {
	return func(o *archiverOptions) { o.catalog = c }
}

// WithArchiverLogger configures structured logging for uploads.
func WithArchiverLogger(l *Logger) ArchiverOption {
	return func(o *archiverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Archiver pushes finished exports to an object store, optionally
// compressed, and optionally commits them to an export catalog.
type Archiver struct {
	dest     blobstore.Store
	compress bool
	catalog  Catalog
	logger   *Logger
}

// NewArchiver creates an Archiver uploading to dest (typically an S3 or
// MinIO backed blobstore.Store).
func NewArchiver(dest blobstore.Store, optFns ...ArchiverOption) *Archiver {
	o := archiverOptions{logger: NoopLogger()}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return &Archiver{
		dest:     dest,
		compress: o.compress,
		catalog:  o.catalog,
		logger:   o.logger,
	}
}

// Archive uploads the export at res.Path under the scan's prefix and
// returns the object key. With a catalog configured, the upload is also
// committed as the scan's next export version.
func (a *Archiver) Archive(ctx context.Context, scanID string, res ExportResult) (string, error) {
	f, err := os.Open(res.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	key := path.Join(scanID, filepath.Base(res.Path))
	if a.compress {
		key += ".zst"
	}

	wb, err := a.dest.Create(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to create archive object: %w", err)
	}

	if err := a.upload(wb, f); err != nil {
		_ = wb.Abort()
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	if err := wb.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	a.logger.Info("export archived",
		"scan", scanID,
		"key", key,
		"vertices", res.VertexCount,
		"faces", res.FaceCount,
	)

	if a.catalog != nil {
		version, err := a.catalog.Commit(ctx, scanID, key, res.VertexCount, res.FaceCount)
		if err != nil {
			return key, fmt.Errorf("failed to commit export to catalog: %w", err)
		}
		a.logger.Info("export committed", "scan", scanID, "version", version)
	}

	return key, nil
}

func (a *Archiver) upload(dst io.Writer, src io.Reader) error {
	if !a.compress {
		_, err := io.Copy(dst, src)
		return err
	}

	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
