package meshgo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hupe1980/meshgo/decimate"
	"github.com/hupe1980/meshgo/geometry"
	"github.com/hupe1980/meshgo/resource"
	"github.com/hupe1980/meshgo/store"
)

// EventKind classifies an anchor event delivered by the sensor.
type EventKind int

const (
	// AnchorAdded reports a fragment observed for the first time.
	AnchorAdded EventKind = iota
	// AnchorUpdated reports revised geometry for a known fragment.
	AnchorUpdated
	// AnchorRemoved reports that the sensor retired the fragment.
	AnchorRemoved
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case AnchorAdded:
		return "added"
	case AnchorUpdated:
		return "updated"
	case AnchorRemoved:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AnchorEvent is one sensor callback: a fragment id with its current
// geometry and world pose. Geometry is nil for AnchorRemoved. The
// Geometry buffers are only valid for the duration of HandleAnchor.
type AnchorEvent struct {
	Kind      EventKind
	ID        string
	Geometry  geometry.Source
	Transform geometry.Transform
}

// ExportResult describes a finished merged export.
type ExportResult struct {
	Path        string
	VertexCount int
	FaceCount   int
}

// Stats are aggregate counts over all stored fragments.
type Stats = store.Stats

// Scanner is the capture facade: it receives anchor events from the
// sensor, accumulates fragments in a durable store, and exports the
// merged scene on demand. All methods are safe for concurrent use.
type Scanner struct {
	store     *store.Store
	outDir    string
	drain     time.Duration
	capturing atomic.Bool
	closed    atomic.Bool
	metrics   MetricsCollector
	logger    *Logger
}

// New creates a Scanner persisting fragments under dataDir. The
// directory is created if missing.
func New(dataDir string, optFns ...Option) (*Scanner, error) {
	o := applyOptions(optFns)

	storeOpts := []store.Option{
		store.WithThrottleInterval(o.throttle),
		store.WithCompression(o.compression),
		store.WithLogger(o.logger.Logger),
	}
	if o.resourceCfg != nil {
		storeOpts = append(storeOpts, store.WithResourceController(resource.NewController(*o.resourceCfg)))
	}

	var st *store.Store
	if o.blobStore != nil {
		st = store.New(o.blobStore, storeOpts...)
	} else {
		var err error
		st, err = store.Open(dataDir, storeOpts...)
		if err != nil {
			return nil, err
		}
	}

	outDir := o.outDir
	if outDir == "" {
		outDir = dataDir
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, err
		}
	}

	return &Scanner{
		store:   st,
		outDir:  outDir,
		drain:   o.stopDrainTimeout,
		metrics: o.metricsCollector,
		logger:  o.logger,
	}, nil
}

// Start begins capture. Anchor events delivered before Start (or after
// Stop) are ignored.
func (s *Scanner) Start() {
	if s.closed.Load() {
		return
	}
	s.capturing.Store(true)
	s.logger.Info("capture started")
}

// Stop ends capture and flushes the latest parked revision of every
// throttled fragment, then waits for the write queue to drain (bounded
// by the stop drain timeout). Stored data is kept; capture can be
// resumed with Start.
func (s *Scanner) Stop() {
	if !s.capturing.Swap(false) {
		return
	}
	queued := s.store.Flush()
	drained := s.store.WaitForPendingWrites(s.drain)
	s.logger.LogFlush(context.Background(), queued, drained)
}

// Capturing reports whether anchor events are currently accepted.
func (s *Scanner) Capturing() bool {
	return s.capturing.Load()
}

// HandleAnchor processes one sensor event. It must be called
// synchronously from the delivering callback: geometry buffers are
// copied before it returns and never touched afterwards. It never
// blocks on disk.
func (s *Scanner) HandleAnchor(ev AnchorEvent) store.Admission {
	if !s.capturing.Load() {
		return store.ClosedSkip
	}

	start := time.Now()

	if ev.Kind == AnchorRemoved {
		s.store.Remove(ev.ID)
		s.metrics.RecordRemove(time.Since(start))
		s.logger.LogRemove(context.Background(), ev.ID)
		return store.Admitted
	}

	var snap *geometry.Snapshot
	if ev.Geometry != nil {
		snap, _ = geometry.Extract(ev.Geometry, ev.Transform)
	}

	adm := s.store.Upsert(ev.ID, snap)
	s.metrics.RecordUpsert(adm, time.Since(start))
	s.logger.LogUpsert(context.Background(), ev.ID, adm.String())
	return adm
}

// Run consumes anchor events from a channel until it closes or the
// context is canceled. Convenience loop for pipelines that deliver
// events asynchronously instead of via direct callback.
func (s *Scanner) Run(ctx context.Context, events <-chan AnchorEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleAnchor(ev)
		}
	}
}

// Stats returns aggregate fragment counts from the in-memory index.
func (s *Scanner) Stats() Stats {
	return s.store.Stats()
}

// Export merges every stored fragment (plus any not-yet-durable live
// revisions) into <outputDir>/<name>.obj at the given quality.
func (s *Scanner) Export(ctx context.Context, name string, quality decimate.Quality) (ExportResult, error) {
	if s.closed.Load() {
		return ExportResult{}, ErrClosed
	}

	path := filepath.Join(s.outDir, name+".obj")
	start := time.Now()

	f, err := os.Create(path)
	if err != nil {
		werr := &ErrWriteFailed{Path: path, cause: err}
		s.metrics.RecordExport(0, 0, time.Since(start), werr)
		s.logger.LogExport(ctx, path, 0, 0, werr)
		return ExportResult{}, werr
	}

	vertices, faces, err := s.store.ExportMerged(ctx, f, store.ExportOptions{
		Quality:     quality,
		IncludeLive: true,
	})
	cerr := f.Close()
	if err == nil && cerr != nil {
		err = &ErrWriteFailed{Path: path, cause: cerr}
	}
	if err != nil {
		// No partial exports on disk.
		_ = os.Remove(path)
		err = translateError(err)
		if !errors.Is(err, ErrNoData) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = &ErrWriteFailed{Path: path, cause: err}
		}
		s.metrics.RecordExport(0, 0, time.Since(start), err)
		s.logger.LogExport(ctx, path, 0, 0, err)
		return ExportResult{}, err
	}

	s.metrics.RecordExport(vertices, faces, time.Since(start), nil)
	s.logger.LogExport(ctx, path, vertices, faces, nil)

	return ExportResult{Path: path, VertexCount: vertices, FaceCount: faces}, nil
}

// Preview assembles the stored fragments into a single in-memory mesh.
// A positive vertexCap bounds the result, admitting fragments
// smallest-first for the best spatial coverage per vertex.
func (s *Scanner) Preview(ctx context.Context, vertexCap int) (*geometry.Mesh, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	mesh, err := s.store.LoadAll(ctx, vertexCap)
	err = translateError(err)

	s.metrics.RecordPreview(time.Since(start), err)
	if err != nil {
		s.logger.LogPreview(ctx, 0, 0, err)
		return nil, err
	}
	s.logger.LogPreview(ctx, mesh.VertexCount(), mesh.FaceCount(), nil)
	return mesh, nil
}

// Clear drops every stored fragment and resets the backing storage.
// Capture state is unchanged; events arriving after Clear accumulate a
// fresh scene.
func (s *Scanner) Clear() {
	s.store.Clear()
	s.metrics.RecordClear()
	s.logger.LogClear(context.Background())
}

// Close stops capture, drains queued writes and shuts the store down.
// Stored fragments are kept on disk. Idempotent.
func (s *Scanner) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Stop()
	return s.store.Close()
}
