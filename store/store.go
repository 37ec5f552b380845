// Package store implements the durable, disk-backed fragment store at
// the heart of the capture pipeline: one geometry blob per fragment id,
// replaced wholesale on every accepted update, with an in-memory
// metadata index for O(1) aggregate stats and admission gates that keep
// write-queue and allocation pressure bounded under a fast sensor.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshgo/blobstore"
	"github.com/hupe1980/meshgo/decimate"
	"github.com/hupe1980/meshgo/export"
	"github.com/hupe1980/meshgo/geometry"
	"github.com/hupe1980/meshgo/resource"
)

// DefaultThrottleInterval is the minimum time between accepted writes
// for the same fragment id.
const DefaultThrottleInterval = time.Second

type options struct {
	throttle    time.Duration
	compression Compression
	logger      *slog.Logger
	controller  *resource.Controller
}

// Option configures a Store.
type Option func(*options)

// WithThrottleInterval sets the per-fragment throttle interval. Zero
// disables throttling.
func WithThrottleInterval(d time.Duration) Option {
	return func(o *options) { o.throttle = d }
}

// WithCompression selects the fragment-file compression.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithLogger sets the structured logger for background events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController bounds concurrent export/load jobs and paces
// their IO.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) { o.controller = c }
}

func applyOptions(optFns []Option) options {
	o := options{
		throttle: DefaultThrottleInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Store is the fragment store. All methods are safe for concurrent use.
// Upsert never blocks on disk: it runs the admission gates in memory
// and queues the write.
type Store struct {
	bs     blobstore.Store
	codec  codec
	idx    *fragmentIndex
	queue  *writeQueue
	rc     *resource.Controller
	logger *slog.Logger
}

// New creates a Store over the given blob storage.
func New(bs blobstore.Store, optFns ...Option) *Store {
	o := applyOptions(optFns)
	return &Store{
		bs:     bs,
		codec:  codec{compression: o.compression},
		idx:    newFragmentIndex(o.throttle),
		queue:  newWriteQueue(),
		rc:     o.controller,
		logger: o.logger,
	}
}

// Open creates a Store backed by a local directory.
func Open(dir string, optFns ...Option) (*Store, error) {
	bs, err := blobstore.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	return New(bs, optFns...), nil
}

// blobName maps a fragment id to its blob name. Ids are sensor-issued
// identifiers (UUIDs in practice); anything outside a safe character
// set is replaced so the name works on every backend.
func (s *Store) blobName(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	return safe + s.codec.compression.Ext()
}

// Upsert admits one snapshot for the fragment id and, when accepted,
// queues the background write. It returns after the in-memory gates
// regardless of outcome; the caller (a latency-sensitive sensor
// callback) never waits on file I/O.
func (s *Store) Upsert(id string, snap *geometry.Snapshot) Admission {
	if snap == nil || snap.VertexCount <= 0 {
		return InvalidSkip
	}

	slot, adm := s.idx.admit(id, snap)
	if adm != Admitted {
		return adm
	}

	if err := s.queue.submit(func() { s.performWrite(slot, id, snap) }); err != nil {
		s.idx.abort(slot)
		return ClosedSkip
	}
	return Admitted
}

// performWrite runs on the write queue: decode, bake the transform,
// persist, publish the index record. I/O errors are swallowed here by
// design; the fragment is re-observed frequently and a later update
// will land.
func (s *Store) performWrite(slot uint32, id string, snap *geometry.Snapshot) {
	ctx := context.Background()

	// A clear may have been requested while this task sat in the queue;
	// writing anyway would resurrect data the user explicitly removed.
	if s.idx.vetoed() {
		s.idx.abort(slot)
		return
	}

	mesh, err := snap.Decode()
	if err != nil {
		s.idx.abort(slot)
		s.logger.Warn("fragment rejected", "fragment", id, "error", err)
		return
	}

	name := s.blobName(id)
	var buf strings.Builder
	if err := s.codec.Encode(&buf, mesh); err != nil {
		s.idx.abort(slot)
		s.logger.Warn("fragment encode failed", "fragment", id, "error", err)
		return
	}
	if err := s.bs.Put(ctx, name, []byte(buf.String())); err != nil {
		s.idx.abort(slot)
		s.logger.Warn("fragment write failed", "fragment", id, "error", err)
		return
	}

	rec := Record{VertexCount: mesh.VertexCount(), FaceCount: mesh.FaceCount(), Blob: name}
	if !s.idx.commit(slot, rec) {
		// Clear won the race after our write; drop the stale blob.
		_ = s.bs.Delete(ctx, name)
		return
	}

	s.logger.Debug("fragment stored", "fragment", id, "vertices", rec.VertexCount, "faces", rec.FaceCount)
}

// Remove drops the fragment's index entry and asynchronously deletes
// its backing blob. No-op for unknown ids.
func (s *Store) Remove(id string) {
	rec, ok := s.idx.remove(id)
	if !ok {
		return
	}
	if err := s.queue.submit(func() { _ = s.bs.Delete(context.Background(), rec.Blob) }); err != nil {
		// Queue closed during teardown; Reset or Close cleanup owns the
		// blob from here.
		return
	}
	s.logger.Debug("fragment removed", "fragment", id)
}

// Stats sums the in-memory index under the lock; disk is not touched.
func (s *Store) Stats() Stats {
	return s.idx.stats()
}

// Snapshot returns a point-in-time copy of the index, sorted lexically
// by blob name. This is the deterministic merge order.
func (s *Store) Snapshot() []Entry {
	return s.idx.snapshot()
}

// Flush persists every parked pending snapshot (the latest revision
// dropped by a throttle or in-flight gate), bypassing the throttle.
// Called when capture stops so the final geometry of every fragment is
// durable. Returns the number of writes queued.
func (s *Store) Flush() int {
	queued := 0
	for id, snap := range s.idx.takePending() {
		slot, ok := s.idx.markInflight(id)
		if !ok {
			continue
		}
		id, snap := id, snap
		if err := s.queue.submit(func() { s.performWrite(slot, id, snap) }); err != nil {
			s.idx.abort(slot)
			break
		}
		queued++
	}
	return queued
}

// WaitForPendingWrites polls until the in-flight set drains or the
// timeout elapses. Returns true if drained. Used at teardown so the
// backing directory is not destroyed under a mid-flight write; on
// timeout cleanup proceeds anyway, best effort.
func (s *Store) WaitForPendingWrites(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.idx.drained() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Clear empties the store: the cleared flag vetoes queued writes, all
// tracking is dropped under the lock, and the backing storage is reset
// on the write queue (ordering it after the vetoed writes). New writes
// are admitted again once the reset completes. Idempotent; in-flight
// writes are vetoed, not canceled.
func (s *Store) Clear() {
	if !s.idx.beginClear() {
		return
	}

	reset := func() {
		if err := s.bs.Reset(context.Background()); err != nil {
			s.logger.Warn("storage reset failed", "error", err)
		}
		s.idx.finishClear()
		s.logger.Info("store cleared")
	}
	if err := s.queue.submit(reset); err != nil {
		// Queue already closed; reset inline.
		reset()
	}
}

// ExportOptions configures ExportMerged.
type ExportOptions struct {
	// Quality selects the decimation level. QualityFull streams the
	// two-pass merge straight to the writer.
	Quality decimate.Quality
	// IncludeLive merges parked pending snapshots (revisions not yet
	// durable) after all file-backed fragments. A pending revision
	// supersedes the fragment's on-disk file so no geometry is
	// duplicated.
	IncludeLive bool
}

// ExportMerged merges every stored fragment into one OBJ mesh written
// to w. Fragments merge in lexical blob-name order; faces are re-based
// onto the global vertex numbering with a running offset.
func (s *Store) ExportMerged(ctx context.Context, w io.Writer, opts ExportOptions) (vertices, faces int, err error) {
	if s.rc != nil {
		if err := s.rc.AcquireJob(ctx); err != nil {
			return 0, 0, err
		}
		defer s.rc.ReleaseJob()
		w = s.rc.PacedWriter(ctx, w)
	}

	frags, live := s.collectFragments(opts.IncludeLive)

	header := []string{
		"meshgo merged export",
		fmt.Sprintf("quality: %s", opts.Quality),
		fmt.Sprintf("fragments: %d", len(frags)),
	}

	start := time.Now()
	defer func() {
		if err == nil {
			s.logger.Info("export complete",
				"fragments", len(frags),
				"live", live,
				"vertices", vertices,
				"faces", faces,
				"quality", opts.Quality.String(),
				"elapsed", time.Since(start),
			)
		}
	}()

	if opts.Quality == decimate.QualityFull {
		return export.Merge(ctx, w, frags, header)
	}

	mesh, err := export.Collect(ctx, frags, 0)
	if err != nil {
		return 0, 0, err
	}
	return export.WriteOBJ(w, decimate.Decimate(mesh, opts.Quality), header)
}

// collectFragments builds the merge input: file-backed fragments in
// lexical blob order, then live pending snapshots. Returns the
// fragment list and the number of live entries appended.
func (s *Store) collectFragments(includeLive bool) ([]export.Fragment, int) {
	entries := s.idx.snapshot()

	var pending map[string]*geometry.Snapshot
	if includeLive {
		pending = s.idx.peekPending()
	}

	frags := make([]export.Fragment, 0, len(entries)+len(pending))
	for _, e := range entries {
		if _, superseded := pending[e.ID]; superseded {
			continue
		}
		frags = append(frags, &blobFragment{store: s, id: e.ID, blob: e.Blob})
	}

	liveIDs := make([]string, 0, len(pending))
	for id := range pending {
		liveIDs = append(liveIDs, id)
	}
	sort.Strings(liveIDs)
	for _, id := range liveIDs {
		mesh, err := pending[id].Decode()
		if err != nil {
			s.logger.Warn("live fragment rejected", "fragment", id, "error", err)
			continue
		}
		frags = append(frags, &export.MeshFragment{ID: id, Data: mesh})
	}

	return frags, len(liveIDs)
}

// LoadAll reads fragments back from storage and assembles them into a
// single in-memory mesh with the same running-offset discipline as
// ExportMerged. With a positive vertexCap, fragments are selected
// smallest-first until the cap is reached, which gives a preview the
// best spatial coverage for its budget.
func (s *Store) LoadAll(ctx context.Context, vertexCap int) (*geometry.Mesh, error) {
	if s.rc != nil {
		if err := s.rc.AcquireJob(ctx); err != nil {
			return nil, err
		}
		defer s.rc.ReleaseJob()
	}

	entries := s.idx.snapshot()
	if len(entries) == 0 {
		return nil, export.ErrNoData
	}
	if vertexCap > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].VertexCount < entries[j].VertexCount
		})
	}

	// Decode in parallel, assemble in order.
	meshes := make([]*geometry.Mesh, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			m, err := s.fragmentMesh(gctx, e.Blob)
			if err != nil {
				// Best effort: a fragment mid-replace is simply absent
				// from this preview.
				s.logger.Debug("preview read failed", "fragment", e.ID, "error", err)
				return nil
			}
			meshes[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Read failures during cancellation are swallowed above; the caller
	// gets the context error, not a spurious empty-corpus result.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frags := make([]export.Fragment, 0, len(meshes))
	for i, m := range meshes {
		if m == nil {
			continue
		}
		frags = append(frags, &export.MeshFragment{ID: entries[i].ID, Data: m})
	}
	return export.Collect(ctx, frags, vertexCap)
}

// Close shuts the store down after draining queued writes. It does not
// delete stored data.
func (s *Store) Close() error {
	s.idx.markClosed()
	s.queue.close()
	return nil
}

func (s *Store) fragmentMesh(ctx context.Context, blob string) (*geometry.Mesh, error) {
	b, err := s.bs.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return s.codec.Decode(r)
}

// blobFragment adapts a stored fragment blob to export.Fragment.
type blobFragment struct {
	store *Store
	id    string
	blob  string
}

func (f *blobFragment) Name() string { return f.blob }

func (f *blobFragment) Mesh(ctx context.Context) (*geometry.Mesh, error) {
	return f.store.fragmentMesh(ctx, f.blob)
}
