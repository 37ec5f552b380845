package store

import (
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/meshgo/geometry"
)

// Record is the metadata kept in memory for one live fragment. It is
// the source of truth for aggregate stats; disk is never consulted.
type Record struct {
	VertexCount int
	FaceCount   int
	Blob        string
}

// Entry pairs a fragment id with its record in an index snapshot.
type Entry struct {
	ID string
	Record
}

// Stats are the aggregate counters over all live fragments.
type Stats struct {
	FragmentCount int
	VertexCount   int
	FaceCount     int
}

// fragmentIndex is the store's only shared mutable state: the metadata
// records plus the admission tracking (throttle limiters, in-flight and
// live bitmaps, parked pending snapshots). Everything is guarded by one
// mutex held only for in-memory work, never across I/O.
//
// Fragment ids are interned to dense uint32 slots so the live and
// in-flight sets can be roaring bitmaps and per-id state lives in
// slot-keyed maps.
type fragmentIndex struct {
	mu sync.Mutex

	slots map[string]uint32
	ids   []string

	records  map[uint32]Record
	live     *roaring.Bitmap
	inflight *roaring.Bitmap

	throttle time.Duration
	limiters map[uint32]*rate.Limiter
	pending  map[uint32]*geometry.Snapshot

	cleared bool
	closed  bool
}

func newFragmentIndex(throttle time.Duration) *fragmentIndex {
	idx := &fragmentIndex{throttle: throttle}
	idx.resetLocked()
	return idx
}

// resetLocked reinstates the freshly-constructed state. Callers hold mu
// (or own the index exclusively).
func (idx *fragmentIndex) resetLocked() {
	idx.slots = make(map[string]uint32)
	idx.ids = nil
	idx.records = make(map[uint32]Record)
	idx.live = roaring.New()
	idx.inflight = roaring.New()
	idx.limiters = make(map[uint32]*rate.Limiter)
	idx.pending = make(map[uint32]*geometry.Snapshot)
}

func (idx *fragmentIndex) slotLocked(id string) uint32 {
	if slot, ok := idx.slots[id]; ok {
		return slot
	}
	slot := uint32(len(idx.ids))
	idx.slots[id] = slot
	idx.ids = append(idx.ids, id)
	return slot
}

// admit runs the admission gates for one snapshot. On a throttle or
// in-flight skip the snapshot is parked as the fragment's pending
// revision so a later flush can still persist the final geometry.
func (idx *fragmentIndex) admit(id string, snap *geometry.Snapshot) (uint32, Admission) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return 0, ClosedSkip
	}
	if idx.cleared {
		return 0, ClearedSkip
	}

	slot := idx.slotLocked(id)

	if idx.inflight.Contains(slot) {
		idx.pending[slot] = snap
		return slot, InFlightSkip
	}

	if idx.throttle > 0 {
		lim, ok := idx.limiters[slot]
		if !ok {
			lim = rate.NewLimiter(rate.Every(idx.throttle), 1)
			idx.limiters[slot] = lim
		}
		if !lim.Allow() {
			idx.pending[slot] = snap
			return slot, ThrottledSkip
		}
	}

	idx.inflight.Add(slot)
	delete(idx.pending, slot)
	return slot, Admitted
}

// commit records a completed write and clears the in-flight marker.
// Returns false when a clear raced the write; the caller must then
// remove the just-written blob.
func (idx *fragmentIndex) commit(slot uint32, rec Record) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.inflight.Remove(slot)
	if idx.cleared {
		return false
	}
	idx.records[slot] = rec
	idx.live.Add(slot)
	return true
}

// abort clears the in-flight marker without touching the record.
func (idx *fragmentIndex) abort(slot uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.inflight.Remove(slot)
}

// vetoed reports whether a queued write must skip its disk effect.
// Only a clear vetoes: a close drains queued writes to completion.
func (idx *fragmentIndex) vetoed() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.cleared
}

// remove drops the fragment's record and pending state. It returns the
// removed record so the caller can delete the backing blob.
func (idx *fragmentIndex) remove(id string) (Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.slots[id]
	if !ok {
		return Record{}, false
	}
	delete(idx.pending, slot)
	if !idx.live.Contains(slot) {
		return Record{}, false
	}
	rec := idx.records[slot]
	delete(idx.records, slot)
	idx.live.Remove(slot)
	return rec, true
}

// stats sums the in-memory records. O(fragments), no disk access.
func (idx *fragmentIndex) stats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := Stats{FragmentCount: int(idx.live.GetCardinality())}
	it := idx.live.Iterator()
	for it.HasNext() {
		rec := idx.records[it.Next()]
		s.VertexCount += rec.VertexCount
		s.FaceCount += rec.FaceCount
	}
	return s
}

// snapshot returns a point-in-time copy of all live entries, sorted
// lexically by blob name. The lock is released before the caller does
// any I/O.
func (idx *fragmentIndex) snapshot() []Entry {
	idx.mu.Lock()
	entries := make([]Entry, 0, idx.live.GetCardinality())
	it := idx.live.Iterator()
	for it.HasNext() {
		slot := it.Next()
		entries = append(entries, Entry{ID: idx.ids[slot], Record: idx.records[slot]})
	}
	idx.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Blob < entries[j].Blob })
	return entries
}

// takePending removes and returns all parked snapshots keyed by id.
func (idx *fragmentIndex) takePending() map[string]*geometry.Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.pending) == 0 {
		return nil
	}
	out := make(map[string]*geometry.Snapshot, len(idx.pending))
	for slot, snap := range idx.pending {
		out[idx.ids[slot]] = snap
	}
	idx.pending = make(map[uint32]*geometry.Snapshot)
	return out
}

// peekPending returns the parked snapshots without consuming them.
func (idx *fragmentIndex) peekPending() map[string]*geometry.Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.pending) == 0 {
		return nil
	}
	out := make(map[string]*geometry.Snapshot, len(idx.pending))
	for slot, snap := range idx.pending {
		out[idx.ids[slot]] = snap
	}
	return out
}

// markInflight reserves the in-flight slot for a flush write, bypassing
// the throttle gate. Returns false if a write is already queued.
func (idx *fragmentIndex) markInflight(id string) (uint32, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.cleared || idx.closed {
		return 0, false
	}
	slot := idx.slotLocked(id)
	if idx.inflight.Contains(slot) {
		return 0, false
	}
	idx.inflight.Add(slot)
	return slot, true
}

// drained reports whether no writes are queued or executing.
func (idx *fragmentIndex) drained() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.inflight.IsEmpty()
}

// beginClear flips the cleared flag and empties all tracking. Returns
// false when a clear is already in progress.
func (idx *fragmentIndex) beginClear() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.cleared {
		return false
	}
	idx.cleared = true
	idx.resetLocked()
	return true
}

// finishClear re-enables writes after the backing store was reset.
func (idx *fragmentIndex) finishClear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cleared = false
}

func (idx *fragmentIndex) markClosed() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
}
