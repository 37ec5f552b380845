package store

// Admission is the tagged result of an Upsert call. Skips are silent by
// design (bounded resource usage under a fast producer); the tag exists
// so callers and tests can assert on the drop reason.
type Admission int

const (
	// Admitted means the snapshot was accepted and queued for writing.
	Admitted Admission = iota
	// ThrottledSkip means the fragment was last admitted within the
	// throttle interval; the snapshot was parked as pending instead.
	ThrottledSkip
	// InFlightSkip means a write for this fragment is already queued;
	// the snapshot was parked as pending instead.
	InFlightSkip
	// ClearedSkip means a clear is in progress and the snapshot was
	// dropped.
	ClearedSkip
	// ClosedSkip means the store is closed.
	ClosedSkip
	// InvalidSkip means the snapshot violated the acceptance invariant
	// (no vertices).
	InvalidSkip
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case ThrottledSkip:
		return "throttled"
	case InFlightSkip:
		return "in-flight"
	case ClearedSkip:
		return "cleared"
	case ClosedSkip:
		return "closed"
	case InvalidSkip:
		return "invalid"
	}
	return "unknown"
}

// Accepted reports whether the snapshot was queued for writing.
func (a Admission) Accepted() bool { return a == Admitted }
