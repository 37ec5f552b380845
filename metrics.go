package meshgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/meshgo/store"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement this interface to integrate with monitoring
// systems like Prometheus.
type MetricsCollector interface {
	// RecordUpsert is called after each anchor upsert with its
	// admission outcome and the synchronous (extraction + admission)
	// duration.
	RecordUpsert(admission store.Admission, duration time.Duration)

	// RecordRemove is called after each anchor removal.
	RecordRemove(duration time.Duration)

	// RecordExport is called after each merged export.
	// vertices and faces are the written counts; err is nil on success.
	RecordExport(vertices, faces int, duration time.Duration, err error)

	// RecordPreview is called after each in-memory preview load.
	RecordPreview(duration time.Duration, err error)

	// RecordClear is called after each store clear.
	RecordClear()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(store.Admission, time.Duration)   {}
func (NoopMetricsCollector) RecordRemove(time.Duration)                    {}
func (NoopMetricsCollector) RecordExport(int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordPreview(time.Duration, error)            {}
func (NoopMetricsCollector) RecordClear()                                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external
// dependencies.
type BasicMetricsCollector struct {
	UpsertCount      atomic.Int64
	UpsertAdmitted   atomic.Int64
	UpsertThrottled  atomic.Int64
	UpsertInFlight   atomic.Int64
	UpsertTotalNanos atomic.Int64
	RemoveCount      atomic.Int64
	ExportCount      atomic.Int64
	ExportErrors     atomic.Int64
	ExportVertices   atomic.Int64
	ExportFaces      atomic.Int64
	ExportTotalNanos atomic.Int64
	PreviewCount     atomic.Int64
	PreviewErrors    atomic.Int64
	ClearCount       atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(admission store.Admission, duration time.Duration) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	switch admission {
	case store.Admitted:
		b.UpsertAdmitted.Add(1)
	case store.ThrottledSkip:
		b.UpsertThrottled.Add(1)
	case store.InFlightSkip:
		b.UpsertInFlight.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(time.Duration) {
	b.RemoveCount.Add(1)
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(vertices, faces int, duration time.Duration, err error) {
	b.ExportCount.Add(1)
	b.ExportTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ExportErrors.Add(1)
		return
	}
	b.ExportVertices.Add(int64(vertices))
	b.ExportFaces.Add(int64(faces))
}

// RecordPreview implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPreview(duration time.Duration, err error) {
	b.PreviewCount.Add(1)
	if err != nil {
		b.PreviewErrors.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear() {
	b.ClearCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:     b.UpsertCount.Load(),
		UpsertAdmitted:  b.UpsertAdmitted.Load(),
		UpsertThrottled: b.UpsertThrottled.Load(),
		UpsertInFlight:  b.UpsertInFlight.Load(),
		UpsertAvgNanos:  avg(b.UpsertTotalNanos.Load(), b.UpsertCount.Load()),
		RemoveCount:     b.RemoveCount.Load(),
		ExportCount:     b.ExportCount.Load(),
		ExportErrors:    b.ExportErrors.Load(),
		ExportVertices:  b.ExportVertices.Load(),
		ExportFaces:     b.ExportFaces.Load(),
		ExportAvgNanos:  avg(b.ExportTotalNanos.Load(), b.ExportCount.Load()),
		PreviewCount:    b.PreviewCount.Load(),
		PreviewErrors:   b.PreviewErrors.Load(),
		ClearCount:      b.ClearCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount     int64
	UpsertAdmitted  int64
	UpsertThrottled int64
	UpsertInFlight  int64
	UpsertAvgNanos  int64
	RemoveCount     int64
	ExportCount     int64
	ExportErrors    int64
	ExportVertices  int64
	ExportFaces     int64
	ExportAvgNanos  int64
	PreviewCount    int64
	PreviewErrors   int64
	ClearCount      int64
}
