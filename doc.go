// Package meshgo is a streaming mesh accumulation and export engine.
//
// A live scanning sensor delivers spatially-local mesh fragments
// ("anchors"), each re-observed repeatedly with revised geometry as the
// sensor refines its understanding of the space. Meshgo accumulates an
// unbounded scene without unbounded memory: every fragment is baked
// into world space and persisted as its own blob, replaced wholesale on
// each accepted update, while an in-memory index keeps aggregate stats
// O(1). On demand the store is merged into a single indexed OBJ mesh,
// optionally reduced by spatial-grid decimation.
//
// # Quick start
//
//	scanner, err := meshgo.New("./scan-data",
//	    meshgo.WithOutputDir("./exports"),
//	    meshgo.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	scanner.Start()
//	// From the sensor callback, synchronously:
//	scanner.HandleAnchor(meshgo.AnchorEvent{
//	    Kind:      meshgo.AnchorAdded,
//	    ID:        anchorID,
//	    Geometry:  descriptor, // implements geometry.Source
//	    Transform: pose,
//	})
//	// ...
//	scanner.Stop()
//
//	result, err := scanner.Export(ctx, "livingroom", decimate.QualityMedium)
//
// # Admission control
//
// Updates for a fragment id arriving faster than the throttle interval,
// or while a write for that id is still queued, are silently skipped to
// bound write-queue and allocation pressure; the latest skipped
// revision is parked and flushed when capture stops, so the final
// geometry of every fragment is durable.
//
// # Concurrency
//
// The sensor callback never blocks on disk: geometry is copied out of
// sensor-owned buffers synchronously, then written by a background
// queue. Export, preview and stats may run concurrently with capture;
// they synchronize with writers only through the index lock.
package meshgo
