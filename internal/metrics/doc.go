// Package metrics aggregates workload iterations into throughput and latency statistics.
//
// # Collector
//
// The central [Collector] type folds every [workload.Iteration] into outcome
// counters and an HDR latency histogram:
//
//	collector := metrics.NewCollector()
//	collector.RecordIteration(it)
//	stats := collector.Stats(elapsed)
//
// Collectors from separate measurement iterations can be combined with
// [Collector.Merge] to report the run as a whole.
//
// # Statistics
//
// The [Stats] type provides:
//   - Iteration counts by outcome (committed, rolled back, errored)
//   - Latency min, mean, max and P50/P90/P99/P99.9
//   - Operations per second over the supplied elapsed time
//   - Failure buckets keyed by the workload state the iteration stopped in
//     and a short cause label (see [FailureCause])
//
// # Thread Safety
//
// A Collector is guarded by a single mutex. RecordIteration is safe to call
// from many workers.
package metrics
