// Package runner provides the concurrent execution loop for one benchmark slice.
//
// A [Runner] starts one goroutine per [Worker] and has each of them run
// iterations back to back until:
//   - the slice duration elapses,
//   - every worker has run InvocationsPerWorker iterations, or
//   - the parent context is cancelled.
//
// Stopping is only observed between iterations. Each iteration runs under
// a context detached from cancellation so a begun transaction always ends
// in a commit or a rollback.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Workers:              workers,
//		Duration:             10 * time.Second,
//		InvocationsPerWorker: 100,
//		Collector:            collector,
//	})
//	result := r.Run(ctx)
//
// # Rate Limiting & Arrival Models
//
// When RatePerSecond is set, a single scheduler paces iterations across all
// workers:
//   - [ArrivalModelUniform]: iterations at fixed intervals (golang.org/x/time/rate)
//   - [ArrivalModelPoisson]: exponential inter-arrival times
//
// # Failures
//
// Failed iterations are never retried. They are counted by outcome and,
// when a [FailureLogger] is set, logged.
package runner
