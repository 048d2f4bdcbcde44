// Package fixture provides the shared environment a benchmark run depends on.
//
// A [Fixture] is created explicitly and passed to every worker. The first
// [Fixture.Acquire] deploys the environment's artifacts in order and waits
// until the connection factory (and, in transactional mode, the transaction
// source) can be looked up. Later callers block behind that single
// initializer and then share the result. Each worker holds a [Handle] and
// releases it on teardown; [Fixture.Close] waits for every handle, then
// undeploys in exact reverse order, continuing past individual failures.
//
// Errors:
//   - [ErrSetup] ([*SetupError]) is fatal to the run and sticky.
//   - [ErrTeardown] ([*TeardownError]) is reported but never blocks shutdown.
//
// At most one fixture may be ready per process; setting LockFile extends
// that guarantee across processes on one host.
package fixture
