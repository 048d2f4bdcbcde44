// Package resource declares the narrow interfaces through which the harness
// consumes a pooled, transactional resource and the environment that hosts it.
//
// Nothing in this package implements a pool or a transaction manager. The
// harness packages (fixture, worker, workload, coordinator) depend only on
// these interfaces, so any implementation can be benchmarked: the in-process
// reference environment in internal/embedded, or a test fake.
package resource

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a NamingContext when a name is not bound.
	ErrNotFound = errors.New("name not found")
	// ErrPoolExhausted is returned by a ConnectionFactory when no connection can be handed out.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrTimeout is returned by a ConnectionFactory when acquisition exceeded its blocking timeout.
	ErrTimeout = errors.New("connection acquisition timed out")
	// ErrTransaction is wrapped by every Transaction failure.
	ErrTransaction = errors.New("transaction error")
)

// Artifact is an opaque, named deployment bundle. Concrete artifact types
// are understood by the Environment that deploys them.
type Artifact interface {
	Name() string
}

// Deployer registers and unregisters artifacts. Undeploy must be issued in
// the reverse order of Deploy.
type Deployer interface {
	Deploy(ctx context.Context, a Artifact) error
	Undeploy(ctx context.Context, a Artifact) error
}

// Environment hosts deployed artifacts and exposes their services through a Locator.
type Environment interface {
	Deployer
	Locator() Locator
	Shutdown(ctx context.Context) error
}

// Locator hands out naming contexts.
type Locator interface {
	NewContext() (NamingContext, error)
}

// NamingContext resolves bound names. It must be closed by its owner.
type NamingContext interface {
	Lookup(name string) (any, error)
	Close() error
}

// ConnectionFactory leases connections from a pool. GetConnection may block
// under contention and fails with ErrPoolExhausted or ErrTimeout.
type ConnectionFactory interface {
	GetConnection(ctx context.Context) (Connection, error)
}

// Connection is one leased unit of the pooled resource.
//
// The blocking flag selects whether the operation holds the connection's
// exclusive lock while it runs.
type Connection interface {
	// DoWork performs CPU-bound simulated work proportional to magnitude.
	DoWork(blocking bool, magnitude int) error
	// DoYield signals a voluntary scheduling yield. It may be a no-op.
	DoYield(blocking bool) error
	// DoSleep blocks for millis milliseconds to model an I/O wait.
	DoSleep(blocking bool, millis int) error
	// Close returns the connection to its pool.
	Close() error
}

// Transaction is a worker-owned transaction handle.
type Transaction interface {
	Begin() error
	Commit() error
	Rollback() error
}

// TransactionSource is what an environment binds under its transaction
// name. Each worker obtains its own Transaction from it.
type TransactionSource interface {
	Transaction() Transaction
}

// PoolStats is a snapshot of one pool's activity.
type PoolStats struct {
	Strategy  string        `json:"strategy" yaml:"strategy"`
	MaxSize   int           `json:"max_size" yaml:"max_size"`
	Created   int64         `json:"created" yaml:"created"`
	Acquired  int64         `json:"acquired" yaml:"acquired"`
	Waited    int64         `json:"waited" yaml:"waited"`
	Timeouts  int64         `json:"timeouts" yaml:"timeouts"`
	InUse     int64         `json:"in_use" yaml:"in_use"`
	TotalWait time.Duration `json:"total_wait" yaml:"total_wait"`
}

// PoolStatsReporter is optionally implemented by an Environment that can
// report on the pools it hosts.
type PoolStatsReporter interface {
	PoolStats() []PoolStats
}
