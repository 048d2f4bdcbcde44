// Package txn is a minimal in-process transaction manager used by the
// reference environment. It tracks transaction state per handle and keeps
// global counters so benchmarks can check that no transaction is left open.
package txn

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/torosent/poolbench/internal/resource"
)

var (
	// ErrNested is returned by Begin on a handle that already has an active transaction.
	ErrNested = fmt.Errorf("%w: nested transactions are not supported", resource.ErrTransaction)
	// ErrNoTransaction is returned by Commit or Rollback without an active transaction.
	ErrNoTransaction = fmt.Errorf("%w: no active transaction", resource.ErrTransaction)
	// ErrManagerStopped is returned once the manager has been stopped.
	ErrManagerStopped = fmt.Errorf("%w: transaction manager stopped", resource.ErrTransaction)
)

// Status of a transaction handle.
type Status int32

const (
	StatusNone Status = iota
	StatusActive
)

// Counters is a snapshot of manager activity.
type Counters struct {
	Begun      int64
	Committed  int64
	RolledBack int64
	Active     int64
}

// Manager hands out transaction handles. It implements resource.TransactionSource.
type Manager struct {
	begun      atomic.Int64
	committed  atomic.Int64
	rolledBack atomic.Int64
	active     atomic.Int64
	stopped    atomic.Bool
}

// NewManager creates a running manager.
func NewManager() *Manager {
	return &Manager{}
}

// Transaction returns a new handle bound to this manager.
func (m *Manager) Transaction() resource.Transaction {
	return &Transaction{manager: m}
}

// Counters returns a snapshot of the manager's counters.
func (m *Manager) Counters() Counters {
	return Counters{
		Begun:      m.begun.Load(),
		Committed:  m.committed.Load(),
		RolledBack: m.rolledBack.Load(),
		Active:     m.active.Load(),
	}
}

// Stop rejects further Begin calls. It reports an error when transactions are still active.
func (m *Manager) Stop() error {
	m.stopped.Store(true)
	if n := m.active.Load(); n > 0 {
		return fmt.Errorf("%d transactions still active", n)
	}
	return nil
}

// Transaction is a single worker's handle.
type Transaction struct {
	manager *Manager
	status  atomic.Int32
}

// Status reports the handle's state.
func (t *Transaction) Status() Status {
	return Status(t.status.Load())
}

func (t *Transaction) Begin() error {
	if t.manager.stopped.Load() {
		return ErrManagerStopped
	}
	if !t.status.CompareAndSwap(int32(StatusNone), int32(StatusActive)) {
		return ErrNested
	}
	t.manager.begun.Add(1)
	t.manager.active.Add(1)
	return nil
}

func (t *Transaction) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	t.manager.committed.Add(1)
	return nil
}

func (t *Transaction) Rollback() error {
	if err := t.finish(); err != nil {
		return err
	}
	t.manager.rolledBack.Add(1)
	return nil
}

func (t *Transaction) finish() error {
	if !t.status.CompareAndSwap(int32(StatusActive), int32(StatusNone)) {
		return ErrNoTransaction
	}
	t.manager.active.Add(-1)
	return nil
}

// IsTransactionError reports whether err came from a transaction handle.
func IsTransactionError(err error) bool {
	return errors.Is(err, resource.ErrTransaction)
}
