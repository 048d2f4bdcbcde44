// Package worker holds the per-worker state of a benchmark run: a handle on
// the shared fixture, a naming context, the worker's transaction handle and
// connection factory, and its own random source.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/torosent/poolbench/internal/fixture"
	"github.com/torosent/poolbench/internal/logging"
	"github.com/torosent/poolbench/internal/random"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/workload"
)

// ErrSetup marks a worker that could not be prepared. It is fatal to that
// worker only; a fixture setup failure is additionally matched by
// fixture.ErrSetup.
var ErrSetup = errors.New("worker setup failed")

// SetupError records which worker failed and why.
type SetupError struct {
	Worker int
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{ErrSetup, e.Err}
}

// Options configure Setup.
type Options struct {
	ID       int
	Fixture  *fixture.Fixture
	Rand     *random.Source
	Executor *workload.Executor
	Logger   *slog.Logger
}

// Context is one worker's state. It is owned by a single goroutine.
type Context struct {
	id       int
	handle   *fixture.Handle
	naming   resource.NamingContext
	factory  resource.ConnectionFactory
	tx       resource.Transaction
	rnd      *random.Source
	executor *workload.Executor
	logger   *slog.Logger
}

// Setup acquires the fixture (initializing it on first use), opens a naming
// context and resolves the connection factory and, in transactional mode,
// the worker's transaction. On failure everything acquired so far is
// released before returning.
func Setup(ctx context.Context, opts Options) (_ *Context, err error) {
	fail := func(cause error) error {
		return &SetupError{Worker: opts.ID, Err: cause}
	}
	if opts.Fixture == nil || opts.Executor == nil || opts.Rand == nil {
		return nil, fail(errors.New("fixture, executor and random source are required"))
	}

	handle, err := opts.Fixture.Acquire(ctx)
	if err != nil {
		return nil, fail(err)
	}
	defer func() {
		if err != nil {
			handle.Release()
		}
	}()

	nc, err := handle.Locator().NewContext()
	if err != nil {
		return nil, fail(fmt.Errorf("open naming context: %w", err))
	}
	defer func() {
		if err != nil {
			_ = nc.Close()
		}
	}()

	w := &Context{
		id:       opts.ID,
		handle:   handle,
		naming:   nc,
		rnd:      opts.Rand,
		executor: opts.Executor,
		logger:   logging.OrDiscard(opts.Logger).With(slog.Int("worker", opts.ID)),
	}

	if handle.Transactional() {
		raw, err := nc.Lookup(handle.TransactionName())
		if err != nil {
			return nil, fail(fmt.Errorf("lookup %s: %w", handle.TransactionName(), err))
		}
		src, ok := raw.(resource.TransactionSource)
		if !ok {
			return nil, fail(fmt.Errorf("%s is a %T, not a transaction source", handle.TransactionName(), raw))
		}
		w.tx = src.Transaction()
	}

	raw, err := nc.Lookup(handle.FactoryName())
	if err != nil {
		return nil, fail(fmt.Errorf("lookup %s: %w", handle.FactoryName(), err))
	}
	factory, ok := raw.(resource.ConnectionFactory)
	if !ok {
		return nil, fail(fmt.Errorf("%s is a %T, not a connection factory", handle.FactoryName(), raw))
	}
	w.factory = factory

	w.logger.Debug("worker ready", slog.Bool("transactional", w.tx != nil), slog.Int64("seed", w.rnd.Seed()))
	return w, nil
}

// ID returns the worker's identifier.
func (w *Context) ID() int { return w.id }

// Transactional reports whether iterations run inside a transaction.
func (w *Context) Transactional() bool { return w.tx != nil }

// RunID returns the run identifier of the fixture the worker is bound to.
func (w *Context) RunID() string { return w.handle.RunID() }

// RunIteration executes one workload iteration with the worker's state.
func (w *Context) RunIteration(ctx context.Context) workload.Iteration {
	return w.executor.Run(ctx, workload.Unit{
		Worker:  w.id,
		Factory: w.factory,
		Tx:      w.tx,
		Rand:    w.rnd,
	})
}

// Teardown closes the naming context and releases the fixture. Errors are
// logged and swallowed. Extra calls are no-ops.
func (w *Context) Teardown(ctx context.Context) {
	if w.naming != nil {
		if err := w.naming.Close(); err != nil {
			w.logger.WarnContext(ctx, "closing naming context", slog.Any("error", err))
		}
		w.naming = nil
	}
	if w.handle != nil {
		w.handle.Release()
	}
}
