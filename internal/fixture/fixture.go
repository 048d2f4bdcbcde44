package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/poolbench/internal/logging"
	"github.com/torosent/poolbench/internal/resource"
)

const defaultReadyTimeout = 10 * time.Second

// State is the fixture lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// readyFixture enforces at most one ready fixture per process.
var readyFixture atomic.Bool

// Options configure a Fixture.
type Options struct {
	// NewEnvironment starts the environment the artifacts are deployed into.
	NewEnvironment func(ctx context.Context) (resource.Environment, error)
	// Artifacts returns the artifacts to deploy, in deployment order.
	Artifacts func() ([]resource.Artifact, error)
	// FactoryName is the locator name of the connection factory.
	FactoryName string
	// TransactionName is the locator name of the transaction source. Only
	// consulted when Transactional is set.
	TransactionName string
	Transactional   bool
	// ReadyTimeout bounds the wait for the factory (and transaction source)
	// to become resolvable after deployment.
	ReadyTimeout time.Duration
	// LockFile, when set, is held for the lifetime of the ready fixture so
	// concurrent benchmark processes on one host do not overlap.
	LockFile string
	Logger   *slog.Logger
}

// Fixture is the shared, reference-counted environment all workers of one
// run depend on. The first Acquire deploys it; Close tears it down once
// every handle has been released.
type Fixture struct {
	opts   Options
	logger *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	cond     *sync.Cond
	refs     int
	closing  bool
	runID    string
	env      resource.Environment
	deployed []resource.Artifact
	setupErr error
	lock     *flock.Flock

	setups    atomic.Int64
	teardowns atomic.Int64
}

// New creates an uninitialized fixture. Nothing is deployed until Acquire.
func New(opts Options) *Fixture {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	f := &Fixture{opts: opts, logger: logging.OrDiscard(opts.Logger)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// State reports the current lifecycle state.
func (f *Fixture) State() State {
	return State(f.state.Load())
}

// RunID returns the identifier assigned at setup, or "" before setup.
func (f *Fixture) RunID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runID
}

// Setups reports how many times setup ran to completion.
func (f *Fixture) Setups() int64 { return f.setups.Load() }

// Teardowns reports how many times teardown ran.
func (f *Fixture) Teardowns() int64 { return f.teardowns.Load() }

// Refs reports the number of outstanding handles.
func (f *Fixture) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}

// Acquire returns a handle to the ready environment, deploying it on first
// use. Concurrent first callers block behind a single initializer. A setup
// failure is sticky: every later Acquire returns the same *SetupError.
func (f *Fixture) Acquire(ctx context.Context) (*Handle, error) {
	if f.State() == StateTornDown {
		return nil, ErrClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closing || f.State() == StateTornDown {
		return nil, ErrClosed
	}
	if f.State() != StateReady {
		if f.setupErr != nil {
			return nil, f.setupErr
		}
		if err := f.setup(ctx); err != nil {
			f.setupErr = err
			return nil, err
		}
	}
	f.refs++
	return &Handle{fixture: f}, nil
}

// Close waits until every handle has been released, then tears the
// environment down. When ctx ends first, teardown proceeds anyway and the
// outstanding handles are logged. Close is idempotent.
func (f *Fixture) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.State() == StateTornDown {
		return nil
	}
	f.closing = true

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()
	for f.refs > 0 && ctx.Err() == nil {
		f.cond.Wait()
	}
	if f.refs > 0 {
		f.logger.WarnContext(ctx, "tearing down fixture with outstanding handles",
			slog.String("run_id", f.runID), slog.Int("refs", f.refs))
	}

	if f.State() != StateReady {
		f.state.Store(int32(StateTornDown))
		return nil
	}
	err := f.teardown(ctx)
	f.state.Store(int32(StateTornDown))
	return err
}

func (f *Fixture) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs > 0 {
		f.refs--
	}
	if f.refs == 0 {
		f.cond.Broadcast()
	}
}

// setup runs with f.mu held.
func (f *Fixture) setup(ctx context.Context) (err error) {
	runID := ulid.Make().String()
	fail := func(step string, cause error) error {
		return &SetupError{RunID: runID, Step: step, Err: cause}
	}

	if !readyFixture.CompareAndSwap(false, true) {
		return fail("claim", ErrFixtureBusy)
	}
	defer func() {
		if err != nil {
			readyFixture.Store(false)
		}
	}()

	if f.opts.LockFile != "" {
		lock := flock.New(f.opts.LockFile)
		locked, lockErr := lock.TryLock()
		if lockErr != nil {
			return fail("lock", lockErr)
		}
		if !locked {
			return fail("lock", fmt.Errorf("%w: %s held by another process", ErrFixtureBusy, f.opts.LockFile))
		}
		f.lock = lock
		defer func() {
			if err != nil {
				_ = lock.Unlock()
				f.lock = nil
			}
		}()
	}

	if f.opts.NewEnvironment == nil || f.opts.Artifacts == nil {
		return fail("configure", errors.New("environment and artifacts are required"))
	}
	env, envErr := f.opts.NewEnvironment(ctx)
	if envErr != nil {
		return fail("start environment", envErr)
	}
	artifacts, artErr := f.opts.Artifacts()
	if artErr != nil {
		_ = env.Shutdown(ctx)
		return fail("assemble artifacts", artErr)
	}

	f.logger.InfoContext(ctx, "deploying fixture", slog.String("run_id", runID), slog.Int("artifacts", len(artifacts)))
	deployed := make([]resource.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if depErr := env.Deploy(ctx, a); depErr != nil {
			f.undeployAll(ctx, env, deployed, runID)
			_ = env.Shutdown(ctx)
			return fail("deploy "+a.Name(), depErr)
		}
		deployed = append(deployed, a)
	}

	if waitErr := f.waitReady(ctx, env); waitErr != nil {
		f.undeployAll(ctx, env, deployed, runID)
		_ = env.Shutdown(ctx)
		return fail("await services", waitErr)
	}

	f.runID = runID
	f.env = env
	f.deployed = deployed
	f.setups.Add(1)
	f.state.Store(int32(StateReady))
	f.logger.InfoContext(ctx, "fixture ready", slog.String("run_id", runID))
	return nil
}

// waitReady polls the locator until the factory, and the transaction source
// when transactional, resolve.
func (f *Fixture) waitReady(ctx context.Context, env resource.Environment) error {
	names := []string{f.opts.FactoryName}
	if f.opts.Transactional {
		names = append(names, f.opts.TransactionName)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		nc, err := env.Locator().NewContext()
		if err != nil {
			return struct{}{}, err
		}
		defer nc.Close()
		for _, name := range names {
			if _, err := nc.Lookup(name); err != nil {
				if errors.Is(err, resource.ErrNotFound) {
					return struct{}{}, err
				}
				return struct{}{}, backoff.Permanent(err)
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(f.opts.ReadyTimeout))
	return err
}

// teardown runs with f.mu held. Every undeploy is attempted; failures are
// logged and collected.
func (f *Fixture) teardown(ctx context.Context) error {
	errs := f.undeployAll(ctx, f.env, f.deployed, f.runID)
	if err := f.env.Shutdown(ctx); err != nil {
		f.logger.WarnContext(ctx, "environment shutdown failed", slog.String("run_id", f.runID), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
	}
	if f.lock != nil {
		if err := f.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock %s: %w", f.opts.LockFile, err))
		}
		f.lock = nil
	}
	readyFixture.Store(false)
	f.deployed = nil
	f.teardowns.Add(1)
	f.logger.InfoContext(ctx, "fixture torn down", slog.String("run_id", f.runID), slog.Int("errors", len(errs)))

	if len(errs) > 0 {
		return &TeardownError{RunID: f.runID, Errs: errs}
	}
	return nil
}

func (f *Fixture) undeployAll(ctx context.Context, env resource.Environment, deployed []resource.Artifact, runID string) []error {
	var errs []error
	for i := len(deployed) - 1; i >= 0; i-- {
		a := deployed[i]
		if err := env.Undeploy(ctx, a); err != nil {
			f.logger.WarnContext(ctx, "undeploy failed",
				slog.String("run_id", runID), slog.String("artifact", a.Name()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("undeploy %s: %w", a.Name(), err))
		}
	}
	return errs
}

// Handle is a worker's reference to a ready fixture.
type Handle struct {
	fixture  *Fixture
	released atomic.Bool
}

// Locator returns the environment's service locator.
func (h *Handle) Locator() resource.Locator { return h.fixture.env.Locator() }

// Environment returns the deployed environment.
func (h *Handle) Environment() resource.Environment { return h.fixture.env }

// RunID returns the fixture's run identifier.
func (h *Handle) RunID() string { return h.fixture.runID }

// Transactional reports whether workers should run with transactions.
func (h *Handle) Transactional() bool { return h.fixture.opts.Transactional }

// FactoryName returns the locator name of the connection factory.
func (h *Handle) FactoryName() string { return h.fixture.opts.FactoryName }

// TransactionName returns the locator name of the transaction source.
func (h *Handle) TransactionName() string { return h.fixture.opts.TransactionName }

// Release drops the handle's reference. Extra calls are ignored.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.fixture.release()
	}
}
