// Package workload implements the transactional unit of work each worker
// repeats: begin, acquire, simulate work, release, commit or roll back.
//
// The executor never returns an error. Every invocation yields an
// [Iteration] whose [Outcome] tells the measurement layer what happened.
package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/poolbench/internal/logging"
	"github.com/torosent/poolbench/internal/random"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/tracing"
)

// Defaults for the random draws of work phase 2.
const (
	DefaultSleepBound    = 10        // ms; uniform draw averages 4.5ms
	DefaultPostWorkBound = 1_000_000 // magnitude of the post-I/O CPU work
)

var (
	// ErrWorkload wraps panics raised while running an iteration.
	ErrWorkload = errors.New("workload failed")
	// ErrRollback wraps failures of the rollback attempt.
	ErrRollback = errors.New("rollback failed")
)

// Outcome is the tagged result of one iteration.
type Outcome int

const (
	Committed Outcome = iota
	RolledBack
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// State is a step of the iteration state machine.
type State int

const (
	StateIdle State = iota
	StateTxStarted
	StateResourceAcquired
	StateWorkPhase1
	StateYieldPhase
	StateWorkPhase2
	StateResourceReleased
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTxStarted:
		return "tx-started"
	case StateResourceAcquired:
		return "resource-acquired"
	case StateWorkPhase1:
		return "work-phase-1"
	case StateYieldPhase:
		return "yield-phase"
	case StateWorkPhase2:
		return "work-phase-2"
	case StateResourceReleased:
		return "resource-released"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Params are the random draws that shape one iteration.
type Params struct {
	WorkMagnitude     int
	SleepMillis       int
	PostWorkMagnitude int
}

// Iteration is the record of one executor invocation.
type Iteration struct {
	Outcome Outcome
	Elapsed time.Duration
	Params  Params
	// FailedIn is the last state reached before a failure.
	FailedIn    State
	Err         error
	RollbackErr error
}

// Unit is the per-worker state an iteration runs against. Tx is nil in
// non-transactional mode.
type Unit struct {
	Worker  int
	Factory resource.ConnectionFactory
	Tx      resource.Transaction
	Rand    *random.Source
}

// Options configure an Executor.
type Options struct {
	SleepBound    int
	PostWorkBound int
	Tracer        trace.Tracer
	Logger        *slog.Logger
	// OnTransition, when set, observes every state change.
	OnTransition func(worker int, s State)
}

// Executor runs iterations. It is stateless between calls and safe for
// concurrent use by many workers.
type Executor struct {
	sleepBound    int
	postWorkBound int
	tracer        trace.Tracer
	logger        *slog.Logger
	onTransition  func(int, State)
}

// NewExecutor creates an Executor, applying defaults for zero bounds.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		sleepBound:    opts.SleepBound,
		postWorkBound: opts.PostWorkBound,
		tracer:        opts.Tracer,
		logger:        logging.OrDiscard(opts.Logger),
		onTransition:  opts.OnTransition,
	}
	if e.sleepBound <= 0 {
		e.sleepBound = DefaultSleepBound
	}
	if e.postWorkBound <= 0 {
		e.postWorkBound = DefaultPostWorkBound
	}
	if e.tracer == nil {
		e.tracer = tracing.NoopTracer()
	}
	return e
}

// Run executes one iteration. It always returns. With a transaction handle
// present, every failure from Begin onwards is followed by a rollback
// attempt, and commit and rollback never both succeed for one iteration.
func (e *Executor) Run(ctx context.Context, u Unit) Iteration {
	start := time.Now()
	ctx, span := tracing.StartIterationSpan(ctx, e.tracer, u.Worker)

	it := Iteration{Params: Params{
		WorkMagnitude:     u.Rand.Int(),
		SleepMillis:       u.Rand.Intn(e.sleepBound),
		PostWorkMagnitude: u.Rand.Intn(e.postWorkBound),
	}}

	state := StateIdle
	move := func(s State) {
		state = s
		tracing.AddPhase(span, s.String())
		if e.onTransition != nil {
			e.onTransition(u.Worker, s)
		}
	}

	var (
		inTx bool
		conn resource.Connection
	)
	err := guard(func() error {
		if u.Tx != nil {
			inTx = true
			if err := u.Tx.Begin(); err != nil {
				return fmt.Errorf("begin: %w", err)
			}
			move(StateTxStarted)
		}

		c, err := u.Factory.GetConnection(ctx)
		if err != nil {
			return fmt.Errorf("get connection: %w", err)
		}
		conn = c
		move(StateResourceAcquired)

		move(StateWorkPhase1)
		if err := conn.DoWork(false, it.Params.WorkMagnitude); err != nil {
			return fmt.Errorf("work: %w", err)
		}

		move(StateYieldPhase)
		if err := conn.DoYield(false); err != nil {
			return fmt.Errorf("yield: %w", err)
		}

		move(StateWorkPhase2)
		if err := conn.DoSleep(true, it.Params.SleepMillis); err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		if err := conn.DoWork(true, it.Params.PostWorkMagnitude); err != nil {
			return fmt.Errorf("post work: %w", err)
		}

		c, conn = conn, nil
		if err := c.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
		move(StateResourceReleased)

		if inTx {
			// Whatever Commit returns, the transaction is no longer ours to
			// roll back unless Commit reported failure.
			if err := u.Tx.Commit(); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			inTx = false
		}
		return nil
	})

	if err == nil {
		move(StateCommitted)
		it.Outcome = Committed
	} else {
		it.Err = err
		it.FailedIn = state
		if conn != nil {
			if cerr := guard(conn.Close); cerr != nil {
				e.logger.DebugContext(ctx, "closing connection after failure", slog.Int("worker", u.Worker), slog.Any("error", cerr))
			}
		}
		if inTx {
			if rerr := guard(u.Tx.Rollback); rerr != nil {
				it.RollbackErr = fmt.Errorf("%w: %w", ErrRollback, rerr)
				e.logger.WarnContext(ctx, "rollback failed",
					slog.Int("worker", u.Worker),
					slog.Any("cause", err),
					slog.Any("error", rerr),
				)
			}
			move(StateRolledBack)
			it.Outcome = RolledBack
		} else {
			it.Outcome = Errored
		}
	}
	move(StateIdle)

	it.Elapsed = time.Since(start)
	tracing.EndSpan(span, it.Err, tracing.AttrOutcome.String(it.Outcome.String()))
	return it
}

// guard runs fn, converting a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrWorkload, r)
		}
	}()
	return fn()
}
