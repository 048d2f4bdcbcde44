// Package embedded is an in-process deployment environment: it deploys the
// naming, transaction, stdio and connector services plus a resource adapter
// archive that hosts a reference connection pool, and exposes them through
// a service locator.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/torosent/poolbench/internal/naming"
	"github.com/torosent/poolbench/internal/pool"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/txn"
)

var (
	// ErrNotDeployed is returned when undeploying an artifact that is not deployed.
	ErrNotDeployed = errors.New("artifact not deployed")
	// ErrAlreadyDeployed is returned when deploying an artifact name twice.
	ErrAlreadyDeployed = errors.New("artifact already deployed")
	// ErrMissingDependency is returned when an artifact's prerequisite service is absent.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrUnsupportedArtifact is returned for artifact types this environment cannot deploy.
	ErrUnsupportedArtifact = errors.New("unsupported artifact")
	// ErrShutdown is returned once the environment has been shut down.
	ErrShutdown = errors.New("environment shut down")
)

// deployable is implemented by every artifact this environment understands.
type deployable interface {
	resource.Artifact
	deploy(env *Environment) error
	undeploy(env *Environment) error
}

// Options configure an Environment.
type Options struct {
	Logger *slog.Logger
}

// Environment implements resource.Environment.
type Environment struct {
	logger   *slog.Logger
	registry *naming.Registry

	mu        sync.Mutex
	deployed  []string
	services  map[string]bool
	pools     map[string]*pool.Pool
	txManager *txn.Manager
	shutdown  bool
}

// New starts an empty environment.
func New(opts Options) *Environment {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Environment{
		logger:   logger,
		registry: naming.NewRegistry(),
		services: make(map[string]bool),
		pools:    make(map[string]*pool.Pool),
	}
}

// Deploy registers the artifact's services.
func (e *Environment) Deploy(ctx context.Context, a resource.Artifact) error {
	d, ok := a.(deployable)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedArtifact, a)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return ErrShutdown
	}
	for _, name := range e.deployed {
		if name == d.Name() {
			return fmt.Errorf("%w: %s", ErrAlreadyDeployed, name)
		}
	}
	if err := d.deploy(e); err != nil {
		return fmt.Errorf("deploy %s: %w", d.Name(), err)
	}
	e.deployed = append(e.deployed, d.Name())
	e.logger.DebugContext(ctx, "artifact deployed", slog.String("artifact", d.Name()))
	return nil
}

// Undeploy unregisters the artifact's services.
func (e *Environment) Undeploy(ctx context.Context, a resource.Artifact) error {
	d, ok := a.(deployable)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedArtifact, a)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := -1
	for i, name := range e.deployed {
		if name == d.Name() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotDeployed, d.Name())
	}
	e.deployed = append(e.deployed[:idx], e.deployed[idx+1:]...)
	if err := d.undeploy(e); err != nil {
		return fmt.Errorf("undeploy %s: %w", d.Name(), err)
	}
	e.logger.DebugContext(ctx, "artifact undeployed", slog.String("artifact", d.Name()))
	return nil
}

// Deployed returns artifact names in deployment order.
func (e *Environment) Deployed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deployed...)
}

// Locator returns the environment's service locator.
func (e *Environment) Locator() resource.Locator {
	return locator{env: e}
}

// Registry exposes the naming registry backing the locator.
func (e *Environment) Registry() *naming.Registry {
	return e.registry
}

// TransactionCounters reports the transaction manager's counters, if deployed.
func (e *Environment) TransactionCounters() (txn.Counters, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.txManager == nil {
		return txn.Counters{}, false
	}
	return e.txManager.Counters(), true
}

// PoolStats reports the stats of every deployed pool.
func (e *Environment) PoolStats() []pool.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := make([]pool.Stats, 0, len(e.pools))
	for _, p := range e.pools {
		stats = append(stats, p.Stats())
	}
	return stats
}

// Shutdown stops the environment. Artifacts still deployed are an error:
// callers are expected to undeploy everything first.
func (e *Environment) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return nil
	}
	e.shutdown = true
	if len(e.deployed) > 0 {
		e.logger.WarnContext(ctx, "shutdown with deployed artifacts", slog.Any("artifacts", e.deployed))
		return fmt.Errorf("shutdown with %d artifacts still deployed", len(e.deployed))
	}
	return nil
}

func (e *Environment) hasService(name string) bool {
	return e.services[name]
}

// locator refuses contexts until the naming service is deployed.
type locator struct {
	env *Environment
}

func (l locator) NewContext() (resource.NamingContext, error) {
	l.env.mu.Lock()
	up := l.env.services[ServiceNaming] && !l.env.shutdown
	l.env.mu.Unlock()
	if !up {
		return nil, fmt.Errorf("%w: naming service", ErrMissingDependency)
	}
	return l.env.registry.NewContext()
}
