package embedded

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/torosent/poolbench/internal/pool"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/txn"
)

// Service artifact names.
const (
	ServiceNaming      = "naming"
	ServiceTransaction = "transaction"
	ServiceStdio       = "stdio"
	ServiceJCA         = "jca"
)

// Well-known bindings.
const (
	DefaultFactoryName     = "eis/pool"
	DefaultTransactionName = "txn/UserTransaction"
	StdioName              = "service/stdio"
)

// ServiceArtifact deploys one of the built-in supporting services.
type ServiceArtifact struct {
	name            string
	transactionName string
}

// NamingService returns the naming service artifact. It must be deployed first.
func NamingService() *ServiceArtifact { return &ServiceArtifact{name: ServiceNaming} }

// TransactionService returns the transaction manager artifact bound under name.
func TransactionService(name string) *ServiceArtifact {
	if name == "" {
		name = DefaultTransactionName
	}
	return &ServiceArtifact{name: ServiceTransaction, transactionName: name}
}

// StdioService returns the log sink service artifact.
func StdioService() *ServiceArtifact { return &ServiceArtifact{name: ServiceStdio} }

// ConnectorService returns the connector core artifact required by resource adapters.
func ConnectorService() *ServiceArtifact { return &ServiceArtifact{name: ServiceJCA} }

func (s *ServiceArtifact) Name() string { return s.name }

func (s *ServiceArtifact) deploy(env *Environment) error {
	if s.name != ServiceNaming && !env.hasService(ServiceNaming) {
		return fmt.Errorf("%w: %s requires %s", ErrMissingDependency, s.name, ServiceNaming)
	}
	switch s.name {
	case ServiceNaming:
	case ServiceTransaction:
		m := txn.NewManager()
		if err := env.registry.Bind(s.transactionName, m); err != nil {
			return err
		}
		env.txManager = m
	case ServiceStdio:
		if err := env.registry.Bind(StdioName, env.logger); err != nil {
			return err
		}
	case ServiceJCA:
	default:
		return fmt.Errorf("%w: service %q", ErrUnsupportedArtifact, s.name)
	}
	env.services[s.name] = true
	return nil
}

func (s *ServiceArtifact) undeploy(env *Environment) error {
	delete(env.services, s.name)
	switch s.name {
	case ServiceTransaction:
		var errs []error
		if env.txManager != nil {
			if err := env.txManager.Stop(); err != nil {
				errs = append(errs, err)
			}
			env.txManager = nil
		}
		if err := env.registry.Unbind(s.transactionName); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	case ServiceStdio:
		return env.registry.Unbind(StdioName)
	}
	return nil
}

// Descriptor configures a resource adapter archive.
type Descriptor struct {
	JNDIName        string `yaml:"jndi_name"`
	Strategy        string `yaml:"strategy"`
	MinSize         int    `yaml:"min_size"`
	MaxSize         int    `yaml:"max_size"`
	BlockingTimeout string `yaml:"blocking_timeout,omitempty"`
}

func (d Descriptor) poolConfig() (pool.Config, error) {
	strategy, err := pool.ParseStrategy(d.Strategy)
	if err != nil {
		return pool.Config{}, err
	}
	cfg := pool.Config{Strategy: strategy, MinSize: d.MinSize, MaxSize: d.MaxSize}
	if strings.TrimSpace(d.BlockingTimeout) != "" {
		timeout, err := time.ParseDuration(d.BlockingTimeout)
		if err != nil {
			return pool.Config{}, fmt.Errorf("blocking_timeout: %w", err)
		}
		cfg.BlockingTimeout = timeout
	}
	return cfg, nil
}

// ResourceAdapterArchive is a packaged resource adapter: a unique archive
// name plus its YAML descriptor.
type ResourceAdapterArchive struct {
	name       string
	descriptor []byte
}

// NewResourceAdapterArchive assembles an archive from a descriptor.
func NewResourceAdapterArchive(d Descriptor) (*ResourceAdapterArchive, error) {
	if d.JNDIName == "" {
		d.JNDIName = DefaultFactoryName
	}
	raw, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return &ResourceAdapterArchive{
		name:       uuid.NewString() + ".rar",
		descriptor: raw,
	}, nil
}

func (r *ResourceAdapterArchive) Name() string { return r.name }

// Descriptor returns the archive's encoded descriptor.
func (r *ResourceAdapterArchive) Descriptor() []byte {
	return append([]byte(nil), r.descriptor...)
}

func (r *ResourceAdapterArchive) decode() (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(r.descriptor, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	return d, nil
}

func (r *ResourceAdapterArchive) deploy(env *Environment) error {
	if !env.hasService(ServiceJCA) {
		return fmt.Errorf("%w: resource adapter requires %s", ErrMissingDependency, ServiceJCA)
	}
	d, err := r.decode()
	if err != nil {
		return err
	}
	cfg, err := d.poolConfig()
	if err != nil {
		return err
	}
	p, err := pool.New(cfg)
	if err != nil {
		return err
	}
	if err := env.registry.Bind(d.JNDIName, resource.ConnectionFactory(p)); err != nil {
		_ = p.Close()
		return err
	}
	env.pools[r.name] = p
	return nil
}

func (r *ResourceAdapterArchive) undeploy(env *Environment) error {
	var errs []error
	if d, err := r.decode(); err != nil {
		errs = append(errs, err)
	} else if err := env.registry.Unbind(d.JNDIName); err != nil {
		errs = append(errs, err)
	}
	if p, ok := env.pools[r.name]; ok {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(env.pools, r.name)
	}
	return errors.Join(errs...)
}

// Artifacts returns the standard deployment sequence: naming, transaction
// (when transactional), stdio, jca and the resource adapter archive.
func Artifacts(d Descriptor, transactional bool, transactionName string) ([]resource.Artifact, error) {
	rar, err := NewResourceAdapterArchive(d)
	if err != nil {
		return nil, err
	}
	artifacts := []resource.Artifact{NamingService()}
	if transactional {
		artifacts = append(artifacts, TransactionService(transactionName))
	}
	artifacts = append(artifacts, StdioService(), ConnectorService(), rar)
	return artifacts, nil
}
