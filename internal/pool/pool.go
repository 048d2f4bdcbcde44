// Package pool is the reference connection pool hosted by the embedded
// environment. It offers interchangeable acquisition strategies so their
// contention behavior can be compared under the same workload.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/torosent/poolbench/internal/resource"
)

// ErrClosed is returned when acquiring from a closed pool.
var ErrClosed = errors.New("pool is closed")

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown pool strategy")

// Strategy identifies the idle-connection store used behind the capacity semaphore.
type Strategy string

const (
	// StrategyArrayList keeps connections in a mutex-guarded slice scanned for a free slot.
	StrategyArrayList Strategy = "semaphore-arraylist"
	// StrategyConcurrentQueue keeps idle connections in a buffered channel.
	StrategyConcurrentQueue Strategy = "semaphore-concurrent-queue"
)

var strategyAliases = map[string]Strategy{
	"semaphore-arraylist":        StrategyArrayList,
	"arraylist":                  StrategyArrayList,
	"sal":                        StrategyArrayList,
	"semaphore-concurrent-queue": StrategyConcurrentQueue,
	"concurrent-queue":           StrategyConcurrentQueue,
	"queue":                      StrategyConcurrentQueue,
	"sclq":                       StrategyConcurrentQueue,
}

// Strategies lists the canonical strategy identifiers.
func Strategies() []Strategy {
	return []Strategy{StrategyArrayList, StrategyConcurrentQueue}
}

// ParseStrategy resolves a strategy identifier or one of its aliases.
func ParseStrategy(s string) (Strategy, error) {
	if st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Config sizes a pool.
type Config struct {
	Strategy        Strategy
	MinSize         int           // connections created up front
	MaxSize         int           // hard capacity
	BlockingTimeout time.Duration // max wait for a free connection (0 waits for ctx only)
}

func (c *Config) normalize() {
	if c.MaxSize <= 0 {
		c.MaxSize = 10 // default size
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MinSize > c.MaxSize {
		c.MinSize = c.MaxSize
	}
	if c.Strategy == "" {
		c.Strategy = StrategyArrayList
	}
}

// Stats is a snapshot of pool activity.
type Stats = resource.PoolStats

type store interface {
	take() *Conn
	put(c *Conn)
	drain() []*Conn
}

// Pool leases Conns up to MaxSize concurrently. It implements resource.ConnectionFactory.
type Pool struct {
	cfg    Config
	sem    *semaphore.Weighted
	idle   store
	nextID atomic.Int64
	closed atomic.Bool

	created   atomic.Int64
	acquired  atomic.Int64
	waited    atomic.Int64
	timeouts  atomic.Int64
	inUse     atomic.Int64
	totalWait atomic.Int64
}

// New creates a pool and pre-fills MinSize connections.
func New(cfg Config) (*Pool, error) {
	cfg.normalize()
	p := &Pool{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxSize)),
	}
	switch cfg.Strategy {
	case StrategyArrayList:
		p.idle = &arrayListStore{}
	case StrategyConcurrentQueue:
		p.idle = &queueStore{ch: make(chan *Conn, cfg.MaxSize)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
	for i := 0; i < cfg.MinSize; i++ {
		p.idle.put(p.newConn())
	}
	return p, nil
}

// Strategy reports the pool's strategy.
func (p *Pool) Strategy() Strategy {
	return p.cfg.Strategy
}

// GetConnection leases a connection, blocking while the pool is at capacity.
func (p *Pool) GetConnection(ctx context.Context) (resource.Connection, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if !p.sem.TryAcquire(1) {
		p.waited.Add(1)
		start := time.Now()
		waitCtx := ctx
		if p.cfg.BlockingTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, p.cfg.BlockingTimeout)
			defer cancel()
		}
		err := p.sem.Acquire(waitCtx, 1)
		p.totalWait.Add(int64(time.Since(start)))
		if err != nil {
			p.timeouts.Add(1)
			if ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s", resource.ErrTimeout, p.cfg.BlockingTimeout)
			}
			return nil, err
		}
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return nil, ErrClosed
	}

	c := p.idle.take()
	if c == nil {
		c = p.newConn()
	}
	p.acquired.Add(1)
	p.inUse.Add(1)
	return &lease{pool: p, conn: c}, nil
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		Strategy:  string(p.cfg.Strategy),
		MaxSize:   p.cfg.MaxSize,
		Created:   p.created.Load(),
		Acquired:  p.acquired.Load(),
		Waited:    p.waited.Load(),
		Timeouts:  p.timeouts.Load(),
		InUse:     p.inUse.Load(),
		TotalWait: time.Duration(p.totalWait.Load()),
	}
}

// Close rejects new acquisitions and destroys idle connections. Leased
// connections are destroyed when they are returned.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []string
	for _, c := range p.idle.drain() {
		if err := c.destroy(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (p *Pool) newConn() *Conn {
	p.created.Add(1)
	return &Conn{id: p.nextID.Add(1)}
}

func (p *Pool) release(c *Conn) {
	p.inUse.Add(-1)
	if p.closed.Load() {
		_ = c.destroy()
	} else {
		p.idle.put(c)
	}
	p.sem.Release(1)
}

// lease is the handle returned to callers; closing it twice is an error.
type lease struct {
	pool   *Pool
	conn   *Conn
	closed atomic.Bool
}

func (l *lease) DoWork(blocking bool, magnitude int) error {
	if l.closed.Load() {
		return errConnClosed
	}
	return l.conn.DoWork(blocking, magnitude)
}

func (l *lease) DoYield(blocking bool) error {
	if l.closed.Load() {
		return errConnClosed
	}
	return l.conn.DoYield(blocking)
}

func (l *lease) DoSleep(blocking bool, millis int) error {
	if l.closed.Load() {
		return errConnClosed
	}
	return l.conn.DoSleep(blocking, millis)
}

func (l *lease) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return errConnClosed
	}
	l.pool.release(l.conn)
	return nil
}

// arrayListStore scans a slice under a mutex, like a semaphore-guarded array list.
type arrayListStore struct {
	mu    sync.Mutex
	conns []*Conn
	free  []bool
}

func (s *arrayListStore) take() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ok := range s.free {
		if ok {
			s.free[i] = false
			return s.conns[i]
		}
	}
	return nil
}

func (s *arrayListStore) put(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.conns {
		if existing == c {
			s.free[i] = true
			return
		}
	}
	s.conns = append(s.conns, c)
	s.free = append(s.free, true)
}

func (s *arrayListStore) drain() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Conn
	for i, ok := range s.free {
		if ok {
			out = append(out, s.conns[i])
		}
	}
	s.conns, s.free = nil, nil
	return out
}

// queueStore keeps idle connections in a buffered channel sized to capacity.
type queueStore struct {
	ch chan *Conn
}

func (s *queueStore) take() *Conn {
	select {
	case c := <-s.ch:
		return c
	default:
		return nil
	}
}

func (s *queueStore) put(c *Conn) {
	select {
	case s.ch <- c:
	default:
		// Queue full; capacity is bounded by the semaphore so this only
		// happens after drain.
		_ = c.destroy()
	}
}

func (s *queueStore) drain() []*Conn {
	var out []*Conn
	for {
		select {
		case c := <-s.ch:
			out = append(out, c)
		default:
			return out
		}
	}
}
