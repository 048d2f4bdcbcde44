package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/workload"
)

// ProgressReporter displays real-time progress of the current phase iteration.
type ProgressReporter struct {
	mu        sync.Mutex
	collector *metrics.Collector
	label     string
	start     time.Time

	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: metrics.NewCollector(),
		start:     time.Now(),
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

// OnPhase resets the counters when a phase iteration starts. It matches
// coordinator.Options.OnPhase.
func (p *ProgressReporter) OnPhase(ev coordinator.Event) {
	if ev.Done {
		return
	}
	p.mu.Lock()
	p.collector = metrics.NewCollector()
	p.label = ev.String()
	p.start = time.Now()
	p.mu.Unlock()
}

// Record counts one iteration. It matches coordinator.Options.OnIteration.
func (p *ProgressReporter) Record(it workload.Iteration) {
	p.mu.Lock()
	c := p.collector
	p.mu.Unlock()
	c.RecordIteration(it)
}

func (p *ProgressReporter) line() string {
	p.mu.Lock()
	c, label, start := p.collector, p.label, p.start
	p.mu.Unlock()

	stats := c.Stats(time.Since(start))
	line := fmt.Sprintf("\rIterations: %d | Committed: %d | Rolled back: %d | Errored: %d | Ops/s: %.1f",
		stats.Total, stats.Committed, stats.RolledBack, stats.Errored, stats.OpsPerSec)
	if label != "" {
		line = fmt.Sprintf("\r[%s] %s", label, line[1:])
	}
	return line
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}
