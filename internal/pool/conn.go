package pool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// workTokenCap bounds the CPU work a single DoWork call performs.
const workTokenCap = 1 << 16

var errConnClosed = errors.New("connection closed")

// Conn is the reference pooled resource: a dummy connection that burns CPU,
// yields and sleeps on request.
type Conn struct {
	id        int64
	mu        sync.Mutex
	sink      uint64
	destroyed atomic.Bool
}

// ID returns the connection's pool-local identifier.
func (c *Conn) ID() int64 {
	return c.id
}

// DoWork spins for a number of rounds derived from magnitude.
func (c *Conn) DoWork(blocking bool, magnitude int) error {
	if blocking {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	c.sink = consumeCPU(c.sink, magnitude)
	return nil
}

// DoYield hands the processor to another goroutine.
func (c *Conn) DoYield(blocking bool) error {
	if blocking {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	runtime.Gosched()
	return nil
}

// DoSleep blocks for millis milliseconds.
func (c *Conn) DoSleep(blocking bool, millis int) error {
	if blocking {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	if millis > 0 {
		time.Sleep(time.Duration(millis) * time.Millisecond)
	}
	return nil
}

func (c *Conn) destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return errConnClosed
	}
	return nil
}

// consumeCPU runs an xorshift loop so the compiler cannot drop the work.
func consumeCPU(seed uint64, magnitude int) uint64 {
	if magnitude < 0 {
		magnitude = -magnitude
	}
	rounds := magnitude % workTokenCap
	x := seed | 1
	for i := 0; i < rounds; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	return x
}
