package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.New("sandbox pool is closed")

// Pool manages a bounded set of reusable runtimes
type Pool struct {
	config   Config
	runtimes chan *Runtime
	size     int
	mu       sync.RWMutex
	closed   bool
}

// NewPool creates a pool of config.PoolSize runtimes
func NewPool(config Config) (*Pool, error) {
	size := config.PoolSize
	if size <= 0 {
		size = 4
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	pool := &Pool{
		config:   config,
		runtimes: make(chan *Runtime, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		rt, err := NewRuntime(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.runtimes <- rt
	}

	return pool, nil
}

// Acquire borrows a runtime, waiting up to the configured acquire timeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets a runtime and returns it to the pool
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		if fresh, ferr := NewRuntime(p.config); ferr == nil {
			p.runtimes <- fresh
		}
		return err
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Execute runs script on a borrowed runtime
func (p *Pool) Execute(ctx context.Context, script string, env Env) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(ctx, script, env)
}

// Close closes the pool and its idle runtimes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.runtimes)
	for rt := range p.runtimes {
		rt.Close()
	}
	return nil
}

// PoolStats describes pool occupancy
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.runtimes),
		InUse:     p.size - len(p.runtimes),
		Closed:    p.closed,
	}
}
