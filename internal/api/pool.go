package api

import (
	"context"
	"log/slog"

	"github.com/sesteves/rugged-main/internal/rugged"
	"github.com/sesteves/rugged-main/internal/stream"
)

// Pool holds a fixed set of localization engines. The engine is
// single-threaded by contract (one tile cache per instance), so the pool is
// what provides request concurrency: each request borrows an engine for its
// whole duration.
type Pool struct {
	engines chan *rugged.Rugged
	size    int
	logger  *slog.Logger
}

// NewPool builds size engines with the given factory.
func NewPool(size int, build func() (*rugged.Rugged, error), logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		engines: make(chan *rugged.Rugged, size),
		size:    size,
		logger:  logger,
	}
	for i := 0; i < size; i++ {
		engine, err := build()
		if err != nil {
			return nil, err
		}
		p.engines <- engine
	}
	logger.Info("engine pool ready", "component", "api", "engines", size)
	return p, nil
}

// Size returns the number of engines in the pool.
func (p *Pool) Size() int { return p.size }

// Acquire borrows an engine, blocking until one is free or the context is
// done. The release function must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (*rugged.Rugged, func(), error) {
	select {
	case engine := <-p.engines:
		return engine, func() { p.engines <- engine }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// streamPool adapts Pool to the stream package's interface.
type streamPool struct {
	pool *Pool
}

// Acquire implements stream.Pool.
func (s streamPool) Acquire(ctx context.Context) (stream.Engine, func(), error) {
	return s.pool.Acquire(ctx)
}
