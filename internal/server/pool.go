package server

import (
	"context"
	"fmt"
	"io"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// runnerPool hands out runners one request at a time. A pipeline processes a
// single document at a time, so concurrency comes from pool size.
type runnerPool struct {
	idle chan Runner
	all  []Runner
}

func newRunnerPool(n int, factory Factory) (*runnerPool, error) {
	p := &runnerPool{idle: make(chan Runner, n)}
	for i := range n {
		r, err := factory()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("server: build runner %d: %w", i, err)
		}
		p.all = append(p.all, r)
		p.idle <- r
	}
	return p, nil
}

// acquire waits for an idle runner or for ctx to end.
func (p *runnerPool) acquire(ctx context.Context) (Runner, error) {
	select {
	case r := <-p.idle:
		poolBusy.Inc()
		return r, nil
	case <-ctx.Done():
		return nil, &pipeline.CancelledError{Stage: pipeline.StateIdle, Err: ctx.Err()}
	}
}

func (p *runnerPool) release(r Runner) {
	poolBusy.Dec()
	p.idle <- r
}

func (p *runnerPool) size() int { return len(p.all) }

func (p *runnerPool) busy() int { return len(p.all) - len(p.idle) }

// run acquires a runner, runs req and releases the runner.
func (p *runnerPool) run(ctx context.Context, req pipeline.Request) (*pipeline.ExtractionResult, error) {
	r, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(r)
	return r.Run(ctx, req)
}

// Close closes every runner that holds resources.
func (p *runnerPool) Close() error {
	var firstErr error
	for _, r := range p.all {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
