package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

type stubRunner struct {
	closed bool
}

func (r *stubRunner) Run(context.Context, pipeline.Request) (*pipeline.ExtractionResult, error) {
	return &pipeline.ExtractionResult{Success: true}, nil
}

func (r *stubRunner) Close() error {
	r.closed = true
	return nil
}

func TestRunnerPool_AcquireRelease(t *testing.T) {
	p, err := newRunnerPool(2, func() (Runner, error) { return &stubRunner{}, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, p.size())

	a, err := p.acquire(t.Context())
	require.NoError(t, err)
	b, err := p.acquire(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, p.busy())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = p.acquire(ctx)
	var cerr *pipeline.CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.release(a)
	p.release(b)
	assert.Zero(t, p.busy())

	res, err := p.run(t.Context(), pipeline.Request{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, p.busy())
}

func TestRunnerPool_FactoryErrorClosesBuilt(t *testing.T) {
	var built []*stubRunner
	_, err := newRunnerPool(3, func() (Runner, error) {
		if len(built) == 2 {
			return nil, errors.New("out of engines")
		}
		r := &stubRunner{}
		built = append(built, r)
		return r, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner 2")
	for _, r := range built {
		assert.True(t, r.closed)
	}
}

func TestRunnerPool_Close(t *testing.T) {
	var built []*stubRunner
	p, err := newRunnerPool(2, func() (Runner, error) {
		r := &stubRunner{}
		built = append(built, r)
		return r, nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	for _, r := range built {
		assert.True(t, r.closed)
	}
}
