// Package enginetest provides deterministic recognition engines for tests.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/docscan/internal/engine"
)

// Fake returns a canned result, optionally after a delay that honours ctx.
type Fake struct {
	EngineName string
	Result     engine.Result
	Err        error
	Delay      time.Duration

	mu        sync.Mutex
	calls     int
	lastInput engine.Input
	lastLangs []string
}

// New returns a fake with a measured result.
func New(name, text string, confidence float64) *Fake {
	return &Fake{
		EngineName: name,
		Result:     engine.Result{Text: text, Confidence: confidence, ConfidenceMeasured: true},
	}
}

// Failing returns a fake that always errors.
func Failing(name string, err error) *Fake {
	return &Fake{EngineName: name, Err: err}
}

func (f *Fake) Name() string { return f.EngineName }

func (f *Fake) Recognize(ctx context.Context, in engine.Input, languages []string) (engine.Result, error) {
	f.mu.Lock()
	f.calls++
	f.lastInput = in
	f.lastLangs = append([]string(nil), languages...)
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	if f.Err != nil {
		return engine.Result{}, f.Err
	}
	return f.Result, nil
}

// Calls reports how many times Recognize ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastInput returns the input of the most recent call.
func (f *Fake) LastInput() engine.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInput
}

// LastLanguages returns the languages of the most recent call.
func (f *Fake) LastLanguages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLangs
}

// Blocking waits until release is closed or ctx ends. Useful for exercising
// single-flight and cancellation.
type Blocking struct {
	Fake
	Started chan struct{}
	Release chan struct{}
	once    sync.Once
}

// NewBlocking returns a blocking fake that answers with text once released.
func NewBlocking(name, text string, confidence float64) *Blocking {
	return &Blocking{
		Fake: Fake{
			EngineName: name,
			Result:     engine.Result{Text: text, Confidence: confidence, ConfidenceMeasured: true},
		},
		Started: make(chan struct{}),
		Release: make(chan struct{}),
	}
}

func (b *Blocking) Recognize(ctx context.Context, in engine.Input, languages []string) (engine.Result, error) {
	b.once.Do(func() { close(b.Started) })
	select {
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	case <-b.Release:
	}
	return b.Fake.Recognize(ctx, in, languages)
}
