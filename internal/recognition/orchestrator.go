// Package recognition runs the local engine and, when its confidence is too
// low, a fallback engine, keeping whichever result is better.
package recognition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/docscan/internal/engine"
)

// DefaultThreshold is the local confidence below which the fallback is tried.
const DefaultThreshold = 50.0

// DefaultTimeout bounds a single fallback call.
const DefaultTimeout = 30 * time.Second

// Source identifies which engine produced an outcome.
type Source int

const (
	Local Source = iota
	Fallback
)

func (s Source) String() string {
	if s == Fallback {
		return "fallback"
	}
	return "local"
}

// Policy controls when and how the fallback engine is consulted.
type Policy struct {
	Enabled   bool
	Threshold float64
	// Timeout bounds the fallback call; zero means only the caller's context applies.
	Timeout time.Duration
	// SendEnhanced sends the preprocessed image instead of the original bytes.
	SendEnhanced bool
}

// DefaultPolicy enables the fallback at the default threshold.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, Threshold: DefaultThreshold, Timeout: DefaultTimeout}
}

// Request is one recognition call.
type Request struct {
	// Image is what the local engine sees, normally the enhanced buffer.
	Image engine.Input
	// Raw is the original encoded image, sent to the fallback by default.
	Raw       []byte
	Languages []string
	Policy    Policy
	// OnFallback, if set, runs right before the fallback engine is invoked.
	OnFallback func()
}

// Outcome is the chosen recognition result.
type Outcome struct {
	Text               string
	Confidence         float64
	ConfidenceMeasured bool
	Engine             string
	Source             Source

	// FallbackAttempted is true when the fallback engine was called at all.
	FallbackAttempted bool
	// FallbackErr is set when the attempt failed; the outcome is then the local one.
	FallbackErr *FallbackError
}

// FallbackUsed reports whether the fallback result was chosen.
func (o Outcome) FallbackUsed() bool { return o.Source == Fallback }

// Orchestrator owns the two engines. The fallback may be nil.
type Orchestrator struct {
	local    engine.Engine
	fallback engine.Engine
	logger   *slog.Logger
}

// New builds an orchestrator. local is required.
func New(local, fallback engine.Engine) *Orchestrator {
	return &Orchestrator{local: local, fallback: fallback, logger: slog.Default()}
}

// WithLogger replaces the logger used for fallback diagnostics.
func (o *Orchestrator) WithLogger(l *slog.Logger) *Orchestrator {
	if l != nil {
		o.logger = l
	}
	return o
}

// HasFallback reports whether a fallback engine is configured.
func (o *Orchestrator) HasFallback() bool { return o.fallback != nil }

// Recognize runs the local engine and, if the policy allows and its
// confidence is below the threshold, the fallback engine. The fallback
// replaces the local result only when it returns non-empty text with a
// strictly higher confidence. Fallback failures never surface as errors.
func (o *Orchestrator) Recognize(ctx context.Context, req Request) (Outcome, error) {
	if o.local == nil {
		return Outcome{}, &RecognitionError{Engine: "none", Err: errors.New("no local engine configured")}
	}

	res, err := o.local.Recognize(ctx, req.Image, req.Languages)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, &RecognitionError{Engine: o.local.Name(), Err: err}
	}
	recognitionConfidence.WithLabelValues(o.local.Name()).Observe(res.Confidence)

	out := Outcome{
		Text:               strings.TrimSpace(res.Text),
		Confidence:         res.Confidence,
		ConfidenceMeasured: res.ConfidenceMeasured,
		Engine:             o.local.Name(),
		Source:             Local,
	}

	if !o.shouldFallback(req.Policy, out.Confidence) {
		return out, nil
	}

	if req.OnFallback != nil {
		req.OnFallback()
	}
	out.FallbackAttempted = true

	alt, ferr := o.callFallback(ctx, req)
	if ferr != nil {
		out.FallbackErr = ferr
		if ferr.Timeout {
			fallbackAttempts.WithLabelValues(outcomeTimeout).Inc()
		} else {
			fallbackAttempts.WithLabelValues(outcomeError).Inc()
		}
		o.logger.Warn("fallback recognition failed, keeping local result",
			"engine", ferr.Engine,
			"timeout", ferr.Timeout,
			"error", ferr.Err,
			"local_confidence", out.Confidence)
		return out, nil
	}
	recognitionConfidence.WithLabelValues(o.fallback.Name()).Observe(alt.Confidence)

	altText := strings.TrimSpace(alt.Text)
	if altText == "" || alt.Confidence <= out.Confidence {
		fallbackAttempts.WithLabelValues(outcomeKeptLocal).Inc()
		o.logger.Debug("fallback result not better, keeping local",
			"local_confidence", out.Confidence,
			"fallback_confidence", alt.Confidence,
			"fallback_empty", altText == "")
		return out, nil
	}

	fallbackAttempts.WithLabelValues(outcomeUsed).Inc()
	return Outcome{
		Text:               altText,
		Confidence:         alt.Confidence,
		ConfidenceMeasured: alt.ConfidenceMeasured,
		Engine:             o.fallback.Name(),
		Source:             Fallback,
		FallbackAttempted:  true,
	}, nil
}

func (o *Orchestrator) shouldFallback(p Policy, localConfidence float64) bool {
	return p.Enabled && o.fallback != nil && localConfidence < p.Threshold
}

func (o *Orchestrator) callFallback(ctx context.Context, req Request) (engine.Result, *FallbackError) {
	fctx := ctx
	if req.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, req.Policy.Timeout)
		defer cancel()
	}

	in := req.Image
	if !req.Policy.SendEnhanced && len(req.Raw) > 0 {
		in = engine.Input{Data: req.Raw}
	}

	res, err := o.fallback.Recognize(fctx, in, req.Languages)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded)
		return engine.Result{}, &FallbackError{Engine: o.fallback.Name(), Err: err, Timeout: timedOut}
	}
	return res, nil
}
