package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/docscan/internal/classify"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/extract"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
)

// Config holds configuration for the document pipeline and its stages.
type Config struct {
	// PreprocessEnabled turns the enhancement chain on. When off the decoded
	// image goes to the engine unchanged.
	PreprocessEnabled bool
	Preprocess        preprocess.Options
	Languages         []string
	Policy            recognition.Policy

	LocalEngine    engine.Engine
	FallbackEngine engine.Engine

	// Extractor and Signatures override the built-in registries when set.
	Extractor  *extract.Extractor
	Signatures []classify.Signature

	// Progress receives stage events for runs whose request has no sink.
	Progress StageSink
	Logger   *slog.Logger
}

// DefaultConfig returns the default stage configuration without engines.
func DefaultConfig() Config {
	return Config{
		PreprocessEnabled: true,
		Preprocess:        preprocess.DefaultOptions(),
		Languages:         append([]string(nil), engine.DefaultLanguages...),
		Policy:            recognition.DefaultPolicy(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing config.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithLocalEngine sets the mandatory local engine.
func (b *Builder) WithLocalEngine(e engine.Engine) *Builder {
	b.cfg.LocalEngine = e
	return b
}

// WithFallbackEngine sets the optional fallback engine. Nil disables it.
func (b *Builder) WithFallbackEngine(e engine.Engine) *Builder {
	b.cfg.FallbackEngine = e
	return b
}

// WithPreprocess sets the enhancement options.
func (b *Builder) WithPreprocess(opts preprocess.Options) *Builder {
	b.cfg.Preprocess = opts
	return b
}

// WithPreprocessing enables or disables the enhancement chain.
func (b *Builder) WithPreprocessing(enabled bool) *Builder {
	b.cfg.PreprocessEnabled = enabled
	return b
}

// WithLanguages sets the default recognition languages.
func (b *Builder) WithLanguages(langs ...string) *Builder {
	if len(langs) > 0 {
		b.cfg.Languages = append([]string(nil), langs...)
	}
	return b
}

// WithPolicy replaces the fallback policy.
func (b *Builder) WithPolicy(p recognition.Policy) *Builder {
	b.cfg.Policy = p
	return b
}

// WithFallbackEnabled toggles the fallback engine globally.
func (b *Builder) WithFallbackEnabled(enabled bool) *Builder {
	b.cfg.Policy.Enabled = enabled
	return b
}

// WithFallbackThreshold sets the confidence below which the fallback runs.
func (b *Builder) WithFallbackThreshold(th float64) *Builder {
	b.cfg.Policy.Threshold = th
	return b
}

// WithExtractor replaces the field extractor.
func (b *Builder) WithExtractor(e *extract.Extractor) *Builder {
	b.cfg.Extractor = e
	return b
}

// WithSignatures replaces the classifier signatures.
func (b *Builder) WithSignatures(sigs []classify.Signature) *Builder {
	b.cfg.Signatures = append([]classify.Signature(nil), sigs...)
	return b
}

// WithProgress sets the default stage sink.
func (b *Builder) WithProgress(s StageSink) *Builder {
	b.cfg.Progress = s
	return b
}

// WithLogger sets the logger used by the pipeline and orchestrator.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.cfg.Logger = l
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks engines and stage settings.
func (b *Builder) Validate() error {
	if b.cfg.LocalEngine == nil {
		return errors.New("local recognition engine is required")
	}
	if err := b.cfg.Preprocess.Validate(); err != nil {
		return err
	}
	if _, err := engine.NormalizeLanguages(b.cfg.Languages); err != nil {
		return err
	}
	if b.cfg.Policy.Threshold < 0 || b.cfg.Policy.Threshold > 100 {
		return fmt.Errorf("fallback threshold must be within [0,100], got %.2f", b.cfg.Policy.Threshold)
	}
	if b.cfg.Policy.Timeout < 0 {
		return fmt.Errorf("fallback timeout must not be negative, got %v", b.cfg.Policy.Timeout)
	}
	return nil
}

// Pipeline runs preprocessing, recognition, classification and extraction
// for one document at a time.
type Pipeline struct {
	cfg       Config
	orch      *recognition.Orchestrator
	extractor *extract.Extractor
	logger    *slog.Logger

	// sem holds one token while a run is in flight.
	sem chan struct{}

	mu      sync.Mutex
	state   State
	lastErr error

	profiler Profiler
}

// Build validates the configuration and assembles the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cfg := b.cfg
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ext := cfg.Extractor
	if ext == nil {
		ext = extract.NewExtractor(extract.DefaultRules())
	}
	return &Pipeline{
		cfg:       cfg,
		orch:      recognition.New(cfg.LocalEngine, cfg.FallbackEngine).WithLogger(logger),
		extractor: ext,
		logger:    logger,
		sem:       make(chan struct{}, 1),
		state:     StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the error of the last failed or cancelled run.
func (p *Pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Reset returns a finished pipeline to Idle. It fails while a run is in flight.
func (p *Pipeline) Reset() error {
	select {
	case p.sem <- struct{}{}:
	default:
		return ErrRunning
	}
	defer func() { <-p.sem }()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	p.lastErr = nil
	return nil
}

// transition moves to the next state. Illegal moves are logged and applied
// anyway so the state always reflects what the run is doing.
func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !CanTransition(p.state, to) {
		p.logger.Error("illegal pipeline state transition", "from", p.state.String(), "to", to.String())
	}
	p.state = to
}

func (p *Pipeline) finish(to State, err error) {
	p.transition(to)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// Close releases engines that hold resources.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, e := range []engine.Engine{p.cfg.LocalEngine, p.cfg.FallbackEngine} {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// HasFallback reports whether a fallback engine is configured.
func (p *Pipeline) HasFallback() bool { return p.orch.HasFallback() }

// Stats returns cumulative stage timings.
func (p *Pipeline) Stats() map[string]any { return p.profiler.Snapshot() }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	info := map[string]any{
		"state":              p.State().String(),
		"languages":          p.cfg.Languages,
		"preprocess_enabled": p.cfg.PreprocessEnabled,
		"preprocess":         p.cfg.Preprocess,
		"local_engine":       p.cfg.LocalEngine.Name(),
		"fallback": map[string]any{
			"enabled":       p.cfg.Policy.Enabled,
			"threshold":     p.cfg.Policy.Threshold,
			"timeout":       p.cfg.Policy.Timeout.String(),
			"send_enhanced": p.cfg.Policy.SendEnhanced,
		},
		"stats":  p.Stats(),
		"memory": GetMemStats(),
	}
	if p.cfg.FallbackEngine != nil {
		info["fallback_engine"] = p.cfg.FallbackEngine.Name()
	}
	return info
}
