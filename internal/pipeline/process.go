package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/docscan/internal/classify"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/extract"
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
)

// Run processes one document. Concurrent calls queue behind the run in
// flight; a caller whose context ends while queued gets a CancelledError.
// Run returns either a complete result or an error, never both.
func (p *Pipeline) Run(ctx context.Context, req Request) (*ExtractionResult, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &CancelledError{Stage: StateIdle, Err: ctx.Err()}
	}
	defer func() { <-p.sem }()
	return p.run(ctx, req)
}

// TryRun is like Run but returns ErrBusy instead of waiting.
func (p *Pipeline) TryRun(ctx context.Context, req Request) (*ExtractionResult, error) {
	select {
	case p.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-p.sem }()
	return p.run(ctx, req)
}

// runSettings are the per-run values after request overrides.
type runSettings struct {
	opts      preprocess.Options
	policy    recognition.Policy
	languages []string
	sink      StageSink
}

func (p *Pipeline) settings(req Request) (runSettings, error) {
	s := runSettings{
		opts:   p.cfg.Preprocess,
		policy: p.cfg.Policy,
		sink:   p.cfg.Progress,
	}
	if req.Options != nil {
		s.opts = *req.Options
	}
	if req.Policy != nil {
		s.policy = *req.Policy
	}
	if req.Progress != nil {
		s.sink = req.Progress
	}
	if s.sink == nil {
		s.sink = NoOpStageSink{}
	}
	if p.cfg.PreprocessEnabled {
		if err := s.opts.Validate(); err != nil {
			return s, err
		}
	}
	langs := req.Languages
	if len(langs) == 0 {
		langs = p.cfg.Languages
	}
	normalized, err := engine.NormalizeLanguages(langs)
	if err != nil {
		return s, err
	}
	s.languages = normalized
	return s, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (*ExtractionResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	if p.State().Terminal() {
		p.transition(StateIdle)
	}

	fail := func(stage State, err error) (*ExtractionResult, error) {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			cerr := &CancelledError{Stage: stage, Err: ctxErr}
			p.finish(StateCancelled, cerr)
			pipelineRunsTotal.WithLabelValues(statusCancelled).Inc()
			logger.Info("pipeline run cancelled", "stage", stage.String())
			return nil, cerr
		}
		p.finish(StateError, err)
		pipelineRunsTotal.WithLabelValues(statusError).Inc()
		logger.Error("pipeline run failed", "stage", stage.String(), "error", err)
		return nil, err
	}
	cancelled := func(stage State) (*ExtractionResult, error) {
		return fail(stage, ctx.Err())
	}

	if err := ctx.Err(); err != nil {
		return cancelled(StateIdle)
	}
	p.transition(StatePreprocessing)

	set, err := p.settings(req)
	if err != nil {
		return fail(StatePreprocessing, err)
	}
	if len(req.Image) == 0 {
		return fail(StatePreprocessing, ErrNoImage)
	}
	sink := set.sink

	// Stage 1: decode and enhance.
	sink.OnStage(newStageEvent(runID, StagePreprocessing, "Preprocessing image..."))
	preStart := time.Now()
	buf, err := p.preprocess(req.Image, set.opts)
	if err != nil {
		return fail(StatePreprocessing, err)
	}
	preDur := time.Since(preStart)
	stageDuration.WithLabelValues("preprocess").Observe(preDur.Seconds())
	logger.Debug("preprocessing done",
		"width", buf.Width, "height", buf.Height,
		"enabled", p.cfg.PreprocessEnabled,
		"duration_ms", preDur.Milliseconds())
	sink.OnStage(newStageEvent(runID, StagePreprocessed, "Running local recognition..."))

	if ctx.Err() != nil {
		return cancelled(StatePreprocessing)
	}
	p.transition(StateRecognizing)

	// Stage 2: local recognition with optional fallback.
	input := engine.Input{Buffer: buf}
	if !p.cfg.PreprocessEnabled {
		input.Data = req.Image
	}
	recStart := time.Now()
	outcome, err := p.orch.Recognize(ctx, recognition.Request{
		Image:     input,
		Raw:       req.Image,
		Languages: set.languages,
		Policy:    set.policy,
		OnFallback: func() {
			sink.OnStage(newStageEvent(runID, StageRecognized, "Local recognition finished"))
			sink.OnStage(newStageEvent(runID, StageFallback, "Low confidence, trying fallback engine..."))
		},
	})
	if err != nil {
		return fail(StateRecognizing, err)
	}
	recDur := time.Since(recStart)
	stageDuration.WithLabelValues("recognize").Observe(recDur.Seconds())
	logger.Debug("recognition done",
		"engine", outcome.Engine,
		"confidence", outcome.Confidence,
		"fallback_attempted", outcome.FallbackAttempted,
		"duration_ms", recDur.Milliseconds())
	if !outcome.FallbackAttempted {
		sink.OnStage(newStageEvent(runID, StageRecognized, "Local recognition finished"))
	}

	if ctx.Err() != nil {
		return cancelled(StateRecognizing)
	}
	p.transition(StateClassifyingExtracting)

	// Stage 3: classify and extract from the same finalized text.
	sink.OnStage(newStageEvent(runID, StageExtracting, "Extracting fields..."))
	extStart := time.Now()
	text := outcome.Text
	var (
		docType classify.DocumentType
		fields  []extract.Field
	)
	var g errgroup.Group
	g.Go(func() error {
		docType = p.classify(text)
		return nil
	})
	g.Go(func() error {
		fields = p.extractor.Extract(text)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(StateClassifyingExtracting, err)
	}
	extDur := time.Since(extStart)
	stageDuration.WithLabelValues("extract").Observe(extDur.Seconds())
	for _, f := range fields {
		extractedFieldsTotal.WithLabelValues(string(f.Type)).Inc()
	}

	result := &ExtractionResult{
		RunID:              runID,
		Filename:           req.Filename,
		Success:            true,
		Text:               text,
		Confidence:         outcome.Confidence,
		ConfidenceMeasured: outcome.ConfidenceMeasured,
		Engine:             outcome.Engine,
		DocumentType:       docType,
		DocumentLabel:      docType.Label(),
		ExtractedFields:    fields,
		Lines:              SplitLines(text),
		WordCount:          len(strings.Fields(text)),
		Preprocessed:       p.cfg.PreprocessEnabled,
		FallbackUsed:       outcome.FallbackUsed(),
		Languages:          set.languages,
		Warnings:           warningsFor(outcome),
		Timing: StageTiming{
			PreprocessMs: preDur.Milliseconds(),
			RecognizeMs:  recDur.Milliseconds(),
			ExtractMs:    extDur.Milliseconds(),
		},
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.finish(StateDone, nil)
	p.profiler.Record(preDur, recDur, extDur, result.FallbackUsed, len(fields))
	pipelineRunsTotal.WithLabelValues(statusSuccess).Inc()
	sink.OnStage(newStageEvent(runID, StageComplete, "Complete!"))

	logger.Debug("pipeline run complete",
		"document_type", string(docType),
		"fields", len(fields),
		"engine", result.Engine,
		"fallback_used", result.FallbackUsed,
		"duration_ms", result.ProcessingTimeMs)
	return result, nil
}

func (p *Pipeline) preprocess(raw []byte, opts preprocess.Options) (*pixbuf.Buffer, error) {
	if p.cfg.PreprocessEnabled {
		return preprocess.Process(raw, opts)
	}
	buf, _, err := pixbuf.DecodeLimited(raw, opts.MaxPixels)
	return buf, err
}

func (p *Pipeline) classify(text string) classify.DocumentType {
	if len(p.cfg.Signatures) > 0 {
		return classify.ClassifyWith(p.cfg.Signatures, text)
	}
	return classify.Classify(text)
}

// SplitLines returns the trimmed non-empty lines of text.
func SplitLines(text string) []string {
	lines := []string{}
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func warningsFor(o recognition.Outcome) []string {
	var w []string
	if o.FallbackErr != nil {
		w = append(w, o.FallbackErr.Error())
	}
	if !o.ConfidenceMeasured {
		w = append(w, fmt.Sprintf("confidence %.1f from %s is a default estimate, not a measurement", o.Confidence, o.Engine))
	}
	return w
}
