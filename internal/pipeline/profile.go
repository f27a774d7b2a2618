package pipeline

import (
	"sync/atomic"
	"time"
)

// Profiler aggregates stage timings across the runs of one pipeline.
type Profiler struct {
	PreprocessTimeNs atomic.Int64
	RecognizeTimeNs  atomic.Int64
	ExtractTimeNs    atomic.Int64
	Runs             atomic.Int64
	FallbacksUsed    atomic.Int64
	FieldsExtracted  atomic.Int64
}

// Record adds one finished run.
func (p *Profiler) Record(pre, rec, ext time.Duration, fallbackUsed bool, fields int) {
	p.PreprocessTimeNs.Add(int64(pre))
	p.RecognizeTimeNs.Add(int64(rec))
	p.ExtractTimeNs.Add(int64(ext))
	p.Runs.Add(1)
	if fallbackUsed {
		p.FallbacksUsed.Add(1)
	}
	p.FieldsExtracted.Add(int64(fields))
}

// Reset zeroes every counter.
func (p *Profiler) Reset() {
	p.PreprocessTimeNs.Store(0)
	p.RecognizeTimeNs.Store(0)
	p.ExtractTimeNs.Store(0)
	p.Runs.Store(0)
	p.FallbacksUsed.Store(0)
	p.FieldsExtracted.Store(0)
}

// Snapshot returns cumulative totals in milliseconds plus per-run averages.
func (p *Profiler) Snapshot() map[string]any {
	runs := p.Runs.Load()
	pre := p.PreprocessTimeNs.Load()
	rec := p.RecognizeTimeNs.Load()
	ext := p.ExtractTimeNs.Load()
	out := map[string]any{
		"runs":                runs,
		"fallbacks_used":      p.FallbacksUsed.Load(),
		"fields_extracted":    p.FieldsExtracted.Load(),
		"preprocess_ms_total": pre / 1_000_000,
		"recognize_ms_total":  rec / 1_000_000,
		"extract_ms_total":    ext / 1_000_000,
	}
	if runs > 0 {
		out["preprocess_ms_per_run"] = float64(pre) / 1_000_000.0 / float64(runs)
		out["recognize_ms_per_run"] = float64(rec) / 1_000_000.0 / float64(runs)
		out["extract_ms_per_run"] = float64(ext) / 1_000_000.0 / float64(runs)
	}
	return out
}
