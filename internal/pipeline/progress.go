package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Stage names reported to a StageSink, in run order.
const (
	StagePreprocessing = "preprocessing"
	StagePreprocessed  = "preprocessed"
	StageRecognized    = "recognized"
	StageFallback      = "fallback"
	StageExtracting    = "extracting"
	StageComplete      = "complete"
)

// stagePercent is the progress reached when each stage is announced.
var stagePercent = map[string]int{
	StagePreprocessing: 10,
	StagePreprocessed:  20,
	StageRecognized:    65,
	StageFallback:      70,
	StageExtracting:    90,
	StageComplete:      100,
}

// StageEvent is one progress notification within a single run.
type StageEvent struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

func newStageEvent(runID, stage, msg string) StageEvent {
	return StageEvent{RunID: runID, Stage: stage, Percent: stagePercent[stage], Message: msg}
}

// StageSink receives stage events of a run. Percentages never decrease
// within one run.
type StageSink interface {
	OnStage(ev StageEvent)
}

// NoOpStageSink drops every event.
type NoOpStageSink struct{}

func (NoOpStageSink) OnStage(StageEvent) {}

// StageSinkFunc adapts a function to StageSink.
type StageSinkFunc func(ev StageEvent)

func (f StageSinkFunc) OnStage(ev StageEvent) { f(ev) }

// LogStageSink logs events with slog.
type LogStageSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogStageSink creates a slog-backed sink. A nil logger uses slog.Default.
func NewLogStageSink(logger *slog.Logger, level slog.Level) *LogStageSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStageSink{logger: logger, level: level}
}

func (l *LogStageSink) OnStage(ev StageEvent) {
	l.logger.Log(context.Background(), l.level, "pipeline stage",
		"run_id", ev.RunID,
		"stage", ev.Stage,
		"percent", ev.Percent,
		"message", ev.Message,
	)
}

// ConsoleStageSink prints one status line per event.
type ConsoleStageSink struct {
	writer io.Writer
	prefix string
	mutex  sync.Mutex
}

// NewConsoleStageSink writes to writer, or stderr when nil.
func NewConsoleStageSink(writer io.Writer, prefix string) *ConsoleStageSink {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleStageSink{writer: writer, prefix: prefix}
}

func (c *ConsoleStageSink) OnStage(ev StageEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, _ = fmt.Fprintf(c.writer, "%s[%3d%%] %s\n", c.prefix, ev.Percent, ev.Message)
}

// MultiStageSink fans events out to several sinks.
type MultiStageSink struct {
	sinks []StageSink
}

// NewMultiStageSink ignores nil sinks.
func NewMultiStageSink(sinks ...StageSink) *MultiStageSink {
	m := &MultiStageSink{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends a sink.
func (m *MultiStageSink) Add(s StageSink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

func (m *MultiStageSink) OnStage(ev StageEvent) {
	for _, s := range m.sinks {
		s.OnStage(ev)
	}
}

// ProgressCallback reports progress across many documents, as in a batch.
type ProgressCallback interface {
	// OnStart is called once with the number of documents.
	OnStart(total int)
	// OnProgress is called after each document.
	OnProgress(current, total int)
	// OnComplete is called when every document has been handled.
	OnComplete()
	// OnError is called for a failed document.
	OnError(current int, err error)
}

// NoOpProgressCallback does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(total int)              {}
func (NoOpProgressCallback) OnProgress(current, total int)  {}
func (NoOpProgressCallback) OnComplete()                    {}
func (NoOpProgressCallback) OnError(current int, err error) {}

// ConsoleProgressCallback draws a progress bar.
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	lastUpdate     time.Time
	updateInterval time.Duration
	mutex          sync.Mutex
	startTime      time.Time
}

// NewConsoleProgressCallback creates a console progress bar on writer.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval limits how often the bar is redrawn.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.updateInterval = interval
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s0/%d documents\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	if total <= 0 {
		return
	}

	filled := min(c.width*current/total, c.width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total,
		float64(current)/float64(total)*100.0)

	if elapsed := now.Sub(c.startTime); elapsed > 0 && current > 0 && current < total {
		eta := time.Duration(float64(elapsed) * float64(total-current) / float64(current))
		status += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
	}
	_, _ = fmt.Fprint(c.writer, status)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sError at document %d: %v\n", c.prefix, current, err)
}

// LogProgressCallback logs batch progress every interval documents.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	interval  int
	mutex     sync.Mutex
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback creates a slog-backed batch reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval logs every n documents.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.interval = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, "batch started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	elapsed := time.Since(l.startTime)
	l.logger.Log(context.Background(), l.level, "batch progress",
		"current", current,
		"total", total,
		"rate", fmt.Sprintf("%.1f/s", float64(current)/elapsed.Seconds()),
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "batch completed", "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Error("batch document failed", "current", current, "error", err)
}

// MultiProgressCallback reports to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback combines callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m.callbacks {
		cb.OnProgress(current, total)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}

func (m *MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(current, err)
	}
}

// ProgressTracker counts finished and failed documents.
type ProgressTracker struct {
	StartTime time.Time     `json:"start_time"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Rate      float64       `json:"rate_per_second"`
	Elapsed   time.Duration `json:"elapsed_duration"`
	mutex     sync.RWMutex
}

// NewProgressTracker starts tracking total documents.
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{StartTime: time.Now(), Total: total}
}

// Record marks one document done.
func (pt *ProgressTracker) Record(err error) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	if err != nil {
		pt.Failed++
	} else {
		pt.Completed++
	}
	pt.Elapsed = time.Since(pt.StartTime)
	if secs := pt.Elapsed.Seconds(); secs > 0 {
		pt.Rate = float64(pt.Completed+pt.Failed) / secs
	}
}

// Done returns the number of handled documents.
func (pt *ProgressTracker) Done() int {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	return pt.Completed + pt.Failed
}

// GetStats returns a copy of the counters.
func (pt *ProgressTracker) GetStats() ProgressTracker {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	return ProgressTracker{
		StartTime: pt.StartTime,
		Total:     pt.Total,
		Completed: pt.Completed,
		Failed:    pt.Failed,
		Rate:      pt.Rate,
		Elapsed:   pt.Elapsed,
	}
}

// PercentComplete returns handled/total as a percentage.
func (pt *ProgressTracker) PercentComplete() float64 {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	if pt.Total == 0 {
		return 0
	}
	return float64(pt.Completed+pt.Failed) / float64(pt.Total) * 100.0
}
