// Package batch runs directories of scanned documents through recognition
// pipelines and exports the results.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// Runner runs one document. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.ExtractionResult, error)
}

// Factory creates the runner owned by one worker. A pipeline admits one run
// at a time, so every worker gets its own.
type Factory func() (Runner, error)

// PipelineFactory builds pipelines from a shared configuration. Engines in
// cfg must be safe for concurrent use.
func PipelineFactory(cfg pipeline.Config) Factory {
	return func() (Runner, error) {
		return pipeline.NewBuilderFromConfig(cfg).Build()
	}
}

// Item is the outcome for one input file. Exactly one of Result and Err is set.
type Item struct {
	Path   string
	Result *pipeline.ExtractionResult
	Err    error
}

// Result holds the result of batch processing in input order.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Successful returns the results of documents that processed cleanly.
func (r *Result) Successful() []*pipeline.ExtractionResult {
	out := make([]*pipeline.ExtractionResult, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Result != nil {
			out = append(out, it.Result)
		}
	}
	return out
}

// Stats summarises a batch run.
type Stats struct {
	Total            int
	Processed        int
	Failed           int
	WorkerCount      int
	TotalDuration    time.Duration
	AveragePerImage  time.Duration
	ThroughputPerSec float64
}

// Stats computes processing statistics.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Items), WorkerCount: r.WorkerCount, TotalDuration: r.Duration}
	for _, it := range r.Items {
		if it.Err != nil {
			s.Failed++
		} else if it.Result != nil {
			s.Processed++
		}
	}
	if done := s.Processed + s.Failed; done > 0 {
		s.AveragePerImage = r.Duration / time.Duration(done)
		if r.Duration > 0 {
			s.ThroughputPerSec = float64(done) / r.Duration.Seconds()
		}
	}
	return s
}

// PrintStats writes processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total documents: %d\n", stats.Total)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Processed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per document: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f documents/sec\n", stats.ThroughputPerSec)
}

// ProcessBatch discovers images under paths and processes them.
func ProcessBatch(ctx context.Context, paths []string, config *Config, factory Factory) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	files, err := DiscoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	return ProcessFiles(ctx, files, config, factory)
}

// ProcessFiles runs the given files through config.Workers runners. Results
// keep the input order regardless of completion order.
func ProcessFiles(ctx context.Context, files []string, config *Config, factory Factory) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.New("batch: no pipeline factory")
	}
	workers := config.workerCount(len(files))
	logger := config.logger()

	progress := progressFor(config)
	tracker := pipeline.NewProgressTracker(len(files))
	var progressMu sync.Mutex
	progress.OnStart(len(files))

	items := make([]Item, len(files))
	jobs := make(chan int)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := range workers {
		g.Go(func() error {
			runner, err := factory()
			if err != nil {
				return fmt.Errorf("worker %d: build pipeline: %w", w, err)
			}
			if c, ok := runner.(io.Closer); ok {
				defer func() { _ = c.Close() }()
			}
			for i := range jobs {
				res, err := processFile(gctx, runner, files[i], config.Languages)
				items[i] = Item{Path: files[i], Result: res, Err: err}

				progressMu.Lock()
				tracker.Record(err)
				if err != nil {
					progress.OnError(i, err)
				}
				progress.OnProgress(tracker.Done(), len(files))
				progressMu.Unlock()

				if err == nil {
					continue
				}
				logger.Warn("batch document failed", "file", files[i], "error", err)
				var cerr *pipeline.CancelledError
				if errors.As(err, &cerr) || !config.ContinueOnError {
					return fmt.Errorf("%s: %w", files[i], err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	progress.OnComplete()
	result := &Result{Items: items, Duration: time.Since(start), WorkerCount: workers}
	for i := range result.Items {
		if result.Items[i].Path == "" {
			result.Items[i].Path = files[i]
		}
	}
	if err != nil {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	stats := result.Stats()
	logger.Info("batch completed",
		"documents", stats.Total,
		"failed", stats.Failed,
		"workers", workers,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func processFile(ctx context.Context, runner Runner, path string, languages []string) (*pipeline.ExtractionResult, error) {
	data, err := pixbuf.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, pipeline.Request{Image: data, Filename: path, Languages: languages})
}

func progressFor(config *Config) pipeline.ProgressCallback {
	switch {
	case config.Progress != nil:
		return config.Progress
	case config.ShowProgress && !config.Quiet:
		return pipeline.NewConsoleProgressCallback(os.Stderr, "Processing: ").
			WithUpdateInterval(config.ProgressInterval)
	default:
		return pipeline.NoOpProgressCallback{}
	}
}
