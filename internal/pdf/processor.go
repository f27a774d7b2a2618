package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// Runner runs one document through recognition. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.ExtractionResult, error)
}

// ProcessorConfig contains configuration for PDF processing.
type ProcessorConfig struct {
	// Images smaller than this on either side (logos, rules) are skipped.
	MinImageSize int
	// Languages overrides the pipeline's languages when set.
	Languages []string
	Progress  pipeline.ProgressCallback
	Logger    *slog.Logger
}

// DefaultProcessorConfig returns the default processor configuration.
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MinImageSize: 32,
		Progress:     pipeline.NoOpProgressCallback{},
	}
}

// Processor feeds the page images of scanned PDFs to a Runner.
type Processor struct {
	runner   Runner
	config   *ProcessorConfig
	password *PasswordHandler
	logger   *slog.Logger

	// open and extract are swapped in tests.
	open    func(filename string, creds *PasswordCredentials) (working string, pages int, err error)
	extract func(filename, pageRange string) (map[int][]image.Image, error)
}

// NewProcessor creates a processor with the default configuration.
func NewProcessor(runner Runner) *Processor {
	return NewProcessorWithConfig(runner, DefaultProcessorConfig())
}

// NewProcessorWithConfig creates a processor with custom configuration.
func NewProcessorWithConfig(runner Runner, config *ProcessorConfig) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if config.Progress == nil {
		config.Progress = pipeline.NoOpProgressCallback{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		runner:   runner,
		config:   config,
		password: NewPasswordHandler(),
		logger:   logger,
		extract:  ExtractImages,
	}
	p.open = p.openFile
	return p
}

// openFile decrypts the document when needed and counts its pages.
func (p *Processor) openFile(filename string, creds *PasswordCredentials) (string, int, error) {
	working, err := p.password.DecryptPDF(filename, creds)
	if err != nil {
		return "", 0, err
	}
	n, err := PageCount(working)
	if err != nil {
		_ = p.password.CleanupTempFile(working)
		return "", 0, err
	}
	return working, n, nil
}

// ProcessFile processes a single PDF file.
func (p *Processor) ProcessFile(ctx context.Context, filename, pageRange string) (*DocumentResult, error) {
	return p.ProcessFileWithCredentials(ctx, filename, pageRange, nil)
}

// ProcessFileWithCredentials processes a PDF file with optional password
// credentials. A failing image is recorded on its page and processing
// continues; cancellation stops the document.
func (p *Processor) ProcessFileWithCredentials(ctx context.Context, filename, pageRange string,
	creds *PasswordCredentials,
) (*DocumentResult, error) {
	if p.runner == nil {
		return nil, errors.New("pdf processor has no runner")
	}
	start := time.Now()

	working, totalPages, err := p.open(filename, creds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.password.CleanupTempFile(working) }()

	pages, err := p.extract(working, pageRange)
	if err != nil {
		return nil, err
	}
	extractTime := time.Since(start)

	images := p.filter(OrderedImages(pages))
	p.logger.Debug("pdf images extracted",
		"file", filename, "images", len(images), "duration_ms", extractTime.Milliseconds())

	recStart := time.Now()
	doc := &DocumentResult{Filename: filename, TotalPages: totalPages}
	if err := p.recognizeAll(ctx, filename, images, doc); err != nil {
		return nil, err
	}

	doc.Processing = ProcessingInfo{
		ExtractionTimeMs:  extractTime.Milliseconds(),
		RecognitionTimeMs: time.Since(recStart).Milliseconds(),
		TotalTimeMs:       time.Since(start).Milliseconds(),
	}
	return doc, nil
}

func (p *Processor) filter(images []PageImage) []PageImage {
	if p.config.MinImageSize <= 0 {
		return images
	}
	out := images[:0:0]
	for _, pi := range images {
		b := pi.Image.Bounds()
		if b.Dx() < p.config.MinImageSize || b.Dy() < p.config.MinImageSize {
			continue
		}
		out = append(out, pi)
	}
	return out
}

func (p *Processor) recognizeAll(ctx context.Context, filename string, images []PageImage, doc *DocumentResult) error {
	progress := p.config.Progress
	progress.OnStart(len(images))
	defer progress.OnComplete()

	pageIdx := make(map[int]int)
	for i, pi := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		ir := ImageResult{
			ImageIndex: pi.Index,
			Width:      pi.Image.Bounds().Dx(),
			Height:     pi.Image.Bounds().Dy(),
		}
		res, err := p.recognize(ctx, filename, pi)
		if err != nil {
			var cerr *pipeline.CancelledError
			if errors.As(err, &cerr) {
				return err
			}
			ir.Error = err.Error()
			progress.OnError(i, err)
			p.logger.Warn("pdf image failed", "file", filename, "page", pi.Page, "image", pi.Index, "error", err)
		} else {
			ir.Result = res
		}

		idx, ok := pageIdx[pi.Page]
		if !ok {
			idx = len(doc.Pages)
			pageIdx[pi.Page] = idx
			doc.Pages = append(doc.Pages, PageResult{PageNumber: pi.Page})
		}
		doc.Pages[idx].Images = append(doc.Pages[idx].Images, ir)
		progress.OnProgress(i+1, len(images))
	}
	return nil
}

func (p *Processor) recognize(ctx context.Context, filename string, pi PageImage) (*pipeline.ExtractionResult, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pi.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page %d image %d: %w", pi.Page, pi.Index, err)
	}
	return p.runner.Run(ctx, pipeline.Request{
		Image:     buf.Bytes(),
		Filename:  ImageName(filename, pi.Page, pi.Index),
		Languages: p.config.Languages,
	})
}

// ImageName labels a page image for results.
func ImageName(filename string, page, index int) string {
	return fmt.Sprintf("%s#page=%d&image=%d", filename, page, index+1)
}
