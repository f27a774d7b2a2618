package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
)

func (a *app) newImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image <files...>",
		Short: "Process images and extract document fields",
		Long: `Process one or more document photos: enhance, recognize, classify and
extract fields. Results are rendered as JSON, YAML, plain text or CSV.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  docscan image receipt.jpg
  docscan image *.png --format csv --output fields.csv
  docscan image lr.jpg --languages eng,hin --fallback=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runImage,
	}
	addRecognitionFlags(cmd)
	cmd.Flags().Bool("progress", false, "print stage progress to stderr")
	return cmd
}

func (a *app) runImage(cmd *cobra.Command, args []string) error {
	format := a.cfg.Output.Format
	if err := checkFormat(format, pipeline.Formats()); err != nil {
		return err
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	var sink pipeline.StageSink = pipeline.NewLogStageSink(a.logger, slog.LevelDebug)
	if show, _ := cmd.Flags().GetBool("progress"); show {
		sink = pipeline.NewConsoleStageSink(cmd.ErrOrStderr(), "")
	}

	results := make([]*pipeline.ExtractionResult, 0, len(args))
	var failed []string
	for _, path := range args {
		res, err := a.processImage(cmd, p, path, sink)
		if err != nil {
			var cerr *pipeline.CancelledError
			if errors.As(err, &cerr) {
				return err
			}
			a.logger.Error("image failed", "file", path, "error", err)
			failed = append(failed, path)
			continue
		}
		results = append(results, res)
	}

	if len(results) > 0 {
		out, err := pipeline.Render(results, format)
		if err != nil {
			return fmt.Errorf("failed to render results: %w", err)
		}
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		if err := writeOutput(cmd, out, a.cfg.Output.File); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d image(s) failed: %s", len(failed), len(args), strings.Join(failed, ", "))
	}
	return nil
}

func (a *app) processImage(cmd *cobra.Command, p *pipeline.Pipeline, path string,
	sink pipeline.StageSink,
) (*pipeline.ExtractionResult, error) {
	data, err := pixbuf.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Run(cmd.Context(), pipeline.Request{
		Image:    data,
		Filename: filepath.Base(path),
		Progress: sink,
	})
}
