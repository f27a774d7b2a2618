package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docscan/internal/config"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/tesseract"
	"github.com/MeKo-Tech/docscan/internal/engine/vision"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// defaultEngines pairs Tesseract with Google Vision. The fallback is left out
// when it is disabled or has no API key.
func defaultEngines(cfg *config.Config, logger *slog.Logger) (engine.Engine, engine.Engine, error) {
	local := tesseract.New(cfg.TesseractConfig())
	if !cfg.Fallback.Enabled {
		return local, nil, nil
	}
	if cfg.Fallback.APIKey == "" {
		logger.Warn("cloud fallback disabled: no API key configured",
			"hint", "set DOCSCAN_FALLBACK_API_KEY or fallback.api_key")
		return local, nil, nil
	}
	return local, vision.New(cfg.VisionConfig(logger)), nil
}

// pipelineConfig assembles the pipeline configuration with engines attached.
// Engines are shared by every pipeline built from it.
func (a *app) pipelineConfig() (pipeline.Config, error) {
	local, fallback, err := a.engines(a.cfg, a.logger)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("failed to create engines: %w", err)
	}
	pc := a.cfg.ToPipelineConfig()
	pc.LocalEngine = local
	pc.FallbackEngine = fallback
	if fallback == nil {
		pc.Policy.Enabled = false
	}
	pc.Logger = a.logger
	return pc, nil
}

// newPipeline builds a single pipeline for the one-shot commands.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	pc, err := a.pipelineConfig()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.NewBuilderFromConfig(pc).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, nil
}

// addRecognitionFlags registers the flags shared by image, pdf and batch.
func addRecognitionFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.StringSliceP("languages", "l", d.Recognition.Languages,
		"recognition languages, e.g. eng,hin (supported: "+fmt.Sprint(engine.SupportedLanguages)+")")
	f.Bool("preprocess", d.Preprocess.Enabled, "enhance the image before recognition")
	f.Float64("scale", d.Preprocess.Scale, "upscale factor applied during preprocessing")
	f.Bool("fallback", d.Fallback.Enabled, "use the cloud engine when local confidence is low")
	f.Float64("threshold", d.Fallback.Threshold, "local confidence (0-100) below which the fallback runs")
	f.Bool("send-enhanced", d.Fallback.SendEnhanced, "send the enhanced image instead of the original to the fallback")
	f.StringP("format", "f", d.Output.Format, "output format")
	f.StringP("output", "o", "", "write results to file instead of stdout")

	bindKey(f, "languages", "recognition.languages")
	bindKey(f, "preprocess", "preprocess.enabled")
	bindKey(f, "scale", "preprocess.scale")
	bindKey(f, "fallback", "fallback.enabled")
	bindKey(f, "threshold", "fallback.threshold")
	bindKey(f, "send-enhanced", "fallback.send_enhanced")
	bindKey(f, "format", "output.format")
	bindKey(f, "output", "output.file")
}

// checkFormat rejects formats the command cannot render.
func checkFormat(format string, allowed []string) error {
	if !slices.Contains(allowed, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %v)", format, allowed)
	}
	return nil
}

// writeOutput writes rendered results to file, or to the command's stdout.
func writeOutput(cmd *cobra.Command, output, file string) error {
	if file == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), output)
		return err
	}
	if err := os.WriteFile(file, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	slog.Info("results written", "file", file)
	return nil
}
