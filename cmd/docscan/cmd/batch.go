package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docscan/internal/batch"
	"github.com/MeKo-Tech/docscan/internal/config"
)

func (a *app) newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <paths...>",
		Short: "Process directories of document photos in parallel",
		Long: `Discover images in the given files and directories and process them with
several pipelines in parallel. Results keep the discovery order and can be
written as JSON, JSON lines, YAML, text or CSV, plus an optional XLSX workbook
with one row per document and one column per field type.

Examples:
  docscan batch photos/
  docscan batch photos/ --recursive --workers 4 --format jsonl -o results.jsonl
  docscan batch photos/ --xlsx fields.xlsx`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runBatch,
	}
	addRecognitionFlags(cmd)
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.Lookup("format").Usage = "output format (json, jsonl, yaml, text, csv)"
	f.IntP("workers", "w", d.Batch.Workers, "number of parallel pipelines (0 = number of CPUs)")
	f.BoolP("recursive", "r", d.Batch.Recursive, "recursively scan directories")
	f.Bool("continue-on-error", d.Batch.ContinueOnError, "record failing documents and keep going")
	f.String("xlsx", d.Batch.XLSX, "also write an XLSX workbook to this path")
	f.StringSlice("include", nil, "file patterns to include, e.g. *.jpg")
	f.StringSlice("exclude", nil, "file patterns to exclude")
	f.Bool("progress", false, "show progress bar")
	f.Bool("quiet", false, "suppress progress output")
	f.Bool("stats", false, "print processing statistics to stderr")
	bindKey(f, "workers", "batch.workers")
	bindKey(f, "recursive", "batch.recursive")
	bindKey(f, "continue-on-error", "batch.continue_on_error")
	bindKey(f, "xlsx", "batch.xlsx")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	format := a.cfg.Output.Format
	if err := checkFormat(format, config.OutputFormats()); err != nil {
		return err
	}

	pc, err := a.pipelineConfig()
	if err != nil {
		return err
	}

	bc := a.cfg.ToBatchConfig(a.logger)
	f := cmd.Flags()
	bc.IncludePatterns, _ = f.GetStringSlice("include")
	bc.ExcludePatterns, _ = f.GetStringSlice("exclude")
	bc.ShowProgress, _ = f.GetBool("progress")
	bc.Quiet, _ = f.GetBool("quiet")

	result, err := batch.ProcessBatch(cmd.Context(), args, bc, batch.PipelineFactory(pc))
	if err != nil && result == nil {
		if errors.Is(err, batch.ErrNoImages) {
			return fmt.Errorf("no supported images found in %v", args)
		}
		return err
	}

	// Partial results are still written when the batch stopped early.
	if serr := result.SaveResults(format, a.cfg.Output.File, cmd.OutOrStdout()); serr != nil {
		return serr
	}
	if a.cfg.Batch.XLSX != "" {
		if xerr := result.WriteXLSX(a.cfg.Batch.XLSX); xerr != nil {
			return xerr
		}
		a.logger.Info("workbook written", "file", a.cfg.Batch.XLSX, "documents", len(result.Items))
	}
	if stats, _ := f.GetBool("stats"); stats {
		result.PrintStats(cmd.ErrOrStderr())
	}
	if err != nil {
		return fmt.Errorf("batch stopped: %w", err)
	}
	if s := result.Stats(); s.Failed > 0 && s.Processed == 0 {
		return fmt.Errorf("all %d document(s) failed", s.Failed)
	}
	return nil
}
