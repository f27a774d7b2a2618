package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/docscan/internal/pdf"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

func (a *app) newPDFCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf <file>",
		Short: "Process the page images of a scanned PDF",
		Long: `Extract the embedded page images of a scanned PDF and run each one through
the document pipeline. Images are processed in page order; a failing image is
recorded on its page and the rest of the document continues.

Examples:
  docscan pdf bundle.pdf
  docscan pdf bundle.pdf --pages 1-3,7 --format text
  docscan pdf locked.pdf --password secret`,
		Args: cobra.ExactArgs(1),
		RunE: a.runPDF,
	}
	addRecognitionFlags(cmd)
	f := cmd.Flags()
	f.String("pages", "", "page range to process, e.g. 1-3,5 (default all)")
	f.String("password", "", "user password for encrypted documents")
	f.Int("min-image-size", pdf.DefaultProcessorConfig().MinImageSize, "skip images smaller than this on either side")
	f.Bool("progress", false, "print per-image progress to stderr")
	bindKey(f, "password", "pdf.password")
	bindKey(f, "min-image-size", "pdf.min_image_size")
	return cmd
}

func (a *app) runPDF(cmd *cobra.Command, args []string) error {
	format := a.cfg.Output.Format
	if err := checkFormat(format, pipeline.Formats()); err != nil {
		return err
	}
	pages, _ := cmd.Flags().GetString("pages")

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	pc := a.cfg.ToPDFConfig(a.logger)
	if show, _ := cmd.Flags().GetBool("progress"); show {
		pc.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Images: ")
	}

	var creds *pdf.PasswordCredentials
	if a.cfg.PDF.Password != "" {
		creds = &pdf.PasswordCredentials{UserPassword: a.cfg.PDF.Password}
	}

	doc, err := pdf.NewProcessorWithConfig(p, pc).ProcessFileWithCredentials(cmd.Context(), args[0], pages, creds)
	if err != nil {
		if pdf.IsPasswordError(err) {
			return fmt.Errorf("%s is encrypted; pass --password: %w", args[0], err)
		}
		return fmt.Errorf("failed to process %s: %w", args[0], err)
	}

	out, err := renderDocument(doc, format)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, out, a.cfg.Output.File); err != nil {
		return err
	}
	if n := doc.Failures(); n > 0 {
		a.logger.Warn("some images failed", "file", args[0], "failed", n)
	}
	return nil
}

// renderDocument keeps the page structure for json and yaml and flattens it
// for text and csv.
func renderDocument(doc *pdf.DocumentResult, format string) (string, error) {
	var out string
	switch format {
	case pipeline.FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal document: %w", err)
		}
		out = string(data)
	case pipeline.FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to marshal document: %w", err)
		}
		out = string(data)
	case pipeline.FormatText:
		out = doc.Text()
	default:
		rendered, err := pipeline.Render(doc.Results(), format)
		if err != nil {
			return "", err
		}
		out = rendered
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}
