package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docscan/internal/engine/tesseract"
)

func (a *app) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the Tesseract installation and engine configuration",
		Long: `Verify that libtesseract is linked, that traineddata is installed for every
configured recognition language, and report whether the cloud fallback is
usable.`,
		Args: cobra.NoArgs,
		RunE: a.runCheck,
	}
}

func (a *app) runCheck(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Tesseract version: %s\n", tesseract.Version())

	dir, installed, err := tesseract.AvailableLanguages(a.cfg.Recognition.TessdataPrefix)
	if err != nil {
		_, _ = fmt.Fprintln(out, "Traineddata: not found")
		_, _ = fmt.Fprintln(out, "Install tesseract language packs or set recognition.tessdata_prefix.")
		return err
	}
	_, _ = fmt.Fprintf(out, "Tessdata: %s\n", dir)
	_, _ = fmt.Fprintf(out, "Installed languages: %s\n", strings.Join(installed, ", "))

	switch {
	case !a.cfg.Fallback.Enabled:
		_, _ = fmt.Fprintln(out, "Cloud fallback: disabled")
	case a.cfg.Fallback.APIKey == "":
		_, _ = fmt.Fprintln(out, "Cloud fallback: enabled but no API key (set DOCSCAN_FALLBACK_API_KEY)")
	default:
		_, _ = fmt.Fprintf(out, "Cloud fallback: %s (threshold %.0f)\n", a.cfg.Fallback.Endpoint, a.cfg.Fallback.Threshold)
	}

	if missing := tesseract.MissingLanguages(installed, a.cfg.Recognition.Languages); len(missing) > 0 {
		return fmt.Errorf("missing traineddata for configured languages: %s", strings.Join(missing, ", "))
	}
	_, _ = fmt.Fprintln(out, "All configured languages are installed.")
	return nil
}
