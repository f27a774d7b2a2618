package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/docscan/internal/config"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/version"
)

// configKeyAnnotation ties a flag to the config key it overrides.
const configKeyAnnotation = "docscan_config_key"

// EngineFactory builds the local and (optional) fallback engines for a run.
// A nil fallback disables the fallback stage.
type EngineFactory func(cfg *config.Config, logger *slog.Logger) (local, fallback engine.Engine, err error)

// app is the state shared by one command tree.
type app struct {
	cfgFile string
	envFile string

	v      *viper.Viper
	loader *config.Loader
	cfg    *config.Config
	logger *slog.Logger

	engines EngineFactory
}

// Execute runs the CLI and exits non-zero on failure. SIGINT and SIGTERM
// cancel the command context so in-flight runs stop at the next stage.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree with the production engines.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultEngines)
}

func newRootCommand(engines EngineFactory) *cobra.Command {
	a := &app{v: viper.New(), engines: engines}

	root := &cobra.Command{
		Use:   "docscan",
		Short: "Extract structured fields from photographed logistics documents",
		Long: `docscan reads photographed or scanned logistics documents (lorry receipts,
proofs of delivery, invoices, e-way bills, weighment slips, challans), enhances
the image, recognizes the text with Tesseract and falls back to Google Cloud
Vision when local confidence is low. It then classifies the document and
extracts GSTINs, vehicle numbers, dates, amounts and other fields.

Examples:
  docscan image receipt.jpg
  docscan image scan.png --languages eng,hin --format yaml
  docscan pdf bundle.pdf --pages 1-3
  docscan batch photos/ --xlsx fields.xlsx
  docscan serve --port 8080`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is docscan.yaml in ., $HOME, $XDG_CONFIG_HOME/docscan, /etc/docscan)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	bindKey(pf, "verbose", "verbose")
	bindKey(pf, "log-level", "log_level")

	root.AddCommand(
		a.newImageCommand(),
		a.newPDFCommand(),
		a.newBatchCommand(),
		a.newServeCommand(),
		a.newCheckCommand(),
		a.newConfigCommand(),
		a.newVersionCommand(),
	)
	return root
}

// bindKey marks flag name as an override for key.
func bindKey(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// setup loads .env and configuration, then installs the JSON logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}
	if err := a.bindFlags(cmd); err != nil {
		return err
	}

	a.loader = config.NewLoaderWithViper(a.v)
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(a.logger)
	a.logger.Debug("configuration loaded",
		"file", a.loader.GetConfigFileUsed(), "command", cmd.CommandPath())
	return nil
}

// bindFlags binds the annotated flags of the executing command only, so
// flags with the same key on sibling commands do not shadow each other.
func (a *app) bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(keys[0], f)
	})
	return bindErr
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
