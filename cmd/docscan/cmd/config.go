package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/docscan/internal/config"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file with the default settings",
		Long: `Write the default configuration to docscan.yaml (or the given path).
Existing files are never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		// Skips configuration loading so a broken file can be replaced.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			if path == "" {
				path = config.ConfigFileName + ".yaml"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after merging defaults, the config file, environment
variables and flags. Secrets are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			out, err := renderConfig(a.cfg, asJSON)
			if err != nil {
				return err
			}
			if used := a.loader.GetConfigFileUsed(); used != "" {
				slog.Debug("configuration file", "path", used)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	showCmd.Flags().Bool("json", false, "print as JSON instead of YAML")

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "Show the config file in use and the directories searched for docscan.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.loader.PrintConfigInfo(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathsCmd)
	return cmd
}

// renderConfig prints cfg with the API key and PDF password blanked.
func renderConfig(cfg *config.Config, asJSON bool) (string, error) {
	redacted := *cfg
	if redacted.Fallback.APIKey != "" {
		redacted.Fallback.APIKey = "<redacted>"
	}
	if redacted.PDF.Password != "" {
		redacted.PDF.Password = "<redacted>"
	}
	if asJSON {
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}
	data, err := yaml.Marshal(redacted)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
