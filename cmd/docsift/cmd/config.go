package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/docsift/docsift/internal/config"
	serrors "github.com/docsift/docsift/internal/errors"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the docsift configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/docsift/config.yaml)
  3. Project config (.docsift.yaml in --dir)
  4. Environment variables (DOCSIFT_*)`,
		Example: `  # Create user config with defaults
  docsift config init

  # Show effective configuration
  docsift config show

  # Print user config file path
  docsift config path`,
	}

	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Write the default configuration to ~/.config/docsift/config.yaml
(or $XDG_CONFIG_HOME/docsift/config.yaml if XDG_CONFIG_HOME is set).

With --force an existing file is backed up next to it, then replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, a, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources, or a single source
with --source user or --source defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, a, source)
		},
	}

	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, a *app, force bool) error {
	out := a.output(cmd)
	path := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("", "Use --force to overwrite")
			return nil
		}
		backup, err := config.BackupUserConfig()
		if err != nil {
			return err
		}
		out.Statusf("📦", "Backed up to %s", backup)
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Created %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, a *app, source string) error {
	out := a.output(cmd)

	var cfg *config.Config
	switch source {
	case "merged":
		cfg = a.cfg
	case "defaults":
		cfg = config.NewConfig()
	case "user":
		user, err := config.LoadUserConfig()
		if err != nil {
			return err
		}
		if user == nil {
			return serrors.New(serrors.ErrCodeConfigNotFound,
				fmt.Sprintf("no user configuration at %s", config.GetUserConfigPath()), nil).
				WithSuggestion("run 'docsift config init' to create one")
		}
		cfg = user
	default:
		return serrors.ValidationError(fmt.Sprintf("unknown config source %q (want merged, user or defaults)", source), nil)
	}

	if out.JSONMode() {
		return out.JSON(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
