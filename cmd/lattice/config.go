package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/pthm/lattice/internal/cli"
)

var (
	configShowSource bool
	configShowFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long: `Show the configuration every command runs with after merging defaults, the
config file, .env and LATTICE_* environment variables. The database password,
the password inside database.url and serve.jwt_secret are masked.`,
	Example: `  # Show effective configuration
  lattice config show

  # As JSON, reporting the config file that was loaded on stderr
  lattice config show --format json --source`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(cmd.OutOrStdout(), cmd.ErrOrStderr(), configShowFormat, configShowSource)
	},
}

var configDSNCmd = &cobra.Command{
	Use:   "dsn",
	Short: "Show the database connection string migrate and serve would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := cfg.Redacted()
		dsn, err := redacted.DSN()
		if err != nil {
			return cli.ConfigError("database configuration", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dsn)
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowSource, "source", false, "report the config file path on stderr")
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml", "output format: yaml or json")
	configCmd.AddCommand(configShowCmd, configDSNCmd)
}

// showConfig writes the redacted configuration to w. The config file path goes
// to errw so the output stays parseable.
func showConfig(w, errw io.Writer, format string, source bool) error {
	if source {
		path := configPath
		if path == "" {
			path = "(none, using defaults)"
		}
		fmt.Fprintf(errw, "Config file: %s\n", path)
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return cli.GeneralError("encoding configuration", err)
	}
	switch format {
	case "yaml":
	case "json":
		if out, err = yaml.YAMLToJSON(out); err != nil {
			return cli.GeneralError("encoding configuration", err)
		}
		out = append(out, '\n')
	default:
		return cli.ConfigError(fmt.Sprintf("unknown format %q (want yaml or json)", format), nil)
	}
	_, err = w.Write(out)
	return err
}
