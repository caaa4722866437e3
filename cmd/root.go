// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

// contextKey scopes values this package stores on the command context.
type contextKey string

// configKey carries the loaded *config.Config from PersistentPreRunE to the
// RunE of whichever subcommand executes.
const configKey contextKey = "config"

// NewRootCommand builds a fresh command tree. Every call returns a new
// instance so flag state never leaks between executions.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pilot-cli",
		Short: "Pilot drives a real browser with a computer use model.",
		Long: `Pilot hands a Chrome window to a computer use model and steps it
through a task: the model looks at screenshots, answers with mouse and
keyboard actions, and pilot executes them until the model reports a
final answer or the step budget runs out.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand, setting up config and logging.
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				v.Set("logger.level", "debug")
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// A fallback logger so the failure is visible somewhere.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pilot-cli"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting pilot-cli.", zap.String("version", Version))

			// Subcommands read the validated config back off the context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./.pilot.yaml, then ~/.pilot.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "force debug level logging")

	rootCmd.AddCommand(newRunCmd(buildRunComponents))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute builds the command tree and runs it under the given context. The
// caller owns the process exit code; context.Canceled comes back unwrapped
// so a signal driven shutdown can map to a clean exit.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Run interrupted.")
		} else {
			observability.GetLogger().Error("Command failed.", zap.Error(err))
		}
		observability.Sync()
		return err
	}
	observability.Sync()
	return nil
}

// initializeConfig points viper at the config file and environment. An
// explicitly named file must exist; the default search locations may not.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".pilot")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; proceed with defaults and env vars.
	}
	return nil
}

// configFromContext pulls the config that PersistentPreRunE stored.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}
