// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/agent"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

// runComponents holds the live services a session borrows for one task.
type runComponents struct {
	Driver  agent.Driver
	Planner llmclient.Planner

	stop func()
}

// Shutdown releases the components in reverse construction order.
func (rc *runComponents) Shutdown(logger *zap.Logger) {
	if rc.Planner != nil {
		if err := rc.Planner.Close(); err != nil {
			logger.Warn("Error closing model gateway client.", zap.Error(err))
		}
	}
	if rc.stop != nil {
		rc.stop()
	}
}

// componentFactory builds the driver and planner for runTask. Tests inject
// fakes through this seam.
type componentFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error)

// buildRunComponents is the production factory: a Chrome instance from the
// browser driver plus a planner for the configured gateway provider.
func buildRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	driver := browser.NewDriver(cfg.Browser, logger)
	if err := driver.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	planner, err := llmclient.NewPlanner(ctx, cfg, logger)
	if err != nil {
		driver.Stop()
		return nil, fmt.Errorf("failed to build model gateway client: %w", err)
	}

	return &runComponents{Driver: driver, Planner: planner, stop: driver.Stop}, nil
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(factory componentFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   `run "task description"`,
		Short: "Run one browser task end to end",
		Long: `Run opens the start page, then loops: screenshot to the model,
action from the model, action into the browser. The session log is printed
to stdout when the run ends, whether it finished or not.`,
		Example: `  pilot-cli run "find the cheapest direct flight to Lisbon on kayak.com"
  pilot-cli run --headless --max-steps 20 "look up the capital of Mongolia"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			applyRunFlagOverrides(cmd, cfg)

			startURL, err := cmd.Flags().GetString("start-url")
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			task := agent.Task{
				ID:       uuid.New().String(),
				Goal:     args[0],
				StartURL: startURL,
			}

			return runTask(ctx, logger, cfg, task, cmd.OutOrStdout(), factory)
		},
	}

	runCmd.Flags().String("start-url", "", "Page the task opens on. (Overrides config/env)")
	runCmd.Flags().Bool("headless", false, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().Int("max-steps", 0, "Step budget for the task. (Overrides config/env)")
	runCmd.Flags().String("provider", "", "Model gateway provider: 'openai' or 'gemini'. (Overrides config/env)")
	runCmd.Flags().String("model", "", "Model name sent to the gateway. (Overrides config/env)")
	runCmd.Flags().Duration("timeout", 0, "Wall clock limit for the whole task. 0 means no limit.")

	return runCmd
}

// applyRunFlagOverrides copies explicitly set run flags over the loaded
// config. Changed is the test, so a zero given on purpose (for example
// --max-steps 0) still counts as an override.
func applyRunFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Browser.Headless, _ = flags.GetBool("headless")
	}
	if flags.Changed("max-steps") {
		cfg.Agent.MaxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("provider") {
		cfg.Gateway.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Gateway.Model, _ = flags.GetString("model")
	}
}

// runTask wires one session together and executes it. The session log goes
// to out whatever the outcome; the returned error decides the exit code.
func runTask(ctx context.Context, logger *zap.Logger, cfg *config.Config, task agent.Task, out io.Writer, factory componentFactory) error {
	logger.Info("Starting task.",
		zap.String("task_id", task.ID),
		zap.String("goal", task.Goal),
		zap.String("provider", cfg.Gateway.Provider),
		zap.Int("max_steps", cfg.Agent.MaxSteps),
	)

	components, err := factory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize task components: %w", err)
	}
	defer components.Shutdown(logger)

	session, err := agent.NewSession(cfg.Agent, task, components.Driver, components.Planner, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	result, runErr := session.Run(ctx)
	if result != nil && result.Text() != "" {
		fmt.Fprintln(out, result.Text())
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Task aborted gracefully.", zap.String("task_id", task.ID))
			return fmt.Errorf("task aborted by user signal: %w", runErr)
		}
		logger.Error("Task failed.", zap.Error(runErr), zap.String("task_id", task.ID))
		return runErr
	}

	if result.State != agent.StateFinished {
		return fmt.Errorf("task did not finish: %s", result.Reason)
	}

	logger.Info("Task finished.",
		zap.String("task_id", task.ID),
		zap.Int("steps", result.Steps),
		zap.String("final_url", result.FinalURL),
	)
	return nil
}
