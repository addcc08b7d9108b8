// Package cli provides the command-line interface for the inspection
// service.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/config"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitConfig  = 2 // invalid settings or policy
	ExitBlocked = 3 // scan --fail-on-block found a blocking finding
)

// ExitError carries a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for err: the ExitError code when present,
// ExitGeneral otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitGeneral
}

// app is the state shared by subcommands after flag parsing.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "inspection",
		Short: "Prompt inspection service",
		Long: `Inspects LLM prompts for secrets, personal data and prompt injection
against a declarative detection policy, and decides allow or block.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return &ExitError{Code: ExitConfig, Err: fmt.Errorf("config: %w", err)}
			}
			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("config-path", "", "policy file (default: $INSPECTION_CONFIG_PATH, then bundled policy)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newScanCmd(a),
		newPolicyCmd(a),
		newCallersCmd(a),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
