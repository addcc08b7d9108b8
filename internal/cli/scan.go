package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/triage-ai/inspection/internal/api"
	"github.com/triage-ai/inspection/internal/lifecycle"
	"github.com/triage-ai/inspection/internal/server"
	"github.com/triage-ai/inspection/internal/storage"
)

func newScanCmd(a *app) *cobra.Command {
	var failOnBlock bool
	var userID, source string

	cmd := &cobra.Command{
		Use:   "scan [prompt...]",
		Short: "Inspect one prompt and print the result as JSON",
		Long: `Inspect a prompt given as arguments or piped on stdin, using the same
policy and detectors as the server. Nothing is sent over the network unless
--nlp-endpoint is set.`,
		Example: `  inspection scan "Here is my key: AKIA1234567890ABCDEF"
  cat prompt.txt | inspection scan --fail-on-block`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			manager := lifecycle.New(lifecycle.Config{
				PolicyPath:  a.cfg.ConfigPath,
				NewAnalyzer: lifecycle.RemoteAnalyzer(a.cfg.NLPEndpoint, a.cfg.NLPTimeout),
				Logger:      a.logger,
			})
			if err := manager.Run(cmd.Context()); err != nil {
				return &ExitError{Code: ExitConfig, Err: err}
			}

			inspector := server.NewInspectionServer(manager, server.Options{
				MaxConcurrent: 1,
				Writer:        storage.NewLogWriter(a.logger),
				Logger:        a.logger,
			})
			res, err := inspector.Inspect(cmd.Context(), server.Request{
				Prompt: prompt,
				Meta:   server.Meta{UserID: userID, Source: source},
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(api.NewInspectResponse(res)); err != nil {
				return err
			}
			if failOnBlock && !res.IsAllowed {
				return &ExitError{Code: ExitBlocked, Err: fmt.Errorf("prompt blocked: %s", res.Reason)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnBlock, "fail-on-block", false, "exit with status 3 when the prompt is blocked")
	cmd.Flags().StringVar(&userID, "user-id", "", "user id recorded with the event")
	cmd.Flags().StringVar(&source, "source", "cli", "source recorded with the event")
	return cmd
}

// readPrompt joins args, or reads stdin when no args are given. An
// interactive terminal on stdin is rejected rather than waited on.
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no prompt: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
