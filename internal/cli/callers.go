package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/inspection/internal/store"
)

func newCallersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callers",
		Short: "Manage API callers in the Postgres caller store",
	}
	cmd.PersistentFlags().String("postgres-dsn", "", "Postgres DSN (default: $INSPECTION_POSTGRES_DSN)")
	cmd.AddCommand(newCallersCreateCmd(a), newCallersListCmd(a), newCallersDisableCmd(a))
	return cmd
}

// withStore opens the caller store, runs fn, and closes it.
func withStore(ctx context.Context, a *app, fn func(*store.Store) error) error {
	if a.cfg.PostgresDSN == "" {
		return &ExitError{Code: ExitConfig, Err: errors.New("postgres_dsn is required (--postgres-dsn or INSPECTION_POSTGRES_DSN)")}
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s := store.NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return fn(s)
}

func newCallersCreateCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a caller and print its API key (shown once)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), a, func(s *store.Store) error {
				c, key, err := s.CreateCaller(cmd.Context(), name)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:      %s\n", c.ID)
				fmt.Fprintf(out, "name:    %s\n", c.Name)
				fmt.Fprintf(out, "api_key: %s\n", key)
				fmt.Fprintln(out, "Store the key now; it cannot be shown again.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "caller name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCallersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), a, func(s *store.Store) error {
				callers, err := s.ListCallers(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tDISABLED\tCREATED")
				for _, c := range callers {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
						c.ID, c.Name, c.APIKeyPrefix, c.Disabled, c.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newCallersDisableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a caller's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), a, func(s *store.Store) error {
				if err := s.DisableCaller(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("caller %s not found", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "caller %s disabled\n", args[0])
				return nil
			})
		},
	}
}
