package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/internal/credential"
	"github.com/sing3demons/oryfm/internal/database"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "oryfm",
		Short:         "Login, consent and logout provider for an OAuth2 server, backed by FileMaker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			godotenv.Load()
		},
	}

	root.AddCommand(serveCmd(), hashPasswordCmd(), auditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfigManager().GetConfig()
			if err := cfg.LoadDefaults(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// hash-password prints a current-scheme hash, for seeding identity store
// records by hand.
func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a password with the configured argon2id parameters (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			cfg := config.NewConfigManager().GetConfig()
			if err := cfg.Argon2.Validate(); err != nil {
				return err
			}
			hash, err := credential.NewPolicy(cfg.Argon2).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var (
		subject string
		limit   int64
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the recorded audit events of a subject (needs MONGO_URI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			cfg := config.NewConfigManager().GetConfig()
			if !cfg.MongoEnabled() {
				return fmt.Errorf("%w: MONGO_URI is not set", config.ErrInvalidConfig)
			}

			db, err := database.NewDatabase(cfg.MongoConfig)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			repo, err := audit.NewMongoRepository(ctx, db)
			if err != nil {
				return err
			}
			events, err := repo.FindBySubject(ctx, subject, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject (user id) to list events for")
	cmd.Flags().Int64Var(&limit, "limit", 20, "maximum number of events, newest first")
	return cmd
}
