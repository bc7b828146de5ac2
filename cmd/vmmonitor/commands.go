package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OldStager01/cloud-vm-monitor/internal/auth"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/orchestrator"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database/queries"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return runMigrations(contextOrBackground(cmd.Context()), db, cfg.Database.MigrationTimeout)
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [job]",
		Short: "Run one job tick immediately and print its record; lists jobs without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := contextOrBackground(cmd.Context())

			rt, err := buildRuntime(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			orch, err := rt.orchestrator()
			if err != nil {
				return err
			}
			if err := orch.Start(false); err != nil {
				return err
			}
			defer orch.Stop()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range orch.Jobs() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			run, err := orch.RunNow(ctx, args[0])
			if run == nil {
				if errors.Is(err, orchestrator.ErrUnknownJob) {
					return fmt.Errorf("%w: %s (known: %s)", err, args[0], strings.Join(orch.Jobs(), ", "))
				}
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(run); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id> <username>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			svc := auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration, cfg.API.JWTIssuer)
			token, err := svc.GenerateToken(args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newPasswdCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a user's API login password, read from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			users := queries.NewUserRepository(db.DB)
			if err := setPassword(contextOrBackground(cmd.Context()), users, args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
			return nil
		},
	}
}

func newInstancesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instances <provider> [region]",
		Short: "List the instances a provider reports, for registering VMs",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := contextOrBackground(cmd.Context())

			rt, err := buildRuntime(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			region := ""
			if len(args) == 2 {
				region = args[1]
			}
			return listInstances(ctx, rt.registry, models.Provider(args[0]), region, cmd.OutOrStdout())
		},
	}
}

func listInstances(ctx context.Context, registry *cloud.Registry, provider models.Provider, region string, out io.Writer) error {
	adapter, err := registry.For(provider)
	if err != nil {
		return err
	}
	instances, err := adapter.ListInstances(ctx, region)
	if err != nil {
		return fmt.Errorf("failed to list %s instances: %w", provider, err)
	}
	if instances == nil {
		instances = []cloud.Instance{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(instances)
}

func readPassword(in io.Reader) (string, error) {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	return password, nil
}

func setPassword(ctx context.Context, users store.CredentialStore, username, password string) error {
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user %q: %w", username, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	logger.WithUser(user.ID).Info("Password updated")
	return nil
}
