package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MJE43/raid-extract/internal/api"
	"github.com/MJE43/raid-extract/internal/config"
	"github.com/MJE43/raid-extract/internal/credentials"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage player tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue [player-id]",
		Short: "Sign a bearer token with the server secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			playerID := uuid.NewString()
			if len(args) == 1 {
				playerID = args[0]
			}
			tok, err := api.NewTokens(cfg.TokenSecret, cfg.TokenIssuer).Issue(playerID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "player:", playerID)
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var (
		profile string
		token   string
		logout  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a player token in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := credentials.NewStore(credentialService, credentials.DefaultFallbackPath())
			if logout {
				if err := store.Delete(profile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed token for %s\n", profile)
				return nil
			}

			if strings.TrimSpace(token) == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return err
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("token is required")
			}
			if err := store.SetToken(profile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved token for %s\n", profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "default", "credential profile")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (prompted when empty)")
	cmd.Flags().BoolVar(&logout, "logout", false, "remove the stored token")
	return cmd
}
