package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/middleware"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/app/modules"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

func tokenCmd() *cobra.Command {
	var (
		user      domain.User
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed API token",
		Long: "Mint an HS256 token signed with security.worker_secret. Worker processes and\n" +
			"out-of-process drivers use a --worker token for the worker API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, exp, err := mintToken(cfg, user, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user.ID, "user", "", "User ID (sub claim)")
	cmd.Flags().BoolVar(&user.Admin, "admin", false, "Grant admin rights")
	cmd.Flags().BoolVar(&user.Worker, "worker", false, "Mint a worker/driver token (implies --admin)")
	cmd.Flags().StringSliceVar(&user.ManagedWorkspaces, "workspaces", nil, "Workspaces the user manages")
	cmd.Flags().DurationVar(&expiresIn, "ttl", 0, "Token lifetime (default: security.worker_token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func mintToken(cfg *config.Config, user domain.User, ttl time.Duration) (string, time.Time, error) {
	if user.ID == "" {
		return "", time.Time{}, fmt.Errorf("user is required")
	}
	if user.Worker {
		user.Admin = true
	}
	jwtCfg := modules.JWTConfig(cfg)
	if ttl > 0 {
		jwtCfg.ExpiresIn = ttl
	}
	tok, exp, err := middleware.GenerateToken(jwtCfg, user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}
