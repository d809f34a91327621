package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nzoschke/dreamsaver/internal/config"
	"github.com/nzoschke/dreamsaver/internal/middleware"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/spf13/cobra"
)

// TokenCmd issues a bearer token signed with AUTH_JWT_SECRET for local testing.
func TokenCmd() *cobra.Command {
	var (
		email  string
		plan   string
		expiry time.Duration
	)

	tokenCmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Issue a development bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to issue tokens in production")
			}

			verifier := middleware.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
			now := time.Now()
			token, err := verifier.Sign(model.Owner{ID: args[0], Email: email, Plan: plan}, jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			})
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	tokenCmd.Flags().StringVar(&email, "email", "", "owner email")
	tokenCmd.Flags().StringVar(&plan, "plan", model.PlanFree, "owner plan (free, pro, enterprise)")
	tokenCmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")

	return tokenCmd
}
