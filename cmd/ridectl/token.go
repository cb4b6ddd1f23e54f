package main

import (
	"fmt"

	"scooter-ride/internal/auth"
	"scooter-ride/internal/config"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var email, secret string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a rider",
		Long: `Sign an access token for --email with the API's JWT secret. The
secret defaults to JWT_SECRET from the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = config.Load().JWTSecret
			}
			tokens, err := auth.NewService(secret).IssueToken(email)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokens.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Rider email address")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
