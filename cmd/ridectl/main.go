// Command ridectl drives a running ride API from the terminal: it issues
// rider tokens, prints ride state and replays speed profiles.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	api   string
	token string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ridectl",
		Short:         "Operate the scooter ride API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.api, "api", envOr("RIDECTL_API", "http://localhost:8080"), "Ride API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RIDECTL_TOKEN"), "Bearer token for ride mutations")

	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newDetailsCmd(opts))
	cmd.AddCommand(newSimulateCmd(opts))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
