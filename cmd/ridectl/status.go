package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current ride state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := newAPIClient(opts).Status()
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newDetailsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "details",
		Short: "Show the remote session's detailed status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			details, err := newAPIClient(opts).Details()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(details))
			return nil
		},
	}
}

func printStatus(w io.Writer, s rideStatus) {
	fmt.Fprintf(w, "Phase:    %s\n", s.Phase)
	fmt.Fprintf(w, "Rider:    %s\n", orDash(s.State.Email))
	fmt.Fprintf(w, "Scooter:  %s\n", orDash(s.State.ScooterID))
	fmt.Fprintf(w, "Session:  %s\n", orDash(s.State.SessionID))
	fmt.Fprintf(w, "Active:   %t\n", s.State.Active)
	fmt.Fprintf(w, "Speed:    %d\n", s.State.CurrentSpeed)
	fmt.Fprintf(w, "Tokens:   %d\n", s.State.TokensUsed)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
