package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"scooter-ride/internal/ride"

	"github.com/spf13/cobra"
)

var sleepFn = time.Sleep

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		email   string
		scooter string
		profile string
		step    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Ride a scooter through a speed profile",
		Long: `Select the scooter, start a ride, apply each speed in --profile for
--step, then end the ride and print the final token count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			speeds, err := parseProfile(profile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			client := newAPIClient(opts)

			if _, err := client.SetRider(email, scooter); err != nil {
				return fmt.Errorf("set rider: %w", err)
			}
			status, err := client.Start()
			if err != nil {
				return fmt.Errorf("start ride: %w", err)
			}
			fmt.Fprintf(out, "started %s\n", status.State.SessionID)

			for _, speed := range speeds {
				status, err = client.SetSpeed(speed)
				if err != nil {
					_, _ = client.End()
					return fmt.Errorf("set speed %d: %w", speed, err)
				}
				fmt.Fprintf(out, "speed=%d tokens=%d\n", status.State.CurrentSpeed, status.State.TokensUsed)
				sleepFn(step)
			}

			if status, err = client.Status(); err == nil {
				fmt.Fprintf(out, "tokens before end=%d\n", status.State.TokensUsed)
			}
			status, err = client.End()
			if err != nil {
				return fmt.Errorf("end ride: %w", err)
			}
			fmt.Fprintf(out, "ended, phase=%s\n", status.Phase)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Rider email (defaults to the token's email)")
	cmd.Flags().StringVar(&scooter, "scooter", "", "Scooter id")
	cmd.Flags().StringVar(&profile, "profile", "10,20,30,20,0", "Comma separated speeds")
	cmd.Flags().DurationVar(&step, "step", 2*time.Second, "Time spent at each speed")
	_ = cmd.MarkFlagRequired("scooter")
	return cmd
}

func parseProfile(profile string) ([]int, error) {
	var speeds []int
	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("profile speed %q: %w", part, err)
		}
		if v < ride.MinSpeed || v > ride.MaxSpeed {
			return nil, fmt.Errorf("profile speed %d outside %d..%d", v, ride.MinSpeed, ride.MaxSpeed)
		}
		speeds = append(speeds, v)
	}
	if len(speeds) == 0 {
		return nil, fmt.Errorf("empty speed profile")
	}
	return speeds, nil
}
