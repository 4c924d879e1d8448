package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/geoaware/backend/internal/eventgen"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a week of historical visits",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		n := viper.GetInt("seed.sessions")
		cliLog.Info("Generating history", "sessions", n, "days", 7)

		sent, err := g.Seed(cmd.Context(), n)
		if err != nil {
			return err
		}
		bold.Printf("History generated: %s events, %d users still inside\n", humanize.Comma(int64(sent)), g.Sessions().Len())
		return nil
	},
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Emit random valid events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		interval := viper.GetDuration("live.interval")
		cliLog.Info("Live traffic started, Ctrl+C to stop", "interval", interval)
		return g.Live(cmd.Context(), interval)
	},
}

var crowdCmd = &cobra.Command{
	Use:   "crowd",
	Short: "Simulate a burst of short visits",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		return noCandidateIsWarning(g.Crowd(cmd.Context(), viper.GetInt("crowd.visits")))
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Walk one user through entry, content view and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		return noCandidateIsWarning(g.FullSession(cmd.Context()))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <fence-name>",
	Short: "Move every user into the first geofence whose name matches",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		match := "park"
		if len(args) == 1 {
			match = args[0]
		}
		target, err := g.Migrate(cmd.Context(), match)
		if err != nil {
			return err
		}
		bold.Printf("Everyone is now in %s\n", target.Name)
		return nil
	},
}

func noCandidateIsWarning(err error) error {
	if errors.Is(err, eventgen.ErrNoCandidate) {
		cliLog.Warn(fmt.Sprint(err))
		return nil
	}
	return err
}

func init() {
	seedCmd.Flags().Int("sessions", eventgen.DefaultSeedSessions, "Number of visits to generate")
	liveCmd.Flags().Duration("interval", 0, "Delay between events (default 2s)")
	crowdCmd.Flags().Int("visits", 4, "Number of visits in the burst")

	mustBind(seedCmd, "seed.sessions", "sessions")
	mustBind(liveCmd, "live.interval", "interval")
	mustBind(crowdCmd, "crowd.visits", "visits")
}
