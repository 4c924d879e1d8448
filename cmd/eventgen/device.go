package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fatih/color"
	"github.com/geoaware/backend/internal/eventgen"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/geofencing"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// metersPerDegree is the length of one degree of latitude
const metersPerDegree = 111320.0

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Simulate a phone walking in and out of every geofence",
	Long: `device runs the on-device geofencing monitor against the live fence
list. For each fence the simulated phone starts outside its monitoring
circle, walks to the middle and walks back out. Confirmed transitions are
reported to the backend as the chosen user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		userID := viper.GetString("device.user")
		if userID == "" {
			userID = loggedIn
		}
		if userID == "" {
			return eris.New("--user is required when authenticating with a token")
		}

		monitor := geofencing.NewMonitor(
			geofencing.WithReporter(geofencing.NewAPIReporter(client, userID)),
			geofencing.WithNotifier(consoleNotifier{}),
			geofencing.WithPrivacy(viper.GetBool("device.privacy")),
		)
		regions, err := geofencing.SyncFences(ctx, client, monitor)
		if err != nil {
			return eris.Wrap(err, "sync fences")
		}
		cliLog.Info("Monitoring regions", "count", len(regions), "privacy", viper.GetBool("device.privacy"))

		fences, err := client.Geofences(ctx)
		if err != nil {
			return eris.Wrap(err, "load geofences")
		}
		byID := make(map[string]geo.Geometry, len(fences))
		for _, f := range fences {
			byID[f.ID] = f.Geometry
		}

		rng := gofakeit.New(viper.GetUint64("random_seed"))
		for _, r := range regions {
			inside, err := eventgen.ViewPoint(rng, byID[r.Identifier])
			if err != nil {
				cliLog.Warn("Skipping fence", "id", r.Identifier, "err", err)
				continue
			}
			away := geo.LatLon{Lat: r.Latitude + 2*r.RadiusMeters/metersPerDegree, Lon: r.Longitude}

			for _, p := range []geo.LatLon{away, inside, away} {
				if err := walkTo(ctx, monitor, p); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func walkTo(ctx context.Context, m *geofencing.Monitor, p geo.LatLon) error {
	transitions, err := m.UpdateLocation(ctx, p.Lat, p.Lon)
	for _, t := range transitions {
		c := entry
		if t.Outcome == geofencing.OutcomeExited {
			c = exit
		}
		fmt.Fprintf(color.Output, "%s\n", c.Sprintf("(%.5f, %.5f) %-8s %s", p.Lat, p.Lon, t.Outcome, t.FenceID))
	}
	if err != nil {
		return eris.Wrap(err, "report transition")
	}
	return nil
}

type consoleNotifier struct{}

func (consoleNotifier) Notify(_ context.Context, n geofencing.Notification) error {
	_, err := warning.Fprintf(color.Output, "  %s %s\n", n.Title, n.Body)
	return err
}

func init() {
	deviceCmd.Flags().String("user", "", "User ID the events are reported for (default: logged-in user)")
	deviceCmd.Flags().Bool("privacy", false, "Cloak reported coordinates")
	mustBind(deviceCmd, "device.user", "user")
	mustBind(deviceCmd, "device.privacy", "privacy")
}
