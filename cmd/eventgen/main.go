package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/geoaware/backend/internal/apiclient"
	"github.com/geoaware/backend/internal/eventgen"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	cliLog = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "eventgen"})

	// set in PersistentPreRunE
	client   *apiclient.Client
	loggedIn string
)

var rootCmd = &cobra.Command{
	Use:   "eventgen",
	Short: "GeoAware event generator - simulated visitor traffic",
	Long: `eventgen drives a running GeoAware backend with entry, content_view
and exit events. Every user follows a valid visit: an entry, at most one
content view, then an exit from the same geofence.

Configuration comes from flags, EVENTGEN_* environment variables or a
config file (--config).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		if verbose {
			cliLog.SetLevel(log.DebugLevel)
		}
		return connect(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	pf.String("api", "", "API base URL (default http://localhost:8787)")
	pf.String("token", "", "Bearer token; skips login")
	pf.String("username", "", "Admin username used to log in")
	pf.String("password", "", "Admin password used to log in")
	pf.Uint64("random-seed", 0, "Seed for reproducible runs (0 = random)")

	mustBindPersistent("api.url", "api")
	mustBindPersistent("auth.token", "token")
	mustBindPersistent("auth.username", "username")
	mustBindPersistent("auth.password", "password")
	mustBindPersistent("random_seed", "random-seed")

	rootCmd.AddCommand(seedCmd, liveCmd, crowdCmd, sessionCmd, migrateCmd, deviceCmd)
}

// connect builds the API client and authenticates it
func connect(ctx context.Context) error {
	cfg := apiclient.DefaultConfig()
	cfg.BaseURL = viper.GetString("api.url")
	cfg.Timeout = viper.GetDuration("api.timeout")
	client = apiclient.New(cfg)

	if token := viper.GetString("auth.token"); token != "" {
		client.SetToken(token)
		return nil
	}

	username := viper.GetString("auth.username")
	password := viper.GetString("auth.password")
	if username != "" && password == "" {
		pw, ok, err := promptPassword(username)
		if err != nil {
			return eris.Wrap(err, "read password")
		}
		if ok {
			password = pw
		}
	}
	if username == "" || password == "" {
		return eris.New("set EVENTGEN_TOKEN or EVENTGEN_USERNAME and EVENTGEN_PASSWORD")
	}
	resp, err := client.Login(ctx, username, password)
	if err != nil {
		return eris.Wrapf(err, "log in as %s", username)
	}
	loggedIn = resp.User.ID
	cliLog.Info("Logged in", "user", resp.User.Username, "role", resp.User.Role)
	return nil
}

// newGenerator loads users and fences and prints every accepted event
func newGenerator(ctx context.Context) (*eventgen.Generator, error) {
	g := eventgen.New(client,
		eventgen.WithSeed(viper.GetUint64("random_seed")),
		eventgen.WithLogger(cliLog),
		eventgen.OnEvent(printEvent),
	)
	if err := g.Load(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(eris.ToString(err, verbose)))
		os.Exit(1)
	}
}
