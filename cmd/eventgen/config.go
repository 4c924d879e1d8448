package main

import (
	"errors"
	"strings"
	"time"

	"github.com/geoaware/backend/internal/apiclient"
	"github.com/geoaware/backend/internal/eventgen"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initConfig layers the config file and EVENTGEN_* env over the defaults.
// Flags bound with mustBind win over both.
func initConfig() error {
	setDefaults()

	viper.SetEnvPrefix("EVENTGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("eventgen")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return eris.Wrap(err, "read config")
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("api.url", apiclient.DefaultConfig().BaseURL)
	viper.SetDefault("api.timeout", 10*time.Second)
	viper.SetDefault("live.interval", 2*time.Second)
	viper.SetDefault("seed.sessions", eventgen.DefaultSeedSessions)
	viper.SetDefault("crowd.visits", 4)
}

func mustBind(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func mustBindPersistent(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}
