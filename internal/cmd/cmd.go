// Package cmd holds the root command of the parking-monitor CLI.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rhulsman/parking-monitor/internal/cmd/monitor"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "parking-monitor",
		Short: "Monitors visitor parking accounts and auto-ends reservations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd)
}

var args = charmer.Arguments{
	"debug":                 charmer.Argument{Default: false, Help: "Log debug messages"},
	"timezone":              charmer.Argument{Default: "", Help: "Time zone for the parking schedule (default: system)"},
	"provider.municipality": charmer.Argument{Default: "", Help: "Municipality selection (api host or provider name)"},
	"provider.username":     charmer.Argument{Default: "", Help: "Provider username"},
	"provider.identifier":   charmer.Argument{Default: "", Help: "Provider account identifier"},
	"provider.password":     charmer.Argument{Default: "", Help: "Provider password"},
	"provider.apiHost":      charmer.Argument{Default: "", Help: "Provider api host override"},
	"poller.interval":       charmer.Argument{Default: 5 * time.Minute, Help: "Account poll interval"},
	"exporter.addr":         charmer.Argument{Default: ":9090", Help: "Address of Prometheus exporter"},
	"health.addr":           charmer.Argument{Default: ":8080", Help: "Address of /health endpoint"},
	"api.addr":              charmer.Argument{Default: ":8081", Help: "Address of the REST API"},
	"store.path":            charmer.Argument{Default: "created-reservations.yaml", Help: "Path of the reservation ownership store"},
	"autoEnd.enabled":       charmer.Argument{Default: true, Help: "End own reservations when the paid window closes"},
	"autoEnd.debounce":      charmer.Argument{Default: time.Second, Help: "Store prune debounce interval"},
	"slack.token":           charmer.Argument{Default: "", Help: "Slack token"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/parking-monitor/")
		viper.AddConfigPath("$HOME/.parking-monitor")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("PARKING_MONITOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
