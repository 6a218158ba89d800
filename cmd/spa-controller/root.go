package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "spa-controller",
	Short: "Balboa spa controller behind the vendor cloud relay",
	Long: `spa-controller polls a Balboa spa through the vendor cloud relay and
exposes its temperatures, jets and LED over a small REST API.

Configuration is read from configs/config.yml (or --config), SPA_ prefixed
environment variables and flags, in increasing order of precedence. Relay
requests use the vendor app account unless SPA_RELAY_USERNAME and
SPA_RELAY_PASSWORD are both set.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default configs/config.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("device-id", "", "Device id; resolved from the public IP when empty")

	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("device_id", rootCmd.PersistentFlags().Lookup("device-id"))
}
