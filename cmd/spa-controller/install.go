package main

import (
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/spa-controller/system/startup"
)

var installOpts startup.ServiceOptions

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install spa-controller as a systemd service",
	RunE: func(cmd *cobra.Command, args []string) error {
		installOpts.ConfigFile = configFile
		return startup.InstallService(installOpts)
	},
}

func init() {
	installCmd.Flags().StringVar(&installOpts.UnitPath, "unit-path", startup.DefaultUnitPath, "Where to write the unit file")
	installCmd.Flags().StringVar(&installOpts.Binary, "binary", "", "Binary to run (default: this executable)")
	installCmd.Flags().StringVar(&installOpts.User, "user", "", "User to run the service as")
	installCmd.Flags().StringVar(&installOpts.WorkingDir, "workdir", "", "Working directory for the service")
	installCmd.Flags().BoolVar(&installOpts.Enable, "enable", false, "Reload systemd and enable the service now")

	rootCmd.AddCommand(installCmd)
}
