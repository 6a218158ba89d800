package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thatsimonsguy/spa-controller/internal/config"
	"github.com/thatsimonsguy/spa-controller/internal/hottub"
	"github.com/thatsimonsguy/spa-controller/internal/logging"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/notifications"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
)

var (
	configFile string
	timeout    time.Duration
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "spa-debug",
	Short: "One-shot spa operations through the cloud relay",
	Long: `spa-debug runs a single read or command against the spa and exits.

It reads the same configuration as spa-controller. Commands wait for a fresh
poll before reading, so the first call after startup takes a few seconds.`,
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the decoded spa status",
	Args:  cobra.NoArgs,
	RunE: withSpa(func(ctx context.Context, spa *hottub.Spa, args []string) error {
		st, err := spa.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Print(st)
		return nil
	}),
}

var ledCmd = &cobra.Command{
	Use:   "led [off|cycle|toggle]",
	Short: "Show or change the LED state",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSpa(func(ctx context.Context, spa *hottub.Spa, args []string) error {
		if len(args) == 0 {
			led, err := spa.LED(ctx)
			if err != nil {
				return err
			}
			fmt.Println("LED:", led)
			return nil
		}
		if args[0] == "toggle" {
			led, err := spa.ToggleLED(ctx)
			if err != nil {
				return err
			}
			fmt.Println("LED:", led)
			return nil
		}
		desired, err := model.ParseLEDState(args[0])
		if err != nil {
			return err
		}
		return spa.SetLED(ctx, desired)
	}),
}

var jetCmd = &cobra.Command{
	Use:   "jet <1|2> [off|low|high]",
	Short: "Show or change a jet speed",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withSpa(func(ctx context.Context, spa *hottub.Spa, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || (n != 1 && n != 2) {
			return fmt.Errorf("jet must be 1 or 2, got %q", args[0])
		}
		if len(args) == 1 {
			jets, err := spa.Jets(ctx)
			if err != nil {
				return err
			}
			if !jets.Recognized {
				return fmt.Errorf("unrecognized jet code %s", jets.Code)
			}
			speed := jets.Jet1
			if n == 2 {
				speed = jets.Jet2
			}
			fmt.Printf("Jet %d: %s\n", n, speed)
			return nil
		}
		desired, err := model.ParseJetSpeed(args[1])
		if err != nil {
			return err
		}
		if n == 1 {
			return spa.SetJet1(ctx, desired)
		}
		return spa.SetJet2(ctx, desired)
	}),
}

var tempCmd = &cobra.Command{
	Use:   "temp [target]",
	Short: "Show temperatures or set the target",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSpa(func(ctx context.Context, spa *hottub.Spa, args []string) error {
		if len(args) == 1 {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("target must be a whole number: %w", err)
			}
			return spa.SetTargetTemperature(ctx, target)
		}
		t, err := spa.Temperatures(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Current: %d%s  Target: %d%s\n", t.Current, t.Unit, t.Target, t.Unit)
		return nil
	}),
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run the chemical circulation cycle and wait for it to finish",
	Args:  cobra.NoArgs,
	RunE: withSpa(func(ctx context.Context, spa *hottub.Spa, args []string) error {
		id, err := spa.StartChemicalCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Started chemical cycle", id)
		for spa.ChemicalCycleRunning() {
			time.Sleep(time.Second)
		}
		if run, ok := spa.LastChemicalCycle(); ok && run.Error != "" {
			return fmt.Errorf("chemical cycle %s failed: %s", run.ID, run.Error)
		}
		fmt.Println("Chemical cycle complete")
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default configs/config.yml)")
	rootCmd.PersistentFlags().String("device-id", "", "Device id; resolved from the public IP when empty")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	_ = v.BindPFlag("device_id", rootCmd.PersistentFlags().Lookup("device-id"))

	rootCmd.AddCommand(statusCmd, ledCmd, jetCmd, tempCmd, cycleCmd)
}

type spaFunc func(ctx context.Context, spa *hottub.Spa, args []string) error

// withSpa loads config, starts polling and hands the running engine to fn.
func withSpa(fn spaFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		if err := logging.Init(cfg.LogLevel, ""); err != nil {
			return err
		}

		client := relay.NewClient(cfg.Relay.ClientOptions())

		// The engine outlives --timeout so a started cycle can finish.
		engineCtx, stop := context.WithCancel(context.Background())
		defer stop()
		ctx, cancel := context.WithTimeout(engineCtx, timeout)
		defer cancel()

		notifier := notifications.New(cfg.Ntfy.URL, cfg.Ntfy.Topic)
		spa, err := hottub.New(ctx, client, notifier, hottub.OptionsFrom(cfg))
		if err != nil {
			return err
		}
		spa.Start(engineCtx)

		return fn(ctx, spa, args)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
