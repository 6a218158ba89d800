// Package hottub wires the relay client, device locator, poller, state store
// and command sequencer into one engine per spa.
package hottub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/config"
	"github.com/thatsimonsguy/spa-controller/internal/controller"
	"github.com/thatsimonsguy/spa-controller/internal/controllers/chemicalcycle"
	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/locator"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/poller"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/internal/state"
)

var ErrTargetOutOfRange = errors.New("target temperature out of range")

type Options struct {
	// DeviceID skips the directory lookup when set.
	DeviceID     string
	DirectoryURL string
	PublicIPURL  string
	LookupRetry  relay.RetryPolicy
	PollInterval time.Duration

	// Target temperature bounds in Fahrenheit. Zero disables the check.
	TargetTempMin int
	TargetTempMax int
}

type Spa struct {
	deviceID string
	store    *state.Store
	poller   *poller.Poller
	ctrl     *controller.Controller
	cycle    *chemicalcycle.Cycle

	minTemp int
	maxTemp int
}

// OptionsFrom maps the loaded config onto engine options.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		DeviceID:      cfg.DeviceID,
		DirectoryURL:  cfg.Relay.DirectoryURL,
		PublicIPURL:   cfg.Relay.PublicIPURL,
		LookupRetry:   cfg.Relay.LookupRetry(),
		PollInterval:  cfg.PollInterval(),
		TargetTempMin: cfg.API.TargetTempMin,
		TargetTempMax: cfg.API.TargetTempMax,
	}
}

// New resolves the device id and assembles the engine. It does not poll until
// Start is called.
func New(ctx context.Context, client *relay.Client, notifier chemicalcycle.Notifier, opts Options) (*Spa, error) {
	deviceID := opts.DeviceID
	if deviceID == "" {
		loc := locator.New(client.WithRetry(opts.LookupRetry), opts.DirectoryURL, opts.PublicIPURL)
		id, err := loc.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve device id: %w", err)
		}
		deviceID = id
	}

	store := state.NewStore()
	ctrl := controller.New(deviceID, client, store)
	return &Spa{
		deviceID: deviceID,
		store:    store,
		poller:   poller.New(deviceID, client, store, opts.PollInterval),
		ctrl:     ctrl,
		cycle:    chemicalcycle.New(ctrl, notifier),
		minTemp:  opts.TargetTempMin,
		maxTemp:  opts.TargetTempMax,
	}, nil
}

// Start runs the poller until ctx is done.
func (s *Spa) Start(ctx context.Context) {
	log.Info().Str("device_id", s.deviceID).Msg("Starting spa engine")
	s.poller.Start(ctx)
}

func (s *Spa) DeviceID() string {
	return s.deviceID
}

func (s *Spa) panel(ctx context.Context) (model.Buffers, error) {
	return s.store.Read(ctx)
}

func (s *Spa) Temperatures(ctx context.Context) (model.Temperatures, error) {
	b, err := s.panel(ctx)
	if err != nil {
		return model.Temperatures{}, err
	}
	unit, err := decoder.TemperatureUnit(b.Panel)
	if err != nil {
		return model.Temperatures{}, err
	}
	current, err := decoder.CurrentTemperature(b.Panel)
	if err != nil {
		return model.Temperatures{}, err
	}
	target, err := decoder.TargetTemperature(b.Panel)
	if err != nil {
		return model.Temperatures{}, err
	}
	return model.Temperatures{Unit: unit, Current: current, Target: target}, nil
}

func (s *Spa) TemperatureUnit(ctx context.Context) (model.TemperatureUnit, error) {
	b, err := s.panel(ctx)
	if err != nil {
		return model.UnitUnknown, err
	}
	return decoder.TemperatureUnit(b.Panel)
}

func (s *Spa) LED(ctx context.Context) (model.LEDState, error) {
	b, err := s.panel(ctx)
	if err != nil {
		return 0, err
	}
	return decoder.LED(b.Panel)
}

func (s *Spa) Jets(ctx context.Context) (model.JetReading, error) {
	b, err := s.panel(ctx)
	if err != nil {
		return model.JetReading{}, err
	}
	return decoder.Jets(b.Panel)
}

func (s *Spa) SetLED(ctx context.Context, desired model.LEDState) error {
	return s.ctrl.SetLED(ctx, desired)
}

func (s *Spa) ToggleLED(ctx context.Context) (model.LEDState, error) {
	return s.ctrl.ToggleLED(ctx)
}

func (s *Spa) SetJet1(ctx context.Context, desired model.JetSpeed) error {
	return s.ctrl.SetJet1(ctx, desired)
}

func (s *Spa) SetJet2(ctx context.Context, desired model.JetSpeed) error {
	return s.ctrl.SetJet2(ctx, desired)
}

// SetTargetTemperature checks value against the configured bounds, converted
// into the unit the spa currently reports, and sends it.
func (s *Spa) SetTargetTemperature(ctx context.Context, value int) error {
	if s.minTemp != 0 || s.maxTemp != 0 {
		unit, err := s.TemperatureUnit(ctx)
		if err != nil {
			return err
		}
		lo, hi := s.minTemp, s.maxTemp
		if unit == model.UnitCelsius {
			lo, hi = fahrenheitToCelsius(lo), fahrenheitToCelsius(hi)
		}
		if value < lo || value > hi {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrTargetOutOfRange, value, lo, hi)
		}
	}
	return s.ctrl.SetTargetTemperature(ctx, float64(value))
}

func (s *Spa) StartChemicalCycle(ctx context.Context) (string, error) {
	return s.cycle.Start(ctx)
}

func (s *Spa) ChemicalCycleRunning() bool {
	return s.cycle.Running()
}

func (s *Spa) LastChemicalCycle() (chemicalcycle.Run, bool) {
	return s.cycle.Last()
}

// Status waits for fresh data and decodes all of it. An unknown LED code
// fails the whole snapshot.
func (s *Spa) Status(ctx context.Context) (model.Status, error) {
	b, err := s.panel(ctx)
	if err != nil {
		return model.Status{}, err
	}
	st, err := decoder.Decode(b.Panel)
	if err != nil {
		return model.Status{}, err
	}
	return model.NewStatus(s.deviceID, st, b.CapturedAt, s.cycle.Running()), nil
}

// Snapshot is the non-blocking variant of Status for metrics and streams. It
// reports false until something decodable has been polled. An unrecognized
// LED code shows up as LEDUnknown rather than hiding the rest of the status.
func (s *Spa) Snapshot() (model.Status, bool) {
	b, ok := s.store.Peek()
	if !ok {
		return model.Status{}, false
	}
	st, err := decoder.DecodePartial(b.Panel)
	if err != nil {
		return model.Status{}, false
	}
	return model.NewStatus(s.deviceID, st, b.CapturedAt, s.cycle.Running()), true
}

func fahrenheitToCelsius(f int) int {
	return (f - 32) * 5 / 9
}
