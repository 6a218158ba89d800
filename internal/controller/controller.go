package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/internal/state"
)

var (
	ErrJet2HighUnsupported = errors.New("jet 2 has no high speed")
	ErrUnrecognizedJetCode = errors.New("current jet state is unrecognized")
)

type Sender interface {
	Send(ctx context.Context, body []byte) ([]byte, error)
}

// Controller turns "set X to Y" into button presses against one device. All
// sequences on a device share one lock, so press counts computed from the
// same starting state never interleave.
type Controller struct {
	mu       sync.Mutex
	deviceID string
	sender   Sender
	store    *state.Store
}

func New(deviceID string, sender Sender, store *state.Store) *Controller {
	return &Controller{
		deviceID: deviceID,
		sender:   sender,
		store:    store,
	}
}

func (c *Controller) SetJet1(ctx context.Context, desired model.JetSpeed) error {
	if !desired.Valid() {
		return fmt.Errorf("%w: %d", model.ErrInvalidJetSpeed, desired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	jets, err := c.jets(ctx)
	if err != nil {
		return err
	}
	return c.press(ctx, model.ButtonJet1, jet1Presses(jets.Jet1, desired))
}

func (c *Controller) SetJet2(ctx context.Context, desired model.JetSpeed) error {
	if desired == model.JetHigh {
		return ErrJet2HighUnsupported
	}
	if !desired.Valid() {
		return fmt.Errorf("%w: %d", model.ErrInvalidJetSpeed, desired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	jets, err := c.jets(ctx)
	if err != nil {
		return err
	}
	return c.press(ctx, model.ButtonJet2, jet2Presses(jets.Jet2, desired))
}

func (c *Controller) SetLED(ctx context.Context, desired model.LEDState) error {
	if !desired.Valid() {
		return fmt.Errorf("%w: %d", model.ErrInvalidLEDState, desired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.led(ctx)
	if err != nil {
		return err
	}
	return c.press(ctx, model.ButtonLED, ledPresses(current, desired))
}

// ToggleLED turns a dark spa to Cycle and any lit spa off, returning the state
// it asked for.
func (c *Controller) ToggleLED(ctx context.Context) (model.LEDState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.led(ctx)
	if err != nil {
		return 0, err
	}
	desired := model.LEDOff
	if current == model.LEDOff {
		desired = model.LEDCycle
	}
	return desired, c.press(ctx, model.ButtonLED, ledPresses(current, desired))
}

// SetTargetTemperature sends the value once, in whatever unit the spa reports.
func (c *Controller) SetTargetTemperature(ctx context.Context, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.sender.Send(context.WithoutCancel(ctx), relay.SetTemperatureRequest(c.deviceID, value))
	if err != nil {
		return fmt.Errorf("set target temperature: %w", err)
	}
	if _, err := relay.DecodeDeviceRequest(reply); err != nil {
		return fmt.Errorf("set target temperature: %w", err)
	}
	c.store.Invalidate()

	log.Info().
		Str("device_id", c.deviceID).
		Float64("target", value).
		Msg("Set target temperature")
	return nil
}

func (c *Controller) jets(ctx context.Context) (model.JetReading, error) {
	buffers, err := c.store.Read(ctx)
	if err != nil {
		return model.JetReading{}, err
	}
	jets, err := decoder.Jets(buffers.Panel)
	if err != nil {
		return model.JetReading{}, err
	}
	if !jets.Recognized {
		return model.JetReading{}, fmt.Errorf("%w: code %s", ErrUnrecognizedJetCode, jets.Code)
	}
	return jets, nil
}

func (c *Controller) led(ctx context.Context) (model.LEDState, error) {
	buffers, err := c.store.Read(ctx)
	if err != nil {
		return 0, err
	}
	return decoder.LED(buffers.Panel)
}
