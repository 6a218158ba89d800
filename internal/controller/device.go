package controller

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/datadog"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
)

// jet1Transitions is the fixed press count for every jet 1 change.
var jet1Transitions = map[model.JetSpeed]map[model.JetSpeed]int{
	model.JetOff:  {model.JetLow: 1, model.JetHigh: 2},
	model.JetLow:  {model.JetHigh: 1, model.JetOff: 2},
	model.JetHigh: {model.JetOff: 1, model.JetLow: 2},
}

func jet1Presses(current, desired model.JetSpeed) int {
	return jet1Transitions[current][desired]
}

func jet2Presses(current, desired model.JetSpeed) int {
	if current == desired {
		return 0
	}
	return 1
}

// ledPresses keeps the panel's historical count of (7 - current + desired) - 1
// over the 1-based ordinals. It matches ring distance only when desired sits
// after current; see DESIGN.md.
func ledPresses(current, desired model.LEDState) int {
	if current == desired {
		return 0
	}
	n := int(model.LEDFade) - int(current) + int(desired) - 1
	if n < 0 {
		return 0
	}
	return n
}

// press sends n presses back to back without re-reading the spa, then marks
// the store stale. Once started the sequence is not cancelled.
func (c *Controller) press(ctx context.Context, button model.ButtonCommand, n int) error {
	if n == 0 {
		log.Debug().Str("button", button.String()).Msg("Already in desired state, no presses needed")
		return nil
	}

	sendCtx := context.WithoutCancel(ctx)
	defer c.store.Invalidate()

	for i := 0; i < n; i++ {
		reply, err := c.sender.Send(sendCtx, relay.ButtonRequest(c.deviceID, button))
		if err != nil {
			return fmt.Errorf("press %s (%d of %d): %w", button, i+1, n, err)
		}
		if _, err := relay.DecodeDeviceRequest(reply); err != nil {
			return fmt.Errorf("press %s (%d of %d): %w", button, i+1, n, err)
		}
		datadog.Incr("button.press", "button:"+button.String())
	}

	log.Info().
		Str("device_id", c.deviceID).
		Str("button", button.String()).
		Int("presses", n).
		Msg("Pressed spa button")
	return nil
}
