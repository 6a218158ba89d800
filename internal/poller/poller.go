package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/datadog"
	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/internal/state"
)

const DefaultInterval = 2 * time.Second

type Sender interface {
	Send(ctx context.Context, body []byte) ([]byte, error)
}

// Poller keeps the state store fed with the spa's device files.
type Poller struct {
	deviceID string
	sender   Sender
	store    *state.Store
	interval time.Duration
}

func New(deviceID string, sender Sender, store *state.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		deviceID: deviceID,
		sender:   sender,
		store:    store,
		interval: interval,
	}
}

func (p *Poller) Start(ctx context.Context) {
	go p.Run(ctx)
}

// Run polls right away and then once per interval until ctx is done. A poll
// that is already in flight is allowed to finish.
func (p *Poller) Run(ctx context.Context) {
	log.Info().
		Str("device_id", p.deviceID).
		Dur("interval", p.interval).
		Msg("Starting spa status poller")

	for {
		if err := p.PollOnce(ctx); err != nil {
			log.Error().Err(err).Str("device_id", p.deviceID).Msg("Status poll failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Str("device_id", p.deviceID).Msg("Spa status poller stopped")
			return
		case <-time.After(p.interval):
		}
	}
}

// PollOnce fetches both device files and installs whatever came back.
func (p *Poller) PollOnce(ctx context.Context) error {
	epoch := p.store.Epoch()

	reply, err := p.sender.Send(context.WithoutCancel(ctx), relay.FileRequest(p.deviceID))
	if err != nil {
		datadog.Incr("poll.error")
		return fmt.Errorf("fetch device files: %w", err)
	}
	files, err := relay.DecodeFiles(reply)
	if err != nil {
		datadog.Incr("poll.error")
		return err
	}

	if files.Panel == nil && files.Config == nil {
		datadog.Incr("poll.empty")
		log.Warn().Str("device_id", p.deviceID).Msg("Status reply carried no device files, keeping previous buffers")
		return nil
	}

	update := model.Buffers{Panel: files.Panel, Config: files.Config}
	if files.Panel != nil {
		// capture time tracks the panel, which is what every read decodes
		update.CapturedAt = time.Now()
		datadog.Incr("poll.success")
	} else {
		datadog.Incr("poll.partial")
		log.Debug().Str("device_id", p.deviceID).Msg("Partial status reply without panel, keeping previous panel")
	}

	readable := p.store.Write(epoch, update)

	log.Debug().
		Str("device_id", p.deviceID).
		Uint64("epoch", epoch).
		Bool("readable", readable).
		Msg("Installed status poll")

	if files.Panel != nil {
		reportPanel(files.Panel)
	}
	return nil
}

func reportPanel(panel model.RawBuffer) {
	unit, err := decoder.TemperatureUnit(panel)
	if err != nil {
		return
	}
	tag := "unit:" + string(unit)
	if current, err := decoder.CurrentTemperature(panel); err == nil {
		datadog.Gauge("temperature.current", float64(current), tag)
	}
	if target, err := decoder.TargetTemperature(panel); err == nil {
		datadog.Gauge("temperature.target", float64(target), tag)
	}
}
