package chemicalcycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/datadog"
	"github.com/thatsimonsguy/spa-controller/internal/model"
)

const (
	SettleDelay       = 10 * time.Second
	LowCirculation    = 2 * time.Minute
	HighCirculation   = 1 * time.Minute
	FinalCirculation  = 2 * time.Minute
	notificationTitle = "Spa chemical cycle"
)

var ErrAlreadyRunning = errors.New("chemical cycle already running")

var sleep = time.Sleep

type Jets interface {
	SetJet1(ctx context.Context, desired model.JetSpeed) error
	SetJet2(ctx context.Context, desired model.JetSpeed) error
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

// Run describes one chemical cycle, current or finished.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type Cycle struct {
	jets     Jets
	notifier Notifier
	running  atomic.Bool

	mu   sync.Mutex
	last *Run
}

func New(jets Jets, notifier Notifier) *Cycle {
	return &Cycle{jets: jets, notifier: notifier}
}

// Start launches a cycle in the background and returns its run id. Only one
// cycle runs at a time; once started it cannot be cancelled.
func (c *Cycle) Start(ctx context.Context) (string, error) {
	if !c.running.CompareAndSwap(false, true) {
		return "", ErrAlreadyRunning
	}

	run := &Run{ID: uuid.NewString(), StartedAt: time.Now()}
	c.mu.Lock()
	c.last = run
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), run)
	return run.ID, nil
}

func (c *Cycle) Running() bool {
	return c.running.Load()
}

// Last returns a copy of the most recent run.
func (c *Cycle) Last() (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Run{}, false
	}
	return *c.last, true
}

func (c *Cycle) run(ctx context.Context, run *Run) {
	defer c.running.Store(false)

	logger := log.With().Str("run_id", run.ID).Logger()
	logger.Info().Msg("Starting chemical cycle")
	datadog.Incr("chemical_cycle.started")
	c.notify(fmt.Sprintf("Chemical cycle %s started", shortID(run.ID)))

	err := c.steps(ctx)

	c.mu.Lock()
	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
	}
	c.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Msg("Chemical cycle failed, turning jets off")
		datadog.Incr("chemical_cycle.failed")
		c.jetsOff(ctx)
		c.notify(fmt.Sprintf("Chemical cycle %s failed: %v", shortID(run.ID), err))
		return
	}

	logger.Info().Dur("duration", run.FinishedAt.Sub(run.StartedAt)).Msg("Chemical cycle complete")
	datadog.Incr("chemical_cycle.completed")
	c.notify(fmt.Sprintf("Chemical cycle %s complete", shortID(run.ID)))
}

func (c *Cycle) steps(ctx context.Context) error {
	if err := c.jets.SetJet1(ctx, model.JetLow); err != nil {
		return fmt.Errorf("jet 1 low: %w", err)
	}
	if err := c.jets.SetJet2(ctx, model.JetLow); err != nil {
		return fmt.Errorf("jet 2 low: %w", err)
	}
	sleep(SettleDelay)
	sleep(LowCirculation)

	if err := c.jets.SetJet1(ctx, model.JetHigh); err != nil {
		return fmt.Errorf("jet 1 high: %w", err)
	}
	sleep(HighCirculation)

	if err := c.jets.SetJet1(ctx, model.JetLow); err != nil {
		return fmt.Errorf("jet 1 back to low: %w", err)
	}
	sleep(FinalCirculation)

	if err := c.jets.SetJet1(ctx, model.JetOff); err != nil {
		return fmt.Errorf("jet 1 off: %w", err)
	}
	if err := c.jets.SetJet2(ctx, model.JetOff); err != nil {
		return fmt.Errorf("jet 2 off: %w", err)
	}
	return nil
}

func (c *Cycle) jetsOff(ctx context.Context) {
	if err := c.jets.SetJet1(ctx, model.JetOff); err != nil {
		log.Error().Err(err).Msg("Could not turn jet 1 off after failed chemical cycle")
	}
	if err := c.jets.SetJet2(ctx, model.JetOff); err != nil {
		log.Error().Err(err).Msg("Could not turn jet 2 off after failed chemical cycle")
	}
}

func (c *Cycle) notify(message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(notificationTitle, message); err != nil {
		log.Warn().Err(err).Msg("Failed to send chemical cycle notification")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
