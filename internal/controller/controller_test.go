package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/poller"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/internal/relay/relaytest"
	"github.com/thatsimonsguy/spa-controller/internal/state"
)

type rig struct {
	spa    *relaytest.Spa
	client *relay.Client
	store  *state.Store
	ctrl   *Controller
}

func newRig(t *testing.T) *rig {
	t.Helper()
	spa := relaytest.NewSpa(t)
	client := relay.NewClient(relay.Options{
		Endpoint: spa.URL(),
		Retry:    relay.RetryPolicy{Interval: time.Millisecond, MaxAttempts: 50},
	})
	store := state.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go poller.New("dev-1", client, store, 5*time.Millisecond).Run(ctx)

	return &rig{spa: spa, client: client, store: store, ctrl: New("dev-1", client, store)}
}

// refresh waits until the store reflects the simulated spa as it is now.
func (r *rig) refresh(t *testing.T) {
	t.Helper()
	r.store.Invalidate()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.store.Read(ctx)
	require.NoError(t, err)
}

func TestJet1Presses(t *testing.T) {
	tests := []struct {
		current model.JetSpeed
		desired model.JetSpeed
		want    int
	}{
		{model.JetOff, model.JetOff, 0},
		{model.JetOff, model.JetLow, 1},
		{model.JetOff, model.JetHigh, 2},
		{model.JetLow, model.JetOff, 2},
		{model.JetLow, model.JetLow, 0},
		{model.JetLow, model.JetHigh, 1},
		{model.JetHigh, model.JetOff, 1},
		{model.JetHigh, model.JetLow, 2},
		{model.JetHigh, model.JetHigh, 0},
	}
	for _, tt := range tests {
		t.Run(tt.current.String()+" to "+tt.desired.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, jet1Presses(tt.current, tt.desired))
		})
	}
}

func TestLEDPresses(t *testing.T) {
	for state := model.LEDOff; state <= model.LEDFade; state++ {
		assert.Equal(t, 0, ledPresses(state, state), state.String())
	}

	tests := []struct {
		name    string
		current model.LEDState
		desired model.LEDState
		want    int
	}{
		{"off to cycle", model.LEDOff, model.LEDCycle, 11},
		{"cycle to off", model.LEDCycle, model.LEDOff, 1},
		{"fade to off", model.LEDFade, model.LEDOff, 0},
		{"purple to green", model.LEDPurple, model.LEDGreen, 9},
		{"green to purple", model.LEDGreen, model.LEDPurple, 3},
		{"off to purple", model.LEDOff, model.LEDPurple, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledPresses(tt.current, tt.desired))
		})
	}
}

func TestSetJet1(t *testing.T) {
	speeds := []model.JetSpeed{model.JetOff, model.JetLow, model.JetHigh}
	for _, current := range speeds {
		for _, desired := range speeds {
			t.Run(current.String()+" to "+desired.String(), func(t *testing.T) {
				r := newRig(t)
				r.spa.SetJets(current, model.JetOff)
				r.refresh(t)

				require.NoError(t, r.ctrl.SetJet1(context.Background(), desired))

				jet1, _ := r.spa.Jets()
				assert.Equal(t, desired, jet1)
				assert.Equal(t, jet1Presses(current, desired), r.spa.Presses(model.ButtonJet1))
			})
		}
	}
}

func TestSetJet2(t *testing.T) {
	r := newRig(t)
	r.spa.SetJets(model.JetLow, model.JetOff)
	r.refresh(t)

	require.NoError(t, r.ctrl.SetJet2(context.Background(), model.JetLow))
	_, jet2 := r.spa.Jets()
	assert.Equal(t, model.JetLow, jet2)
	assert.Equal(t, 1, r.spa.Presses(model.ButtonJet2))

	require.NoError(t, r.ctrl.SetJet2(context.Background(), model.JetOff))
	_, jet2 = r.spa.Jets()
	assert.Equal(t, model.JetOff, jet2)
	assert.Equal(t, 2, r.spa.Presses(model.ButtonJet2))

	require.NoError(t, r.ctrl.SetJet2(context.Background(), model.JetOff))
	assert.Equal(t, 2, r.spa.Presses(model.ButtonJet2), "no-op issues no press")
}

func TestSetJet2_HighRejected(t *testing.T) {
	r := newRig(t)
	r.refresh(t)
	before := len(r.spa.Requests())

	err := r.ctrl.SetJet2(context.Background(), model.JetHigh)
	assert.ErrorIs(t, err, ErrJet2HighUnsupported)
	assert.Equal(t, 0, r.spa.Presses(model.ButtonJet2))

	for _, body := range r.spa.Requests()[before:] {
		assert.NotContains(t, string(body), "Button")
	}
}

func TestSetJet1_UnrecognizedCode(t *testing.T) {
	r := newRig(t)
	r.spa.SetJetCode(0x03)
	r.refresh(t)

	err := r.ctrl.SetJet1(context.Background(), model.JetHigh)
	assert.ErrorIs(t, err, ErrUnrecognizedJetCode)
	assert.Equal(t, 0, r.spa.Presses(model.ButtonJet1))
}

func TestSetJet1_InvalidSpeed(t *testing.T) {
	r := newRig(t)
	err := r.ctrl.SetJet1(context.Background(), model.JetSpeed(7))
	assert.ErrorIs(t, err, model.ErrInvalidJetSpeed)
}

func TestSetLED(t *testing.T) {
	r := newRig(t)
	r.spa.SetLEDCode(0x00)
	r.refresh(t)

	require.NoError(t, r.ctrl.SetLED(context.Background(), model.LEDCycle))
	assert.Equal(t, 11, r.spa.Presses(model.ButtonLED))

	r.spa.SetLEDCode(0x03)
	r.refresh(t)
	require.NoError(t, r.ctrl.SetLED(context.Background(), model.LEDOff))
	assert.Equal(t, 12, r.spa.Presses(model.ButtonLED))

	r.refresh(t)
	require.NoError(t, r.ctrl.SetLED(context.Background(), model.LEDCycle))
	assert.Equal(t, 12, r.spa.Presses(model.ButtonLED), "already cycling")
}

func TestSetLED_UnknownCodeIsFatal(t *testing.T) {
	r := newRig(t)
	r.spa.SetLEDCode(0x05)
	r.refresh(t)

	err := r.ctrl.SetLED(context.Background(), model.LEDOff)
	assert.ErrorIs(t, err, decoder.ErrUnknownLEDCode)
	assert.Equal(t, 0, r.spa.Presses(model.ButtonLED))
}

func TestToggleLED(t *testing.T) {
	r := newRig(t)
	r.spa.SetLEDCode(0x00)
	r.refresh(t)

	got, err := r.ctrl.ToggleLED(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LEDCycle, got)
	assert.Equal(t, 11, r.spa.Presses(model.ButtonLED))

	r.spa.SetLEDCode(0x03)
	r.refresh(t)
	got, err = r.ctrl.ToggleLED(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LEDOff, got)
	assert.Equal(t, 12, r.spa.Presses(model.ButtonLED))
}

func TestSetTargetTemperature(t *testing.T) {
	r := newRig(t)
	r.refresh(t)

	require.NoError(t, r.ctrl.SetTargetTemperature(context.Background(), 101))
	assert.Equal(t, []string{"101.000000"}, r.spa.SetTempRequests())

	r.refresh(t)
	b, err := r.store.Read(context.Background())
	require.NoError(t, err)
	target, err := decoder.TargetTemperature(b.Panel)
	require.NoError(t, err)
	assert.Equal(t, 101, target)
}

func TestPressInvalidatesStore(t *testing.T) {
	r := newRig(t)
	r.refresh(t)
	before := r.store.Epoch()

	require.NoError(t, r.ctrl.SetJet1(context.Background(), model.JetLow))
	assert.Greater(t, r.store.Epoch(), before)
}

func TestConcurrentSetJet1_Serialized(t *testing.T) {
	r := newRig(t)
	r.spa.SetJets(model.JetOff, model.JetOff)
	r.refresh(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.ctrl.SetJet1(context.Background(), model.JetHigh))
		}()
	}
	wg.Wait()

	jet1, _ := r.spa.Jets()
	assert.Equal(t, model.JetHigh, jet1)
	assert.Equal(t, 2, r.spa.Presses(model.ButtonJet1))
}

// Two controllers with separate locks stand in for the unsynchronized case:
// both compute their press count from the same starting state.
func TestConcurrentSetJet1_UnserializedHazard(t *testing.T) {
	r := newRig(t)
	r.spa.SetJets(model.JetOff, model.JetOff)
	r.refresh(t)

	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	count := 0
	r.spa.OnButton(func(model.ButtonCommand) {
		mu.Lock()
		count++
		first := count <= 2
		if count == 2 {
			once.Do(func() { close(release) })
		}
		mu.Unlock()
		if first {
			arrived <- struct{}{}
			<-release
		}
	})

	a := New("dev-1", r.client, r.store)
	b := New("dev-1", r.client, r.store)

	var wg sync.WaitGroup
	for _, c := range []*Controller{a, b} {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			assert.NoError(t, c.SetJet1(context.Background(), model.JetHigh))
		}(c)
	}
	wg.Wait()

	assert.Len(t, arrived, 2)
	assert.Equal(t, 4, r.spa.Presses(model.ButtonJet1))
	jet1, _ := r.spa.Jets()
	assert.Equal(t, model.JetLow, jet1, "interleaved presses overshoot the target")
}
