package hottub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/spa-controller/internal/config"
	"github.com/thatsimonsguy/spa-controller/internal/controller"
	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/locator"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/internal/relay/relaytest"
)

const testDeviceID = "00000000-00000000-001527FF-FF0000AA"

func testClient(url string) *relay.Client {
	return relay.NewClient(relay.Options{
		Endpoint: url,
		Username: "owner@example.com",
		Password: "hunter2",
		Retry:    relay.RetryPolicy{Interval: time.Millisecond, MaxAttempts: 50},
	})
}

func startSpa(t *testing.T, sim *relaytest.Spa) *Spa {
	t.Helper()
	spa, err := New(context.Background(), testClient(sim.URL()), nil, Options{
		DeviceID:      testDeviceID,
		PollInterval:  5 * time.Millisecond,
		TargetTempMin: 50,
		TargetTempMax: 104,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	spa.Start(ctx)
	return spa
}

func within(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStatus(t *testing.T) {
	sim := relaytest.NewSpa(t)
	sim.SetTemperatures(100, 102)
	sim.SetJets(model.JetHigh, model.JetLow)
	sim.SetLEDCode(0x03)
	spa := startSpa(t, sim)

	status, err := spa.Status(within(t))
	require.NoError(t, err)
	assert.Equal(t, testDeviceID, status.DeviceID)
	assert.Equal(t, model.UnitFahrenheit, status.Unit)
	assert.Equal(t, 100, status.CurrentTemperature)
	assert.Equal(t, 102, status.TargetTemperature)
	assert.Equal(t, "high", status.Jet1)
	assert.Equal(t, "low", status.Jet2)
	assert.Equal(t, model.LEDCycle, status.LED)
	assert.False(t, status.ChemicalCycleRunning)

	snap, ok := spa.Snapshot()
	require.True(t, ok)
	assert.Equal(t, status.DeviceID, snap.DeviceID)
}

func TestReadsBlockUntilFirstPoll(t *testing.T) {
	sim := relaytest.NewSpa(t)
	sim.SetTemperatures(97, 101)
	spa, err := New(context.Background(), testClient(sim.URL()), nil, Options{DeviceID: testDeviceID, PollInterval: time.Hour})
	require.NoError(t, err)

	_, ok := spa.Snapshot()
	assert.False(t, ok)

	readCtx := within(t)
	got := make(chan model.Temperatures, 1)
	go func() {
		temps, err := spa.Temperatures(readCtx)
		assert.NoError(t, err)
		got <- temps
	}()

	select {
	case <-got:
		t.Fatal("read returned before the first poll")
	case <-time.After(20 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spa.Start(ctx)

	select {
	case temps := <-got:
		assert.Equal(t, model.Temperatures{Unit: model.UnitFahrenheit, Current: 97, Target: 101}, temps)
	case <-time.After(2 * time.Second):
		t.Fatal("read never unblocked")
	}
}

func TestRetryIsTransparent(t *testing.T) {
	clean := relaytest.NewSpa(t)
	flaky := relaytest.NewSpa(t)
	flaky.FailNext(3, http.StatusTooManyRequests)

	a := startSpa(t, clean)
	b := startSpa(t, flaky)

	require.NoError(t, a.SetJet1(within(t), model.JetHigh))
	require.NoError(t, b.SetJet1(within(t), model.JetHigh))

	cleanJet1, _ := clean.Jets()
	flakyJet1, _ := flaky.Jets()
	assert.Equal(t, cleanJet1, flakyJet1)
	assert.Equal(t, clean.Presses(model.ButtonJet1), flaky.Presses(model.ButtonJet1))
}

func TestJetsAndLED(t *testing.T) {
	sim := relaytest.NewSpa(t)
	spa := startSpa(t, sim)

	require.NoError(t, spa.SetJet1(within(t), model.JetLow))
	require.NoError(t, spa.SetJet2(within(t), model.JetLow))
	jets, err := spa.Jets(within(t))
	require.NoError(t, err)
	assert.Equal(t, model.JetReading{Code: "09", Recognized: true, Jet1: model.JetLow, Jet2: model.JetLow}, jets)

	assert.ErrorIs(t, spa.SetJet2(within(t), model.JetHigh), controller.ErrJet2HighUnsupported)

	led, err := spa.LED(within(t))
	require.NoError(t, err)
	assert.Equal(t, model.LEDOff, led)

	toggled, err := spa.ToggleLED(within(t))
	require.NoError(t, err)
	assert.Equal(t, model.LEDCycle, toggled)
	assert.Equal(t, 11, sim.Presses(model.ButtonLED))
}

func TestStatus_UnknownLEDFails(t *testing.T) {
	sim := relaytest.NewSpa(t)
	sim.SetLEDCode(0x05)
	spa := startSpa(t, sim)

	_, err := spa.Status(within(t))
	assert.ErrorIs(t, err, decoder.ErrUnknownLEDCode)

	// temperatures do not depend on the LED byte
	_, err = spa.Temperatures(within(t))
	assert.NoError(t, err)

	snap, ok := spa.Snapshot()
	require.True(t, ok, "snapshot still reports the decodable fields")
	assert.Equal(t, model.LEDUnknown, snap.LED)
	assert.Equal(t, 100, snap.CurrentTemperature)
}

func TestSetTargetTemperature(t *testing.T) {
	sim := relaytest.NewSpa(t)
	spa := startSpa(t, sim)

	require.NoError(t, spa.SetTargetTemperature(within(t), 103))
	assert.Equal(t, []string{"103.000000"}, sim.SetTempRequests())

	temps, err := spa.Temperatures(within(t))
	require.NoError(t, err)
	assert.Equal(t, 103, temps.Target)

	err = spa.SetTargetTemperature(within(t), 110)
	assert.ErrorIs(t, err, ErrTargetOutOfRange)
	assert.Len(t, sim.SetTempRequests(), 1)
}

func TestSetTargetTemperature_CelsiusBounds(t *testing.T) {
	sim := relaytest.NewSpa(t)
	sim.SetUnitCode(0x03)
	sim.SetTemperatures(37, 38)
	spa := startSpa(t, sim)

	require.NoError(t, spa.SetTargetTemperature(within(t), 39))
	assert.ErrorIs(t, spa.SetTargetTemperature(within(t), 41), ErrTargetOutOfRange)
	assert.ErrorIs(t, spa.SetTargetTemperature(within(t), 9), ErrTargetOutOfRange)
}

func TestNew_ResolvesDeviceID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "203.0.113.7")
	})
	mux.HandleFunc("/ws/DeviceCore/.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dpGlobalIp='203.0.113.7'", r.URL.Query().Get("condition"))
		fmt.Fprintf(w, `{"items":[{"devConnectwareId":"%s"}]}`, testDeviceID)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	spa, err := New(context.Background(), testClient(srv.URL), nil, Options{
		DirectoryURL: srv.URL + "/ws/DeviceCore/.json",
		PublicIPURL:  srv.URL + "/ip",
		LookupRetry:  relay.RetryPolicy{Interval: time.Millisecond, MaxAttempts: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, testDeviceID, spa.DeviceID())
}

func TestNew_MalformedDirectoryIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "203.0.113.7")
	})
	mux.HandleFunc("/dir", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"devices":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := New(context.Background(), testClient(srv.URL), nil, Options{
		DirectoryURL: srv.URL + "/dir",
		PublicIPURL:  srv.URL + "/ip",
		LookupRetry:  relay.RetryPolicy{Interval: time.Millisecond},
	})
	assert.ErrorIs(t, err, locator.ErrMalformedDirectory)
}

func TestNew_LookupRetriesRateLimit(t *testing.T) {
	failures := 2
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "203.0.113.7")
	})
	mux.HandleFunc("/dir", func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"items":[{"devConnectwareId":"dev-1"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	spa, err := New(context.Background(), testClient(srv.URL), nil, Options{
		DirectoryURL: srv.URL + "/dir",
		PublicIPURL:  srv.URL + "/ip",
		LookupRetry:  relay.RetryPolicy{Interval: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-1", spa.DeviceID())
}

func TestChemicalCycleFlag(t *testing.T) {
	sim := relaytest.NewSpa(t)
	spa := startSpa(t, sim)

	assert.False(t, spa.ChemicalCycleRunning())
	_, ok := spa.LastChemicalCycle()
	assert.False(t, ok)
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.Config{
		DeviceID:            testDeviceID,
		PollIntervalSeconds: 3,
		Relay: config.Relay{
			DirectoryURL:          "https://directory.example/ws/DeviceCore/.json",
			PublicIPURL:           "http://ip.example",
			LookupRetryIntervalMS: 1500,
			MaxAttempts:           5,
		},
		API: config.API{TargetTempMin: 60, TargetTempMax: 100},
	}

	assert.Equal(t, Options{
		DeviceID:      testDeviceID,
		DirectoryURL:  "https://directory.example/ws/DeviceCore/.json",
		PublicIPURL:   "http://ip.example",
		LookupRetry:   relay.RetryPolicy{Interval: 1500 * time.Millisecond, MaxAttempts: 5},
		PollInterval:  3 * time.Second,
		TargetTempMin: 60,
		TargetTempMax: 100,
	}, OptionsFrom(cfg))
}
