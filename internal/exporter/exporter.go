package exporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thatsimonsguy/spa-controller/internal/model"
)

const namespace = "spa"

// Source returns the latest decoded status without blocking.
type Source interface {
	Snapshot() (model.Status, bool)
}

// Collector exposes the last polled spa status. Scrapes before the first poll
// only report spa_up 0.
type Collector struct {
	source Source

	up                 *prometheus.Desc
	currentTemperature *prometheus.Desc
	targetTemperature  *prometheus.Desc
	jetSpeed           *prometheus.Desc
	ledState           *prometheus.Desc
	chemicalCycle      *prometheus.Desc
	lastPoll           *prometheus.Desc
}

func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		up: prometheus.NewDesc(namespace+"_up",
			"Whether a decodable status has been polled from the relay.", nil, nil),
		currentTemperature: prometheus.NewDesc(namespace+"_temperature_current",
			"Current water temperature in the spa's unit.", []string{"device_id", "unit"}, nil),
		targetTemperature: prometheus.NewDesc(namespace+"_temperature_target",
			"Target water temperature in the spa's unit.", []string{"device_id", "unit"}, nil),
		jetSpeed: prometheus.NewDesc(namespace+"_jet_speed",
			"Jet speed (0 off, 1 low, 2 high).", []string{"device_id", "jet"}, nil),
		ledState: prometheus.NewDesc(namespace+"_led_state",
			"LED state, 1 for the active state.", []string{"device_id", "state"}, nil),
		chemicalCycle: prometheus.NewDesc(namespace+"_chemical_cycle_running",
			"Whether a chemical cycle is running.", []string{"device_id"}, nil),
		lastPoll: prometheus.NewDesc(namespace+"_last_poll_timestamp_seconds",
			"Unix time of the last installed poll.", []string{"device_id"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.currentTemperature
	ch <- c.targetTemperature
	ch <- c.jetSpeed
	ch <- c.ledState
	ch <- c.chemicalCycle
	ch <- c.lastPoll
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status, ok := c.source.Snapshot()
	if !ok {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	id, unit := status.DeviceID, string(status.Unit)
	ch <- prometheus.MustNewConstMetric(c.currentTemperature, prometheus.GaugeValue, float64(status.CurrentTemperature), id, unit)
	ch <- prometheus.MustNewConstMetric(c.targetTemperature, prometheus.GaugeValue, float64(status.TargetTemperature), id, unit)

	for jet, speed := range map[string]string{"1": status.Jet1, "2": status.Jet2} {
		parsed, err := model.ParseJetSpeed(speed)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.jetSpeed, prometheus.GaugeValue, float64(parsed), id, jet)
	}

	ch <- prometheus.MustNewConstMetric(c.ledState, prometheus.GaugeValue, 1, id, status.LED.String())
	ch <- prometheus.MustNewConstMetric(c.chemicalCycle, prometheus.GaugeValue, boolToFloat(status.ChemicalCycleRunning), id)
	if !status.CapturedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastPoll, prometheus.GaugeValue, float64(status.CapturedAt.Unix()), id)
	}
}

// Handler serves the collector from its own registry.
func Handler(source Source) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
