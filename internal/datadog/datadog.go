package datadog

import (
	"sync"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

var (
	mu        sync.RWMutex
	dogstatsd *statsd.Client
)

// InitMetrics points the package-level DogStatsD client at an agent. Until it
// is called, Gauge and Incr are no-ops.
func InitMetrics(addr, namespace string, tags []string) {
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	client.Namespace = namespace
	client.Tags = tags

	mu.Lock()
	dogstatsd = client
	mu.Unlock()

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if dogstatsd != nil {
		_ = dogstatsd.Close()
		dogstatsd = nil
	}
}

func Gauge(name string, value float64, tags ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if dogstatsd != nil {
		if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if dogstatsd != nil {
		if err := dogstatsd.Incr(name, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}
