package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultGracePeriod = 10 * time.Second

// Server is anything that can drain in-flight work before exiting.
type Server interface {
	Shutdown(ctx context.Context) error
}

// WaitForSignal blocks until SIGINT or SIGTERM, or until ctx ends.
func WaitForSignal(ctx context.Context) os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		return sig
	case <-ctx.Done():
		return nil
	}
}

// Graceful stops background work by calling cancel, then gives each server
// grace to finish its requests.
func Graceful(cancel context.CancelFunc, grace time.Duration, servers ...Server) error {
	log.Info().Msg("Shutting down")
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), grace)
	defer stop()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shut down")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// WithError logs err and exits non-zero.
func WithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}
