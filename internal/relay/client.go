package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/datadog"
)

const (
	DefaultSCIURL    = "https://developer.idigi.com/ws/sci"
	DefaultUserAgent = "Spa / 48 CFNetwork / 758.5.3 Darwin / 15.6.0"

	// The vendor mobile app's relay account. Every app install shares it.
	DefaultUsername = "BalboaWaterIOSApp"
	DefaultPassword = "k2nUpR8r!"

	maxErrorBodyLogged  = 256
	defaultHTTPTimeout  = 30 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
)

// RetryPolicy is a fixed-interval retry with no growth. A non-positive
// Interval falls back to 200ms. MaxAttempts of zero retries until the request
// succeeds or its context is cancelled.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// StatusError is a non-2xx reply. The relay reports rate limiting this way.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	Endpoint   string
	Username   string
	Password   string
	UserAgent  string
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// Client talks to the vendor cloud relay. Every call blocks until the relay
// answers with a 2xx status.
type Client struct {
	httpClient *http.Client
	endpoint   string
	username   string
	password   string
	userAgent  string
	retry      RetryPolicy
}

func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		endpoint:   opts.Endpoint,
		username:   opts.Username,
		password:   opts.Password,
		userAgent:  opts.UserAgent,
		retry:      opts.Retry,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.endpoint == "" {
		c.endpoint = DefaultSCIURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.username == "" && c.password == "" {
		c.username, c.password = DefaultUsername, DefaultPassword
	}
	c.retry = c.retry.withDefaults()
	return c
}

// WithRetry returns a copy of the client using a different retry policy.
func (c *Client) WithRetry(p RetryPolicy) *Client {
	clone := *c
	clone.retry = p.withDefaults()
	return &clone
}

// Send posts an sci_request document to the relay and returns the reply body.
func (c *Client) Send(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.endpoint, body, true)
}

// Get issues an authenticated GET against another relay endpoint.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, true)
}

// GetAnonymous issues a GET without relay credentials, for third-party lookups.
func (c *Client) GetAnonymous(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, false)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, authenticated bool) ([]byte, error) {
	var reply []byte
	attempt := 0

	operation := func() error {
		attempt++

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build relay request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		}
		if authenticated {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read relay reply: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBodyLogged)}
		}

		reply = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		datadog.Incr("relay.retry", "method:"+method)
		log.Warn().
			Err(err).
			Str("method", method).
			Str("url", url).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Relay request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, c.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("relay %s %s failed after %d attempts: %w", method, url, attempt, err)
	}
	return reply, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(c.retry.Interval)
	if c.retry.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.retry.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Interval <= 0 {
		p.Interval = defaultRetryBackoff
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
