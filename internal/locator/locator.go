package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDirectoryURL = "https://my.idigi.com/ws/DeviceCore/.json"
	DefaultPublicIPURL  = "http://icanhazip.com"
)

var (
	ErrMalformedDirectory = errors.New("malformed device directory response")
	ErrNoDevice           = errors.New("no device registered for this public IP")
	ErrMalformedPublicIP  = errors.New("malformed public IP response")
)

// Fetcher is the slice of the relay client the locator needs. Transient
// failures are retried inside the fetcher, so any error returned here is final.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetAnonymous(ctx context.Context, url string) ([]byte, error)
}

type directory struct {
	Items *[]directoryItem `json:"items"`
}

type directoryItem struct {
	DevConnectwareID *string `json:"devConnectwareId"`
}

// Locator resolves the spa's device id from the caller's public IP and keeps
// it for the life of the process.
type Locator struct {
	fetcher      Fetcher
	directoryURL string
	publicIPURL  string

	group singleflight.Group

	mu       sync.RWMutex
	deviceID string
}

func New(fetcher Fetcher, directoryURL, publicIPURL string) *Locator {
	if directoryURL == "" {
		directoryURL = DefaultDirectoryURL
	}
	if publicIPURL == "" {
		publicIPURL = DefaultPublicIPURL
	}
	return &Locator{
		fetcher:      fetcher,
		directoryURL: directoryURL,
		publicIPURL:  publicIPURL,
	}
}

// Resolve returns the cached device id, looking it up on first use.
// Concurrent first calls share one lookup.
func (l *Locator) Resolve(ctx context.Context) (string, error) {
	l.mu.RLock()
	id := l.deviceID
	l.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	v, err, _ := l.group.Do("resolve", func() (any, error) {
		l.mu.RLock()
		cached := l.deviceID
		l.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		id, err := l.lookup(ctx)
		if err != nil {
			return "", err
		}

		l.mu.Lock()
		l.deviceID = id
		l.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (l *Locator) lookup(ctx context.Context) (string, error) {
	ip, err := l.PublicIP(ctx)
	if err != nil {
		return "", err
	}

	query, err := directoryQuery(l.directoryURL, ip)
	if err != nil {
		return "", err
	}
	body, err := l.fetcher.Get(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query device directory: %w", err)
	}

	id, err := parseDirectory(body)
	if err != nil {
		return "", err
	}
	log.Info().Str("public_ip", ip).Str("device_id", id).Msg("Resolved spa device id")
	return id, nil
}

// PublicIP asks a what-is-my-IP endpoint for the address the relay sees us from.
func (l *Locator) PublicIP(ctx context.Context) (string, error) {
	body, err := l.fetcher.GetAnonymous(ctx, l.publicIPURL)
	if err != nil {
		return "", fmt.Errorf("look up public IP: %w", err)
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedPublicIP, truncate(ip, 64))
	}
	return ip, nil
}

func directoryQuery(base, ip string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse directory url: %w", err)
	}
	q := u.Query()
	q.Set("condition", fmt.Sprintf("dpGlobalIp='%s'", ip))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseDirectory(body []byte) (string, error) {
	var dir directory
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDirectory, err)
	}
	if dir.Items == nil {
		return "", fmt.Errorf("%w: missing items", ErrMalformedDirectory)
	}
	if len(*dir.Items) == 0 {
		return "", ErrNoDevice
	}
	first := (*dir.Items)[0]
	if first.DevConnectwareID == nil || *first.DevConnectwareID == "" {
		return "", fmt.Errorf("%w: items[0] has no devConnectwareId", ErrMalformedDirectory)
	}
	return *first.DevConnectwareID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
