package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultURL = "https://ntfy.sh"

// Ntfy publishes push notifications to one ntfy topic. A zero topic makes
// Send a no-op.
type Ntfy struct {
	client  *http.Client
	baseURL string
	topic   string
}

func New(baseURL, topic string) *Ntfy {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	n := &Ntfy{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
	}
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
	} else {
		log.Info().Str("topic", topic).Msg("Ntfy notifications initialized")
	}
	return n
}

func (n *Ntfy) Enabled() bool {
	return n.topic != ""
}

// message is the body of ntfy's JSON publish endpoint.
type message struct {
	Topic   string   `json:"topic"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Tags    []string `json:"tags,omitempty"`
}

// Send publishes title and body to the configured topic.
func (n *Ntfy) Send(title, body string) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(message{
		Topic:   n.topic,
		Title:   title,
		Message: body,
		Tags:    []string{"hot_springs"},
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	resp, err := n.client.Post(n.baseURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	log.Debug().
		Str("topic", n.topic).
		Str("title", title).
		Msg("Notification sent")
	return nil
}
