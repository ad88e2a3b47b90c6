package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventHeader    = "X-Cachesweep-Event"
	DeliveryHeader = "X-Cachesweep-Delivery"
	eventPrefix    = "cachesweep.sweep."
)

// Envelope is the JSON body posted to webhooks.
type Envelope struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Summary string    `json:"summary"`
	Sweep   Event     `json:"sweep"`
}

type webhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	now     func() time.Time
	newID   func() string
}

func NewWebhook(url string, headers map[string]string) (Notifier, error) {
	trimmedURL := strings.TrimSpace(url)
	if trimmedURL == "" {
		return nil, fmt.Errorf("config.url is required")
	}

	copyHeaders := make(map[string]string, len(headers))
	for k, v := range headers {
		copyHeaders[k] = v
	}

	return &webhookNotifier{
		url:     trimmedURL,
		headers: copyHeaders,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

func (w *webhookNotifier) envelope(event Event) Envelope {
	return Envelope{
		ID:      w.newID(),
		Type:    eventPrefix + string(event.Status),
		Time:    w.now().UTC(),
		Summary: Summary(event),
		Sweep:   event,
	}
}

func (w *webhookNotifier) Notify(ctx context.Context, event Event) error {
	env := w.envelope(event)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	// Configured headers may not override the delivery metadata.
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "cachesweep")
	req.Header.Set(EventHeader, env.Type)
	req.Header.Set(DeliveryHeader, env.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s delivery %s: received non-success status: %s", env.Type, env.ID, resp.Status)
	}

	return nil
}
