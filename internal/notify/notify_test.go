package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/retention"
)

type capture struct {
	mu        sync.Mutex
	envelopes []Envelope
	headers   []http.Header
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.envelopes = append(c.envelopes, env)
	c.headers = append(c.headers, r.Header.Clone())
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (c *capture) statuses() []retention.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]retention.Status, len(c.envelopes))
	for i, env := range c.envelopes {
		out[i] = env.Sweep.Status
	}
	return out
}

func webhookRoute(url string, on ...string) config.NotificationConfig {
	return config.NotificationConfig{Type: "webhook", On: on, Config: config.NotificationDetails{URL: url}}
}

func TestDispatcherRoutesBySweepStatus(t *testing.T) {
	var completed, problems, all capture
	completedSrv := httptest.NewServer(http.HandlerFunc(completed.handler))
	defer completedSrv.Close()
	problemsSrv := httptest.NewServer(http.HandlerFunc(problems.handler))
	defer problemsSrv.Close()
	allSrv := httptest.NewServer(http.HandlerFunc(all.handler))
	defer allSrv.Close()

	d, err := NewDispatcher([]config.NotificationConfig{
		webhookRoute(completedSrv.URL, "success"),
		webhookRoute(problemsSrv.URL, "failed", "misconfigured"),
		webhookRoute(allSrv.URL, "all"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Notify(ctx, Event{Container: "imagesharp", Status: retention.StatusCompleted, Deleted: 4}))
	require.NoError(t, d.Notify(ctx, Event{Container: "imagesharp", Status: retention.StatusFailed, Error: "boom"}))
	require.NoError(t, d.Notify(ctx, Event{Status: retention.StatusMisconfigured}))
	require.NoError(t, d.Notify(ctx, Event{Container: "imagesharp", Status: retention.StatusCanceled}))

	assert.Equal(t, []retention.Status{retention.StatusCompleted}, completed.statuses())
	assert.Equal(t, []retention.Status{retention.StatusFailed, retention.StatusMisconfigured}, problems.statuses())
	assert.Equal(t, []retention.Status{retention.StatusCompleted, retention.StatusFailed, retention.StatusMisconfigured}, all.statuses())
}

func TestDispatcherAnnouncesMisconfigurationOnce(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	d, err := NewDispatcher([]config.NotificationConfig{webhookRoute(srv.URL, "all")})
	require.NoError(t, err)

	ctx := context.Background()
	misconfigured := Event{Status: retention.StatusMisconfigured}
	completed := Event{Status: retention.StatusCompleted}

	for _, ev := range []Event{misconfigured, misconfigured, misconfigured, completed, completed, misconfigured} {
		require.NoError(t, d.Notify(ctx, ev))
	}

	assert.Equal(t, []retention.Status{
		retention.StatusMisconfigured,
		retention.StatusCompleted,
		retention.StatusCompleted,
		retention.StatusMisconfigured,
	}, c.statuses())
}

func TestWebhookEnvelope(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	nf, err := NewWebhook(srv.URL, map[string]string{"X-Token": "t0k", EventHeader: "spoofed"})
	require.NoError(t, err)
	w := nf.(*webhookNotifier)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)) }
	w.newID = func() string { return "d3l1v3ry" }

	due := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Notify(context.Background(), Event{
		Container: "imagesharp",
		Status:    retention.StatusCompleted,
		Deleted:   4,
		MaxAge:    "2160h0m0s",
		NextDue:   due,
	}))

	require.Len(t, c.envelopes, 1)
	env := c.envelopes[0]
	assert.Equal(t, "d3l1v3ry", env.ID)
	assert.Equal(t, "cachesweep.sweep.completed", env.Type)
	assert.True(t, env.Time.Equal(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, env.Time.Location())
	assert.Equal(t, "imagesharp: deleted 4 expired objects", env.Summary)
	assert.Equal(t, 4, env.Sweep.Deleted)
	assert.True(t, env.Sweep.NextDue.Equal(due))

	h := c.headers[0]
	assert.Equal(t, "t0k", h.Get("X-Token"))
	assert.Equal(t, "cachesweep.sweep.completed", h.Get(EventHeader))
	assert.Equal(t, "d3l1v3ry", h.Get(DeliveryHeader))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestDispatcherReportsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]config.NotificationConfig{webhookRoute(srv.URL, "completed")})
	require.NoError(t, err)

	err = d.Notify(context.Background(), Event{Status: retention.StatusCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "cachesweep.sweep.completed")
}

func TestNewDispatcherRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotificationConfig
	}{
		{name: "missing on", cfg: config.NotificationConfig{Type: "webhook", Config: config.NotificationDetails{URL: "http://x"}}},
		{name: "unknown on", cfg: webhookRoute("http://x", "always")},
		{name: "skipped is not announced", cfg: webhookRoute("http://x", "skipped")},
		{name: "unknown type", cfg: config.NotificationConfig{Type: "pager", On: []string{"both"}}},
		{name: "webhook without url", cfg: config.NotificationConfig{Type: "webhook", On: []string{"both"}}},
		{name: "email half auth", cfg: config.NotificationConfig{Type: "email", On: []string{"both"}, Config: config.NotificationDetails{
			SMTPHost: "smtp.example.test", SMTPPort: 25, From: "a@example.test", To: "b@example.test", Username: "u",
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher([]config.NotificationConfig{tt.cfg})
			assert.Error(t, err)
		})
	}
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.Notify(context.Background(), Event{Status: retention.StatusFailed}))
}

func TestEventFromResult(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	ev := EventFromResult(
		retention.Policy{ContainerName: "imagesharp", MaxAge: time.Minute, TestMode: true},
		retention.Result{Status: retention.StatusFailed, Deleted: 2, Err: errors.New("list failed"), Duration: 1234567 * time.Microsecond, NextDue: due},
	)

	assert.Equal(t, Event{
		Container: "imagesharp",
		Status:    retention.StatusFailed,
		Deleted:   2,
		MaxAge:    "1m0s",
		TestMode:  true,
		Duration:  "1.235s",
		NextDue:   due,
		Error:     "list failed",
	}, ev)
}

func TestEmailBody(t *testing.T) {
	t.Run("failed", func(t *testing.T) {
		body := buildEmailBody(Event{
			Container: "imagesharp",
			Status:    retention.StatusFailed,
			Deleted:   2,
			MaxAge:    "1m0s",
			TestMode:  true,
			Duration:  "15ms",
			NextDue:   time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC),
			Error:     "list failed",
		})

		assert.Contains(t, body, "imagesharp: sweep failed after 2 deletes")
		assert.Contains(t, body, "deleted: 2")
		assert.Contains(t, body, "test mode: on")
		assert.Contains(t, body, "error: list failed")
		assert.Contains(t, body, "next attempt: 2026-03-01T12:01:00Z")
	})

	t.Run("misconfigured", func(t *testing.T) {
		body := buildEmailBody(Event{Status: retention.StatusMisconfigured, Error: retention.ErrIncompleteConfig.Error()})

		assert.Contains(t, body, "cache: retention is enabled but the container is not configured")
		assert.Contains(t, body, config.KeyCacheConnectionString)
		assert.Contains(t, body, config.KeyCacheContainerName)
		assert.NotContains(t, body, "deleted:")
	})

	assert.Equal(t, []string{"a@x.test", "b@x.test"}, splitRecipients(" a@x.test, ,b@x.test "))
}
