package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/notify"
	"github.com/dev-tams/cachesweep/internal/retention"
)

func TestNotificationContextIgnoresParentCancelAndPreservesValues(t *testing.T) {
	type key string
	const k key = "trace"

	parent, stop := context.WithCancel(context.WithValue(context.Background(), k, "abc"))
	stop()

	ctx, cancel := notificationContext(parent)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatalf("notification context should not be canceled by parent cancel")
	default:
	}

	if got := ctx.Value(k); got != "abc" {
		t.Fatalf("expected context value to be preserved, got %v", got)
	}
}

func TestNotificationContextAppliesTimeout(t *testing.T) {
	ctx, cancel := notificationContext(context.Background())
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline to be set")
	}

	remaining := time.Until(dl)
	if remaining <= 0 || remaining > notificationTimeout+time.Second {
		t.Fatalf("unexpected deadline window: %s", remaining)
	}
}

func TestSweepNotifierPostsFailureEvent(t *testing.T) {
	var got notify.Envelope
	var eventHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventHeader = r.Header.Get(notify.EventHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dispatcher, err := notify.NewDispatcher([]config.NotificationConfig{
		{Type: "webhook", On: []string{"problems"}, Config: config.NotificationDetails{URL: srv.URL}},
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	n := &sweepNotifier{dispatcher: dispatcher, logger: zap.NewNop()}

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	n.NotifySweep(parent,
		retention.Policy{ContainerName: "imagesharp", MaxAge: time.Minute, TestMode: true},
		retention.Result{Status: retention.StatusFailed, Deleted: 2, Err: errors.New("list failed")},
	)

	ev := got.Sweep
	if eventHeader != "cachesweep.sweep.failed" || got.Type != eventHeader {
		t.Fatalf("unexpected event type: header %q body %q", eventHeader, got.Type)
	}
	if ev.Status != retention.StatusFailed || ev.Container != "imagesharp" || ev.Deleted != 2 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Error != "list failed" || ev.MaxAge != "1m0s" || !ev.TestMode {
		t.Fatalf("unexpected event details: %+v", ev)
	}
}

func TestSweepNotifierReportsMisconfiguredOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dispatcher, err := notify.NewDispatcher([]config.NotificationConfig{
		{Type: "webhook", On: []string{"problems"}, Config: config.NotificationDetails{URL: srv.URL}},
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	n := &sweepNotifier{dispatcher: dispatcher, logger: zap.NewNop()}

	misconfigured := retention.Result{Status: retention.StatusMisconfigured, Err: retention.ErrIncompleteConfig}
	for range 3 {
		n.NotifySweep(context.Background(), retention.Policy{Enabled: true}, misconfigured)
	}

	if calls != 1 {
		t.Fatalf("expected one delivery for repeated misconfiguration, got %d", calls)
	}
}
