// Package notify delivers retention sweep outcomes to webhooks and mailboxes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/retention"
)

// Event describes one sweep attempt.
type Event struct {
	Container string           `json:"container"`
	Status    retention.Status `json:"status"`
	Deleted   int              `json:"deleted"`
	MaxAge    string           `json:"max_age"`
	TestMode  bool             `json:"test_mode,omitempty"`
	Duration  string           `json:"duration,omitempty"`
	NextDue   time.Time        `json:"next_due,omitzero"`
	Error     string           `json:"error,omitempty"`
}

// EventFromResult builds the event for a finished attempt under p.
func EventFromResult(p retention.Policy, r retention.Result) Event {
	ev := Event{
		Container: p.ContainerName,
		Status:    r.Status,
		Deleted:   r.Deleted,
		MaxAge:    p.MaxAge.String(),
		TestMode:  p.TestMode,
		NextDue:   r.NextDue,
	}
	if r.Duration > 0 {
		ev.Duration = r.Duration.Round(time.Millisecond).String()
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// Summary is a one-line description used for mail subjects and webhook payloads.
func Summary(ev Event) string {
	name := ev.Container
	if strings.TrimSpace(name) == "" {
		name = "cache"
	}
	switch ev.Status {
	case retention.StatusCompleted:
		return fmt.Sprintf("%s: deleted %d expired objects", name, ev.Deleted)
	case retention.StatusFailed:
		return fmt.Sprintf("%s: sweep failed after %d deletes", name, ev.Deleted)
	case retention.StatusMisconfigured:
		return fmt.Sprintf("%s: retention is enabled but the container is not configured", name)
	default:
		return fmt.Sprintf("%s: %s", name, ev.Status)
	}
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type route struct {
	on       map[retention.Status]bool
	notifier Notifier
}

// Dispatcher fans events out to the routes subscribed to their status.
// A misconfigured attempt is announced once per container until another
// status is seen, since the loop retries it every minute.
type Dispatcher struct {
	routes []route

	mu   sync.Mutex
	last map[string]retention.Status
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	routes := make([]route, 0, len(cfgs))
	for i, n := range cfgs {
		on, err := parseOn(n.On)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}

		var nf Notifier
		switch strings.ToLower(strings.TrimSpace(n.Type)) {
		case "webhook":
			nf, err = NewWebhook(n.Config.URL, n.Config.Headers)
		case "email":
			nf, err = NewEmail(n.Config.SMTPHost, n.Config.SMTPPort, n.Config.From, n.Config.To, n.Config.Username, n.Config.Password)
		default:
			return nil, fmt.Errorf("notifications[%d]: unsupported notification type %q", i, n.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("notifications[%d] %s: %w", i, strings.ToLower(n.Type), err)
		}
		routes = append(routes, route{on: on, notifier: nf})
	}
	return &Dispatcher{routes: routes, last: make(map[string]retention.Status)}, nil
}

func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil || len(d.routes) == 0 {
		return nil
	}
	if d.repeated(event) {
		return nil
	}

	var errs []error
	for i, r := range d.routes {
		if !r.on[event.Status] {
			continue
		}
		if err := r.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notification route %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) repeated(event Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seen := d.last[event.Container]
	d.last[event.Container] = event.Status
	return seen && prev == event.Status && event.Status == retention.StatusMisconfigured
}

var onAliases = map[string][]retention.Status{
	"completed":     {retention.StatusCompleted},
	"success":       {retention.StatusCompleted},
	"failed":        {retention.StatusFailed},
	"failure":       {retention.StatusFailed},
	"misconfigured": {retention.StatusMisconfigured},
	"both":          {retention.StatusCompleted, retention.StatusFailed},
	"problems":      {retention.StatusFailed, retention.StatusMisconfigured},
	"all":           {retention.StatusCompleted, retention.StatusFailed, retention.StatusMisconfigured},
}

func parseOn(raw []string) (map[retention.Status]bool, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("on must list at least one of completed, failed, misconfigured, both, problems or all")
	}

	on := make(map[retention.Status]bool)
	for _, v := range raw {
		statuses, ok := onAliases[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return nil, fmt.Errorf("on contains unsupported value %q", v)
		}
		for _, s := range statuses {
			on[s] = true
		}
	}
	return on, nil
}
