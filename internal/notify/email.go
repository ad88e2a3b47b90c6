package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/retention"
)

type emailNotifier struct {
	host     string
	port     int
	from     string
	to       []string
	username string
	password string
}

func NewEmail(host string, port int, from, to, username, password string) (Notifier, error) {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if host == "" {
		return nil, fmt.Errorf("config.smtp_host is required")
	}
	if port <= 0 {
		return nil, fmt.Errorf("config.smtp_port must be > 0")
	}
	if from == "" {
		return nil, fmt.Errorf("config.from is required")
	}
	if to == "" {
		return nil, fmt.Errorf("config.to is required")
	}

	recipients := splitRecipients(to)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("config.to must include at least one recipient")
	}

	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if (username == "") != (password == "") {
		return nil, fmt.Errorf("config.username and config.password must be set together")
	}

	return &emailNotifier{
		host:     host,
		port:     port,
		from:     from,
		to:       recipients,
		username: username,
		password: password,
	}, nil
}

func (e *emailNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := "[cachesweep] " + Summary(event)
	body := buildEmailBody(event)
	msg := []byte(strings.Join([]string{
		"From: " + e.from,
		"To: " + strings.Join(e.to, ", "),
		"Subject: " + subject,
		EventHeader + ": " + eventPrefix + string(event.Status),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n"))

	addr := e.host + ":" + strconv.Itoa(e.port)
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	if err := smtp.SendMail(addr, auth, e.from, e.to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildEmailBody(event Event) string {
	lines := []string{Summary(event), ""}

	switch event.Status {
	case retention.StatusMisconfigured:
		lines = append(lines,
			"The retention loop is enabled but has no container to sweep.",
			"Set "+config.KeyCacheConnectionString+" and "+config.KeyCacheContainerName+".",
			"Further attempts are retried every minute and not reported again until this changes.",
		)
	default:
		lines = append(lines,
			"container: "+event.Container,
			fmt.Sprintf("deleted: %d", event.Deleted),
			"max age: "+event.MaxAge,
		)
		if event.Duration != "" {
			lines = append(lines, "duration: "+event.Duration)
		}
		if event.TestMode {
			lines = append(lines, "test mode: on")
		}
	}

	if event.Error != "" {
		lines = append(lines, "error: "+event.Error)
	}
	if !event.NextDue.IsZero() {
		lines = append(lines, "next attempt: "+event.NextDue.UTC().Format(time.RFC3339))
	}
	return strings.Join(lines, "\n")
}

func splitRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
