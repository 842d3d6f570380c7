package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

// Message is one outbound notification. Dispatch is fire-and-forget from the
// booking protocol's point of view: enqueued rows in the notifications table
// are the durable record, this is the best-effort delivery attempt.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type EmailDispatcher struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailDispatcher(host string, port int, username, password, from string) *EmailDispatcher {
	return &EmailDispatcher{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (d *EmailDispatcher) Send(ctx context.Context, msg Message) error {
	const op = "notify.EmailDispatcher.Send"

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- d.dialer.DialAndSend(m)
	}()

	wait := 30 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until > 0 && until < wait {
			wait = until
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

// LogDispatcher is used when SMTP is not configured.
type LogDispatcher struct {
	log *slog.Logger
}

func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.log.Info("Notification dispatched",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
