package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditQueues are the queues drained into the audit log.
var AuditQueues = []string{
	QueueReservationConfirmed,
	QueueReservationExpired,
	QueueReservationCancelled,
	QueueOpsAlerts,
}

// AuditConsumer appends every reservation event and alert to a log file.
type AuditConsumer struct {
	url  string
	path string
	log  *logrus.Logger
}

// NewAuditConsumer writes to dir/booking.log.
func NewAuditConsumer(url, dir string, log *logrus.Logger) *AuditConsumer {
	return &AuditConsumer{url: url, path: filepath.Join(dir, "booking.log"), log: log}
}

// Run connects, declares the audit queues and consumes until ctx is done.
// Broker failures are retried with exponential backoff capped at 30s.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.url)
		if err != nil {
			a.log.WithError(err).Warnf("audit-consumer: dial failed; retrying in %s", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		a.log.WithError(err).Warn("audit-consumer: consume loop ended; reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

type delivery struct {
	queue string
	amqp.Delivery
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.log.WithError(err).Warn("audit-consumer: set QoS failed")
	}

	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	for _, q := range AuditQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(q string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: q, Delivery: d}:
				case <-done:
					return
				}
			}
		}(q, msgs)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closed:
			if err != nil {
				return err
			}
			return errors.New("channel closed")
		case d := <-merged:
			if err := a.append(d.queue, d.Body); err != nil {
				a.log.WithError(err).WithField("queue", d.queue).Error("audit-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (a *AuditConsumer) append(queue string, body []byte) error {
	line, err := FormatAuditLine(queue, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders one message as a single human-friendly line.
func FormatAuditLine(queue string, body []byte) (string, error) {
	if queue == QueueOpsAlerts {
		var al OpsAlert
		if err := json.Unmarshal(body, &al); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		keys := make([]string, 0, len(al.Fields))
		for k := range al.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, " | %s=%s", k, al.Fields[k])
		}
		return fmt.Sprintf("[%s] ALERT %s | %s%s\n",
			al.OccurredAt.UTC().Format(time.RFC3339), al.Kind, al.Message, b.String()), nil
	}

	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	verb := strings.TrimPrefix(queue, "reservation.")
	line := fmt.Sprintf("[%s] Reservation %s | reservation_id=%s | session_id=%s | event=%q | qty=%d | total=%d %s",
		ev.OccurredAt.UTC().Format(time.RFC3339), verb, ev.ReservationID, ev.EventSessionID,
		ev.EventTitle, ev.Quantity, ev.TotalAmount, ev.Currency)
	if ev.Reason != "" {
		line += fmt.Sprintf(" | reason=%q", ev.Reason)
	}
	return line + "\n", nil
}
