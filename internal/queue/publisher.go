package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// defaultDialTimeout bounds the TCP connect and AMQP handshake.  Publishing
// runs after commit on request and webhook paths, so an unreachable broker
// must not hold the response.
const defaultDialTimeout = 3 * time.Second

// Publisher sends messages to RabbitMQ.  It dials per publish: messages
// are rare (one per terminal reservation transition) and a long-lived
// connection would need its own reconnect supervision.
type Publisher struct {
	url         string
	log         *logrus.Logger
	dialTimeout time.Duration
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: log, dialTimeout: defaultDialTimeout}
}

// dial connects within dialTimeout, or sooner when ctx expires first.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// PublishReservationEvent routes ev to the queue named by ev.Type.
func (p *Publisher) PublishReservationEvent(ctx context.Context, ev ReservationEvent) error {
	switch ev.Type {
	case QueueReservationConfirmed, QueueReservationExpired, QueueReservationCancelled:
	default:
		return fmt.Errorf("unknown reservation event type %q", ev.Type)
	}
	return p.publish(ctx, ev.Type, ev)
}

// PublishAlert sends a to the ops.alerts queue.
func (p *Publisher) PublishAlert(ctx context.Context, a OpsAlert) error {
	return p.publish(ctx, QueueOpsAlerts, a)
}

func (p *Publisher) publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queue, err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: queue declare failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

// NopPublisher drops every message.  It is used when EVENTS_ENABLED=false.
type NopPublisher struct{}

func (NopPublisher) PublishReservationEvent(context.Context, ReservationEvent) error { return nil }

func (NopPublisher) PublishAlert(context.Context, OpsAlert) error { return nil }
