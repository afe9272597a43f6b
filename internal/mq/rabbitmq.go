package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/teamtasks/apiserver/config"
)

const redeliveryBackoff = 2 * time.Second

// rabbitQueue publishes to and consumes from one durable RabbitMQ queue on
// the default exchange. The connection is redialled lazily after the broker
// drops it.
type rabbitQueue struct {
	cfg  config.RabbitMQConfig
	name string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialRabbitMQ(cfg config.RabbitMQConfig, name string) (*rabbitQueue, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	q := &rabbitQueue{cfg: cfg, name: name}
	if _, err := q.channel(); err != nil {
		return nil, err
	}
	return q, nil
}

// channel returns the live AMQP channel, dialling and declaring the queue
// when there is none.
func (q *rabbitQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn != nil && !q.conn.IsClosed() {
		return q.ch, nil
	}
	q.closeLocked()

	conn, err := amqp.Dial(q.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if q.cfg.PrefetchCount > 0 {
		if err := ch.Qos(q.cfg.PrefetchCount, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set prefetch: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(q.name, q.cfg.QueueDurable, q.cfg.QueueAutoDelete, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", q.name, err)
	}

	q.conn, q.ch = conn, ch
	return ch, nil
}

// reset discards the current connection so the next call redials.
func (q *rabbitQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *rabbitQueue) closeLocked() {
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn, q.ch = nil, nil
}

func (q *rabbitQueue) send(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	ch, err := q.channel()
	if err != nil {
		return "", err
	}

	deliveryMode := amqp.Transient
	if q.cfg.QueueDurable {
		deliveryMode = amqp.Persistent
	}
	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	id := newMessageID()
	err = ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		MessageId:    id,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		q.reset()
		return "", err
	}
	return id, nil
}

func (q *rabbitQueue) receive(ctx context.Context, handler Handler) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}

	tag := "notifications-" + newMessageID()
	deliveries, err := ch.Consume(q.name, tag, false, false, false, false, nil)
	if err != nil {
		q.reset()
		return fmt.Errorf("consume %s: %w", q.name, err)
	}
	defer func() { _ = ch.Cancel(tag, false) }()

	for {
		var (
			delivery amqp.Delivery
			ok       bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok = <-deliveries:
		}
		if !ok {
			q.reset()
			return errors.New("rabbitmq closed the delivery channel")
		}

		if err := handler(ctx, deliveryMessage(delivery)); err != nil {
			// second failures wait before going back so a store outage
			// does not spin through the queue
			if delivery.Redelivered {
				select {
				case <-ctx.Done():
				case <-time.After(redeliveryBackoff):
				}
			}
			_ = delivery.Nack(false, true)
			continue
		}
		_ = delivery.Ack(false)
	}
}

func (q *rabbitQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return nil
	}
	err := q.conn.Close()
	q.conn, q.ch = nil, nil
	return err
}

func deliveryMessage(d amqp.Delivery) Message {
	msg := Message{ID: d.MessageId, Data: d.Body}
	if len(d.Headers) == 0 {
		return msg
	}
	msg.Attributes = make(map[string]string, len(d.Headers))
	for key, value := range d.Headers {
		switch v := value.(type) {
		case string:
			msg.Attributes[key] = v
		case []byte:
			msg.Attributes[key] = string(v)
		default:
			msg.Attributes[key] = fmt.Sprint(v)
		}
	}
	return msg
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
