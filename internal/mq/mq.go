package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teamtasks/apiserver/types"
)

// EventTypeAttribute carries the notification type of a published task
// event so subscribers can filter without decoding the body.
const EventTypeAttribute = "event_type"

// Message is one delivery from the task event queue.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a delivery. A non-nil error hands the message back to
// the broker for redelivery.
type Handler func(ctx context.Context, msg Message) error

// broker is a transport bound to a single queue or topic.
type broker interface {
	send(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	receive(ctx context.Context, handler Handler) error
	Close() error
}

var errSubscriptionEnded = errors.New("subscription ended")

// TaskQueue carries task events from the task service to the notification
// consumer over the configured channel.
type TaskQueue struct {
	broker  broker
	channel string
}

func newTaskQueue(channel string, b broker) *TaskQueue {
	return &TaskQueue{broker: b, channel: channel}
}

func (q *TaskQueue) Channel() string {
	return q.channel
}

// PublishTaskEvent encodes event as JSON and returns the broker message id.
func (q *TaskQueue) PublishTaskEvent(ctx context.Context, event types.TaskEvent) (string, error) {
	if event.TaskID < 1 {
		return "", errors.New("task event requires a task id")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode task event: %w", err)
	}

	var attrs map[string]string
	if event.Type != "" {
		attrs = map[string]string{EventTypeAttribute: string(event.Type)}
	}
	id, err := q.broker.send(ctx, data, attrs)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", q.channel, err)
	}
	return id, nil
}

// Consume delivers messages to handler until ctx is done or the broker
// drops the subscription. It returns ctx.Err() after cancellation and a
// non-nil error otherwise, so callers can tell a shutdown from an outage.
func (q *TaskQueue) Consume(ctx context.Context, handler Handler) error {
	err := q.broker.receive(ctx, handler)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errSubscriptionEnded
	}
	return fmt.Errorf("consume %s: %w", q.channel, err)
}

func (q *TaskQueue) Close() error {
	return q.broker.Close()
}
