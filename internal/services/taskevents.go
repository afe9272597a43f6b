package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/teamtasks/apiserver/internal/mq"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

const (
	minResubscribeDelay = time.Second
	maxResubscribeDelay = 30 * time.Second
)

// Subscriber is the part of the task queue the consumer needs. Consume
// blocks until ctx is done or the subscription is lost.
type Subscriber interface {
	Consume(ctx context.Context, handler mq.Handler) error
}

// TaskEventConsumer turns task events published by the task service into
// team notifications.
type TaskEventConsumer struct {
	notifications *NotificationService
	repo          NotificationRepository
	logger        *zap.Logger

	minDelay time.Duration
	maxDelay time.Duration
}

func NewTaskEventConsumer(repo NotificationRepository, logger *zap.Logger) *TaskEventConsumer {
	return &TaskEventConsumer{
		notifications: NewNotificationService(repo),
		repo:          repo,
		logger:        logger,
		minDelay:      minResubscribeDelay,
		maxDelay:      maxResubscribeDelay,
	}
}

// WithResubscribeDelay returns a copy whose backoff starts at initial and
// doubles up to limit after each lost subscription.
func (c *TaskEventConsumer) WithResubscribeDelay(initial, limit time.Duration) *TaskEventConsumer {
	clone := *c
	clone.minDelay, clone.maxDelay = initial, limit
	return &clone
}

// Run consumes task events until ctx is done. A lost subscription is
// logged and re-established with exponential backoff; a subscription that
// stayed up longer than the maximum delay starts the backoff over.
func (c *TaskEventConsumer) Run(ctx context.Context, sub Subscriber) {
	delay := c.minDelay
	for {
		c.logger.Info("consuming task events")
		started := time.Now()
		err := sub.Consume(ctx, c.Handle)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("subscription ended")
		}
		if time.Since(started) > c.maxDelay {
			delay = c.minDelay
		}

		c.logger.Warn("task event subscription lost", zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxDelay)
	}
}

// Handle processes one message. Payloads that can never succeed are logged
// and dropped; store failures are returned so the broker redelivers.
func (c *TaskEventConsumer) Handle(ctx context.Context, msg mq.Message) error {
	var event types.TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Warn("dropping malformed task event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if event.TaskID < 1 {
		c.logger.Warn("dropping task event without task id", zap.String("message_id", msg.ID))
		return nil
	}

	if event.Title != "" {
		if err := c.repo.UpsertTask(ctx, event.TaskID, event.Title); err != nil {
			return storeError("upsert task", err)
		}
	}

	taskID := event.TaskID
	notification, err := c.notifications.Create(ctx, types.NewNotification{
		Team:   event.Team,
		TaskID: &taskID,
		Text:   event.Text,
		Type:   event.Type,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			c.logger.Warn("dropping invalid task event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return err
	}

	c.logger.Debug("notification created",
		zap.Int64("notification_id", notification.ID),
		zap.Int64("task_id", event.TaskID),
		zap.Int("recipients", len(notification.Team)),
	)
	return nil
}
