package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teamtasks/apiserver/config"
)

// ErrDisabled is returned by Open when no broker is configured.
var ErrDisabled = errors.New("message queue disabled")

// Open connects to the broker selected by cfg.Backend and binds it to
// cfg.Channel.
func Open(ctx context.Context, cfg config.MQConfig) (*TaskQueue, error) {
	if cfg.Backend == config.MQBackendNone || cfg.Backend == "" {
		return nil, ErrDisabled
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errors.New("mq channel is required")
	}

	var (
		b   broker
		err error
	)
	switch cfg.Backend {
	case config.MQBackendRabbitMQ:
		b, err = dialRabbitMQ(cfg.RabbitMQ, channel)
	case config.MQBackendPubSub:
		b, err = newPubSubTopic(ctx, cfg.PubSub, channel)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}
	return newTaskQueue(channel, b), nil
}
