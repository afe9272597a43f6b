package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/teamtasks/apiserver/config"
	"google.golang.org/api/option"
)

const subscriptionAckDeadline = 30 * time.Second

// pubsubTopic publishes task events to one Pub/Sub topic and consumes them
// through a single named subscription. Both are created on first use.
type pubsubTopic struct {
	client         *pubsub.Client
	topicID        string
	subscriptionID string

	mu    sync.Mutex
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

func newPubSubTopic(ctx context.Context, cfg config.PubSubConfig, topicID string) (*pubsubTopic, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &pubsubTopic{
		client:         client,
		topicID:        topicID,
		subscriptionID: subscriptionID(topicID, cfg.SubscriptionSuffix),
	}, nil
}

// subscriptionID names the subscription this service reads through. An
// empty suffix reuses the topic id.
func subscriptionID(topicID, suffix string) string {
	return topicID + suffix
}

func (p *pubsubTopic) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}

	topic := p.client.Topic(p.topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, p.topicID); err != nil {
			return nil, err
		}
	}
	p.topic = topic
	return topic, nil
}

func (p *pubsubTopic) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return p.sub, nil
	}

	sub := p.client.Subscription(p.subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		sub, err = p.client.CreateSubscription(ctx, p.subscriptionID, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: subscriptionAckDeadline,
		})
		if err != nil {
			return nil, err
		}
	}
	p.sub = sub
	return sub, nil
}

func (p *pubsubTopic) send(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

func (p *pubsubTopic) receive(ctx context.Context, handler Handler) error {
	sub, err := p.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	// Receive returns nil once ctx is cancelled; TaskQueue.Consume tells
	// that apart from the stream ending on its own.
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (p *pubsubTopic) Close() error {
	p.mu.Lock()
	if p.topic != nil {
		p.topic.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
