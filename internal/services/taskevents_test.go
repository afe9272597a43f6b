package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamtasks/apiserver/internal/mq"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

// stubSubscriber fails the first failures calls to Consume as a dropped
// broker connection would, then delivers messages and blocks until ctx is
// done.
type stubSubscriber struct {
	messages []mq.Message
	failures int

	mu    sync.Mutex
	calls int
	errs  []error
}

func (s *stubSubscriber) Consume(ctx context.Context, handler mq.Handler) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}

	for _, msg := range s.messages {
		err := handler(ctx, msg)
		s.mu.Lock()
		s.errs = append(s.errs, err)
		s.mu.Unlock()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubSubscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func notificationCount(repo *fakeNotificationRepo) int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return len(repo.notifications)
}

func TestTaskEventConsumer_Handle(t *testing.T) {
	repo := newFakeNotificationRepo()
	consumer := NewTaskEventConsumer(repo, zap.NewNop())

	err := consumer.Handle(context.Background(), mq.Message{
		ID:   "m1",
		Data: []byte(`{"task_id": 5, "title": "Ship release", "team": [2, 1], "text": "New task assigned", "type": "message"}`),
	})
	require.NoError(t, err)

	unread, err := NewNotificationService(repo).ListUnread(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Ship release", unread[0].TaskTitle)
	assert.Equal(t, types.NotificationMessage, unread[0].Type)
	require.NotNil(t, unread[0].TaskID)
	assert.Equal(t, int64(5), *unread[0].TaskID)
	assert.Equal(t, "Ship release", repo.tasks[5])
}

func TestTaskEventConsumer_DropsBadPayloads(t *testing.T) {
	repo := newFakeNotificationRepo()
	consumer := NewTaskEventConsumer(repo, zap.NewNop())
	ctx := context.Background()

	payloads := []string{
		`not json`,
		`{"title": "no id", "team": [1], "text": "x"}`,
		`{"task_id": 1, "team": [], "text": "no recipients"}`,
		`{"task_id": 1, "team": [1], "text": "x", "type": "banner"}`,
	}
	for _, payload := range payloads {
		require.NoError(t, consumer.Handle(ctx, mq.Message{Data: []byte(payload)}), payload)
	}
	assert.Empty(t, repo.notifications)
}

func TestTaskEventConsumer_StoreFailureIsRetried(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.err = errStoreDown
	consumer := NewTaskEventConsumer(repo, zap.NewNop())

	err := consumer.Handle(context.Background(), mq.Message{
		Data: []byte(`{"task_id": 1, "title": "t", "team": [1], "text": "x"}`),
	})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestTaskEventConsumer_RunStopsOnCancel(t *testing.T) {
	repo := newFakeNotificationRepo()
	consumer := NewTaskEventConsumer(repo, zap.NewNop())
	sub := &stubSubscriber{messages: []mq.Message{
		{Data: []byte(`{"task_id": 1, "team": [1], "text": "x"}`)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx, sub)
	}()

	require.Eventually(t, func() bool { return notificationCount(repo) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, sub.callCount())
}

func TestTaskEventConsumer_RunResubscribesAfterLostSubscription(t *testing.T) {
	repo := newFakeNotificationRepo()
	consumer := NewTaskEventConsumer(repo, zap.NewNop()).WithResubscribeDelay(time.Millisecond, 5*time.Millisecond)
	sub := &stubSubscriber{
		failures: 2,
		messages: []mq.Message{
			{Data: []byte(`{"task_id": 1, "team": [1], "text": "after reconnect"}`)},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx, sub)
	}()

	require.Eventually(t, func() bool { return notificationCount(repo) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, sub.callCount())

	cancel()
	<-done
}

func TestTaskEventConsumer_RunCancelDuringBackoff(t *testing.T) {
	consumer := NewTaskEventConsumer(newFakeNotificationRepo(), zap.NewNop()).WithResubscribeDelay(time.Hour, time.Hour)
	sub := &stubSubscriber{failures: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx, sub)
	}()

	require.Eventually(t, func() bool { return sub.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer kept waiting after cancellation")
	}
	assert.Equal(t, 1, sub.callCount())
}
