package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	received := make(chan any, 1)
	b.Subscribe(TopicRequestComplete, func(ctx context.Context, topic string, payload any) {
		received <- payload
	})

	b.Publish(context.Background(), TopicRequestComplete, RequestComplete{Model: "x"})

	select {
	case p := <-received:
		rc, ok := p.(RequestComplete)
		require.True(t, ok)
		assert.Equal(t, "x", rc.Model)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var count int32
	unsub := b.Subscribe(TopicRequestStart, func(ctx context.Context, topic string, payload any) {
		atomic.AddInt32(&count, 1)
	})
	unsub()

	b.Publish(context.Background(), TopicRequestStart, RequestStart{})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New(nil)
	b.Subscribe(TopicRequestComplete, func(ctx context.Context, topic string, payload any) {
		time.Sleep(200 * time.Millisecond)
	})

	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), TopicRequestComplete, RequestComplete{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	b := New(nil)
	b.Subscribe(TopicRequestComplete, func(ctx context.Context, topic string, payload any) {
		panic("boom")
	})
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), TopicRequestComplete, RequestComplete{})
		time.Sleep(20 * time.Millisecond)
	})
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New(nil)
	var count int32
	for i := 0; i < 3; i++ {
		b.Subscribe(TopicModelSelected, func(ctx context.Context, topic string, payload any) {
			atomic.AddInt32(&count, 1)
		})
	}
	b.Publish(context.Background(), TopicModelSelected, ModelSelected{})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}
