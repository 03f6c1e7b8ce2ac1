package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
)

func TestService_PublishSyncDeliversToAllSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	var calls int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, service.Subscribe(interfaces.EventExtractionCompleted, handler))
	require.NoError(t, service.Subscribe(interfaces.EventExtractionCompleted, handler))

	err := service.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventExtractionCompleted,
		Payload: interfaces.ExtractionEvent{JobID: "ext_1", Status: "complete"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_PublishSyncReportsFailures(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.NoError(t, service.Subscribe(interfaces.EventExtractionFailed, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, service.Subscribe(interfaces.EventExtractionFailed, func(ctx context.Context, event interfaces.Event) error {
		panic("handler panic")
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventExtractionFailed})
	assert.ErrorContains(t, err, "2 errors")
}

func TestService_PublishIsAsynchronous(t *testing.T) {
	service := NewService(arbor.NewLogger())

	delivered := make(chan interfaces.Event, 1)
	require.NoError(t, service.Subscribe(interfaces.EventExtractionStarted, func(ctx context.Context, event interfaces.Event) error {
		delivered <- event
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventExtractionStarted, Payload: "x"}))

	select {
	case event := <-delivered:
		assert.Equal(t, "x", event.Payload)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestService_PublishPreservesOrder(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var received []string
	handler := func(ctx context.Context, event interfaces.Event) error {
		received = append(received, event.Payload.(interfaces.ExtractionEvent).Status)
		return nil
	}
	for _, eventType := range interfaces.AllEventTypes {
		require.NoError(t, service.Subscribe(eventType, handler))
	}

	var want []string
	for i := 0; i < 50; i++ {
		status := fmt.Sprintf("stage-%02d", i)
		want = append(want, status)
		eventType := interfaces.EventExtractionProgress
		if i == 49 {
			eventType = interfaces.EventExtractionCompleted
		}
		require.NoError(t, service.Publish(context.Background(), interfaces.Event{
			Type:    eventType,
			Payload: interfaces.ExtractionEvent{JobID: "ext_1", Status: status},
		}))
	}

	// Close drains the queue before returning
	require.NoError(t, service.Close())
	assert.Equal(t, want, received)

	assert.ErrorIs(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventExtractionStarted}), ErrClosed)
	assert.NoError(t, service.Close())
}

func TestService_PublishDropsWhenQueueFull(t *testing.T) {
	service := newService(arbor.NewLogger(), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	require.NoError(t, service.Subscribe(interfaces.EventExtractionProgress, func(ctx context.Context, event interfaces.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}))

	event := interfaces.Event{Type: interfaces.EventExtractionProgress}
	require.NoError(t, service.Publish(context.Background(), event))
	<-started // dispatcher is blocked in the handler

	require.NoError(t, service.Publish(context.Background(), event)) // fills the queue
	require.NoError(t, service.Publish(context.Background(), event)) // dropped

	published, dropped := service.Stats()
	assert.Equal(t, int64(2), published)
	assert.Equal(t, int64(1), dropped)

	close(release)
	require.NoError(t, service.Close())
}

func TestService_Unsubscribe(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var calls int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, service.Subscribe(interfaces.EventWorkflowsReloaded, handler))
	require.NoError(t, service.Unsubscribe(interfaces.EventWorkflowsReloaded, handler))
	assert.Error(t, service.Unsubscribe(interfaces.EventWorkflowsReloaded, handler))

	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventWorkflowsReloaded}))
	assert.Zero(t, atomic.LoadInt32(&calls))

	assert.Error(t, service.Subscribe(interfaces.EventWorkflowsReloaded, nil))
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	service := NewService(arbor.NewLogger())
	require.NoError(t, SubscribeLoggerToAllEvents(service, arbor.NewLogger()))

	for _, eventType := range interfaces.AllEventTypes {
		assert.NoError(t, service.PublishSync(context.Background(), interfaces.Event{
			Type:    eventType,
			Payload: interfaces.ExtractionEvent{JobID: "ext_1", Stage: "upload"},
		}))
	}
}
