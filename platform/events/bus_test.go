package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingEvent struct{ BaseEvent }

func (pingEvent) EventName() string { return "test.ping" }

func TestInMemoryBusPublishReachesAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var calls atomic.Int32
	for range 3 {
		bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
			calls.Add(1)
			return nil
		}))
	}

	bus.Publish(context.Background(), pingEvent{NewBaseEventAt(time.Now())})
	bus.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestInMemoryBusPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	boom := errors.New("boom")
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error { return boom }))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error { return nil }))

	err := bus.PublishSync(context.Background(), pingEvent{NewBaseEventAt(time.Now())})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestInMemoryBusPublishOutlivesCancelledContext(t *testing.T) {
	bus := NewInMemoryBus(nil)
	done := make(chan error, 1)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, _ Event) error {
		done <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pingEvent{NewBaseEventAt(time.Now())})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}
