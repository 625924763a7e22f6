package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDropsWhenQueueFull(t *testing.T) {
	d := NewQueuedDispatcher(1)

	require.NoError(t, d.Publish(context.Background(), Event{ID: "a", Type: EventTicketUpdated}))
	assert.ErrorIs(t, d.Publish(context.Background(), Event{ID: "b", Type: EventTicketUpdated}), ErrQueueFull)

	got := <-d.Events()
	assert.Equal(t, "a", got.ID)
}

func TestPublishAfterClose(t *testing.T) {
	d := NewQueuedDispatcher(4)
	d.Close()
	d.Close()

	assert.ErrorIs(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated}), ErrDispatcherClosed)
	_, open := <-d.Events()
	assert.False(t, open)
}

func TestDeliverRunsEveryHandler(t *testing.T) {
	d := NewQueuedDispatcher(1)
	var calls []string
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})

	err := d.Deliver(context.Background(), Event{Type: EventTicketUpdated})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"first", "second"}, calls)
}
