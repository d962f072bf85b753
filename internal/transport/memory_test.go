package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemory_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a, err := m.Subscribe(ctx, "bridge:a")
	require.NoError(t, err)
	other, err := m.Subscribe(ctx, "bridge:b")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "bridge:a", []byte("one")))
	require.NoError(t, m.Publish(ctx, "bridge:a", []byte("two")))

	assert.Equal(t, "one", string(receive(t, a)))
	assert.Equal(t, "two", string(receive(t, a)))
	assert.Empty(t, other.Messages())
}

func TestMemory_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.Subscribe(ctx, "ch")
	require.NoError(t, err)

	payload := []byte("hello")
	require.NoError(t, m.Publish(ctx, "ch", payload))
	payload[0] = 'j'

	assert.Equal(t, "hello", string(receive(t, sub)))
}

func TestMemory_FailEndsSubscriptionsWithError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.Subscribe(ctx, "ch")
	require.NoError(t, err)

	lost := errors.New("connection reset")
	m.Fail(lost)

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), lost)
	assert.Equal(t, 0, m.SubscriberCount("ch"))
}

func TestMemory_SubscriptionClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.Subscribe(ctx, "ch")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
	assert.NoError(t, m.Publish(ctx, "ch", []byte("dropped")))
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.Subscribe(ctx, "ch")
	require.NoError(t, err)

	require.NoError(t, m.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.ErrorIs(t, m.Publish(ctx, "ch", nil), ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
	_, err = m.Subscribe(ctx, "ch")
	assert.ErrorIs(t, err, ErrClosed)
}
