package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purgeCall struct {
	userID     int64
	productIDs []int64
	before     time.Time
}

type mockPurger struct {
	m     sync.RWMutex
	calls []purgeCall
	err   error
}

func (p *mockPurger) RemoveOrdered(_ context.Context, userID int64, productIDs []int64, before time.Time) (int, error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.calls = append(p.calls, purgeCall{userID, productIDs, before})
	return len(productIDs), p.err
}

func (p *mockPurger) Calls() []purgeCall {
	p.m.RLock()
	defer p.m.RUnlock()
	return append([]purgeCall(nil), p.calls...)
}

// mockReader replays messages, then blocks until the context ends.
type mockReader struct {
	m        sync.Mutex
	messages []kafka.Message
	closed   bool
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.m.Lock()
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.m.Unlock()
		return m, nil
	}
	r.m.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *mockReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func orderMessage(t *testing.T, eventType string, payload any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte("order-1"),
		Value:   raw,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
		Time:    time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}
}

func TestHandleMessage_OrderCreated(t *testing.T) {
	purger := &mockPurger{}
	c := newOrderConsumer(&mockReader{}, purger, nil)
	placed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := c.handleMessage(context.Background(), orderMessage(t, domain.EventOrderCreated, map[string]any{
		"order_id":    "order-1",
		"user_id":     5,
		"items":       []domain.OrderItem{{ProductID: 10, Quantity: 1}, {ProductID: 11, Quantity: 2}},
		"occurred_at": placed,
	}))
	require.NoError(t, err)

	calls := purger.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(5), calls[0].userID)
	assert.Equal(t, []int64{10, 11}, calls[0].productIDs)
	assert.True(t, placed.Equal(calls[0].before))
}

func TestHandleMessage_FallsBackToMessageTime(t *testing.T) {
	purger := &mockPurger{}
	c := newOrderConsumer(&mockReader{}, purger, nil)

	m := orderMessage(t, domain.EventOrderCreated, map[string]any{
		"order_id": "order-1", "user_id": 5, "items": []domain.OrderItem{{ProductID: 10}},
	})
	require.NoError(t, c.handleMessage(context.Background(), m))
	assert.True(t, m.Time.Equal(purger.Calls()[0].before))
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	purger := &mockPurger{}
	c := newOrderConsumer(&mockReader{}, purger, nil)

	for _, et := range []string{domain.EventOrderPaid, domain.EventOrderExpired, ""} {
		require.NoError(t, c.handleMessage(context.Background(), orderMessage(t, et, map[string]any{"user_id": 5})))
	}
	assert.Empty(t, purger.Calls())
}

func TestHandleMessage_Errors(t *testing.T) {
	c := newOrderConsumer(&mockReader{}, &mockPurger{}, nil)

	bad := orderMessage(t, domain.EventOrderCreated, nil)
	bad.Value = []byte("{not json")
	assert.ErrorContains(t, c.handleMessage(context.Background(), bad), "error parsing message")

	noItems := orderMessage(t, domain.EventOrderCreated, map[string]any{"order_id": "o", "user_id": 5})
	assert.ErrorContains(t, c.handleMessage(context.Background(), noItems), "missing user or items")

	failing := newOrderConsumer(&mockReader{}, &mockPurger{err: errors.New("mongo down")}, nil)
	ok := orderMessage(t, domain.EventOrderCreated, map[string]any{
		"order_id": "o", "user_id": 5, "items": []domain.OrderItem{{ProductID: 1}},
	})
	assert.ErrorContains(t, failing.handleMessage(context.Background(), ok), "mongo down")
}

func TestRun_ProcessesUntilCancelled(t *testing.T) {
	purger := &mockPurger{}
	reader := &mockReader{messages: []kafka.Message{
		orderMessage(t, domain.EventOrderCreated, map[string]any{"order_id": "a", "user_id": 1, "items": []domain.OrderItem{{ProductID: 1}}}),
		orderMessage(t, domain.EventOrderPaid, map[string]any{"order_id": "a", "user_id": 1}),
		orderMessage(t, domain.EventOrderCreated, map[string]any{"order_id": "b", "user_id": 2, "items": []domain.OrderItem{{ProductID: 2}}}),
	}}
	c := newOrderConsumer(reader, purger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(purger.Calls()) == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
