package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barn-economy-backend/internal/features/lives/models"
	livesrepo "barn-economy-backend/internal/features/lives/repository"

	"github.com/alicebob/miniredis/v2"
	go_redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurchases struct {
	mu      sync.Mutex
	seen    map[string]bool
	applied []*models.Purchase
	failing bool
}

func (f *fakePurchases) ApplyPurchase(_ context.Context, p *models.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("database down")
	}
	if f.seen[p.Reference] {
		return livesrepo.ErrDuplicatePayment
	}
	f.seen[p.Reference] = true
	f.applied = append(f.applied, p)
	return nil
}

func newStreamWorker(t *testing.T) (*PaymentStreamWorker, *fakePurchases, *go_redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := go_redis.NewClient(&go_redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	purchases := &fakePurchases{seen: map[string]bool{}}
	w := NewPaymentStreamWorker(client, purchases, StreamConfig{
		Stream:   "payments:events",
		Group:    "barn_economy",
		Consumer: "test",
		Block:    10 * time.Millisecond,
	})
	require.NoError(t, client.XGroupCreateMkStream(context.Background(), "payments:events", "barn_economy", "$").Err())
	return w, purchases, client
}

func publish(t *testing.T, client *go_redis.Client, values map[string]interface{}) {
	t.Helper()
	require.NoError(t, client.XAdd(context.Background(), &go_redis.XAddArgs{
		Stream: "payments:events",
		Values: values,
	}).Err())
}

func pending(t *testing.T, client *go_redis.Client) int64 {
	t.Helper()
	res, err := client.XPending(context.Background(), "payments:events", "barn_economy").Result()
	require.NoError(t, err)
	return res.Count
}

func TestPaymentEventsAreCreditedOnce(t *testing.T) {
	w, purchases, client := newStreamWorker(t)
	ctx := context.Background()

	event := map[string]interface{}{
		"type":      "payment_confirmed",
		"user_id":   "u1",
		"kind":      "lives",
		"quantity":  "3",
		"reference": "pay_1",
	}
	publish(t, client, event)
	publish(t, client, event)
	publish(t, client, map[string]interface{}{"type": "refund_issued", "reference": "pay_9"})

	acked, err := w.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, acked)
	assert.Zero(t, pending(t, client))

	require.Len(t, purchases.applied, 1)
	p := purchases.applied[0]
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, models.PurchaseLives, p.Kind)
	assert.Equal(t, 3, p.Quantity)
}

func TestMalformedPaymentEventsAreDropped(t *testing.T) {
	w, purchases, client := newStreamWorker(t)

	publish(t, client, map[string]interface{}{"type": "payment_confirmed", "user_id": "u1", "kind": "gems", "quantity": "1", "reference": "r1"})
	publish(t, client, map[string]interface{}{"type": "payment_confirmed", "user_id": "u1", "kind": "pass", "quantity": "zero", "reference": "r2"})
	publish(t, client, map[string]interface{}{"type": "payment_confirmed", "kind": "pass", "quantity": "1", "reference": "r3"})

	acked, err := w.poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, acked)
	assert.Empty(t, purchases.applied)
}

func TestFailedCreditStaysPending(t *testing.T) {
	w, purchases, client := newStreamWorker(t)
	purchases.failing = true

	publish(t, client, map[string]interface{}{"type": "payment_confirmed", "user_id": "u1", "kind": "attempts", "quantity": "5", "reference": "pay_2"})

	acked, err := w.poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, acked)
	assert.EqualValues(t, 1, pending(t, client))
}

func TestPollWithNoMessages(t *testing.T) {
	w, _, _ := newStreamWorker(t)
	acked, err := w.poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, acked)
}

func TestStartStopsOnCancel(t *testing.T) {
	w, purchases, client := newStreamWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	publish(t, client, map[string]interface{}{"type": "payment_confirmed", "user_id": "u2", "kind": "pass", "quantity": "1", "reference": "pay_3"})
	require.Eventually(t, func() bool {
		purchases.mu.Lock()
		defer purchases.mu.Unlock()
		return len(purchases.applied) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
