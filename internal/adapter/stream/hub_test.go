package stream

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

func alert(id int64) domain.StockAlert {
	return domain.StockAlert{ID: id, ItemID: 9, Message: "low", Timestamp: time.Now().UTC()}
}

func TestHub_DeliversToEverySubscriber(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	_, a := hub.Subscribe()
	_, b := hub.Subscribe()

	require.NoError(t, hub.Broadcast(context.Background(), alert(1)))

	assert.Equal(t, int64(1), (<-a).ID)
	assert.Equal(t, int64(1), (<-b).ID)
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	_, slow := hub.Subscribe()
	_, fast := hub.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 3; i++ {
			hub.Broadcast(context.Background(), alert(i))
			<-fast
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}

	assert.Equal(t, int64(1), (<-slow).ID)
	assert.Equal(t, int64(2), hub.Dropped())
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	id, ch := hub.Subscribe()

	hub.Unsubscribe(id)
	hub.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, _ := hub.Subscribe()
			hub.Unsubscribe(id)
		}()
		go func(n int64) {
			defer wg.Done()
			hub.Broadcast(context.Background(), alert(n))
		}(int64(i))
	}
	wg.Wait()

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestRedisRelay_FeedsLocalHub(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	hub := NewHub(4, zap.NewNop())
	_, ch := hub.Subscribe()
	relay := NewRedisRelay(client, "stock-alerts:test", hub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "stock-alerts:test").Result()
		return err == nil && n["stock-alerts:test"] > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, relay.Broadcast(ctx, alert(77)))

	select {
	case got := <-ch:
		assert.Equal(t, int64(77), got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed alert not delivered")
	}
}
