package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

// Hub fans alerts out to the live connections of this process. A subscriber
// whose buffer is full misses the alert; nobody else waits for it.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.StockAlert
	nextID  uint64
	buffer  int
	dropped atomic.Int64
	logger  *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]chan domain.StockAlert),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new listener. The channel is closed by Unsubscribe.
func (h *Hub) Subscribe() (uint64, <-chan domain.StockAlert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan domain.StockAlert, h.buffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Broadcast(ctx context.Context, alert domain.StockAlert) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- alert:
		default:
			h.dropped.Add(1)
			h.logger.Warn("slow stream subscriber, alert dropped", zap.Uint64("subscriber", id), zap.Int64("alert_id", alert.ID))
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
