package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type alertHistory interface {
	History(ctx context.Context, limit int) ([]domain.StockAlert, error)
}

type alertFeed interface {
	Subscribe() (uint64, <-chan domain.StockAlert)
	Unsubscribe(id uint64)
}

type AlertHandler struct {
	alerts   alertHistory
	feed     alertFeed
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewAlertHandler(alerts alertHistory, feed alertFeed, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		feed:   feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the gateway is the only caller and fronts every origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Get("/alerts", ErrorHandler(h.logger, h.history))
	r.Get("/alerts/stream", h.stream)
}

func (h *AlertHandler) history(w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest("limit must be a non-negative integer")
		}
		limit = n
	}

	alerts, err := h.alerts.History(r.Context(), limit)
	if err != nil {
		return err
	}
	return writeSuccess(w, http.StatusOK, "stock alerts", alerts)
}

// stream pushes every new alert to the websocket as a JSON text frame.
// Alerts raised before the connection opened are not replayed.
func (h *AlertHandler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id, alerts := h.feed.Subscribe()
	defer h.feed.Unsubscribe(id)
	h.logger.Info("alert stream opened", zap.Uint64("subscriber", id))

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Info("alert stream closed", zap.Uint64("subscriber", id))
			return
		case <-r.Context().Done():
			return
		case alert, ok := <-alerts:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debug("alert stream write failed", zap.Uint64("subscriber", id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and notices when the peer goes away.
func (h *AlertHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
