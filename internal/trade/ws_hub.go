// WebSocket hub for real-time trade and price broadcasting.

package trade

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
)

// Event types pushed to WebSocket clients.
const (
	EventTradeExecuted = "trade_executed"
	EventPricesUpdated = "prices_updated"
)

// WSStock is the wire form of an instrument in WebSocket messages.
type WSStock struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	TradeID    int64     `json:"trade_id,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Side       string    `json:"side,omitempty"`
	Quantity   int64     `json:"quantity,omitempty"`
	Price      string    `json:"price,omitempty"`
	NewBalance string    `json:"new_balance,omitempty"`
	Stocks     []WSStock `json:"stocks,omitempty"`
}

// WSHub manages WebSocket connections and broadcasts messages to all
// connected clients when trades commit or prices change.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called in
// a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			slog.Info("ws client connected", "total", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking trade execution.
	}
}

// TradeExecuted implements Notifier.
func (h *WSHub) TradeExecuted(t model.Trade, symbol string, newBalance decimal.Decimal) {
	h.Broadcast(WSMessage{
		Type:       EventTradeExecuted,
		TradeID:    t.ID,
		Symbol:     symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		Price:      model.FormatMoney(t.Price),
		NewBalance: model.FormatMoney(newBalance),
	})
}

// PricesUpdated broadcasts a new set of market prices.
func (h *WSHub) PricesUpdated(instruments []model.Instrument) {
	stocks := make([]WSStock, 0, len(instruments))
	for _, i := range instruments {
		stocks = append(stocks, WSStock{ID: i.ID, Symbol: i.Symbol, Price: model.FormatMoney(i.Price)})
	}
	h.Broadcast(WSMessage{Type: EventPricesUpdated, Stocks: stocks})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}()
}
