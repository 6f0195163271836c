package trade_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/trade"
)

func TestWSHub_BroadcastsPriceUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := trade.NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous, so keep publishing until the client hears one.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				hub.PricesUpdated([]model.Instrument{{ID: 1, Symbol: "AAPL", Price: d("157.5")}})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg trade.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != trade.EventPricesUpdated {
		t.Errorf("expected %s, got %s", trade.EventPricesUpdated, msg.Type)
	}
	if msg.EventID == "" {
		t.Error("expected an event id")
	}
	if len(msg.Stocks) != 1 || msg.Stocks[0].Price != "157.50" {
		t.Errorf("unexpected stocks: %+v", msg.Stocks)
	}
}
