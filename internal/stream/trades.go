package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"order-matcher/internal/engine"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TradeStream pushes executed trades to websocket clients.
// It is a feed sink on one side and an http.Handler on the other.
type TradeStream struct {
	hub      *Hub[engine.Trade]
	upgrader websocket.Upgrader
	buffer   int
	log      *slog.Logger
}

// NewTradeStream creates a stream giving each client a buffer of size buffer
func NewTradeStream(buffer int, log *slog.Logger) *TradeStream {
	if log == nil {
		log = slog.Default()
	}
	return &TradeStream{
		hub:      NewHub[engine.Trade](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		buffer:   buffer,
		log:      log,
	}
}

func (s *TradeStream) Name() string { return "websocket" }

// Publish broadcasts each trade; it never blocks on clients
func (s *TradeStream) Publish(_ context.Context, trades []engine.Trade) error {
	for _, trade := range trades {
		s.hub.Broadcast(trade)
	}
	return nil
}

// Clients returns the number of connected clients
func (s *TradeStream) Clients() int {
	return s.hub.Len()
}

func (s *TradeStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(s.buffer)
	defer s.hub.Unsubscribe(sub)
	s.log.Debug("trade stream client connected", slog.String("remote", r.RemoteAddr))

	// Reader goroutine notices client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case trade, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage{Type: "trade", Data: trade}); err != nil {
				return
			}
		}
	}
}
