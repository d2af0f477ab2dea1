package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/usecase"
)

func TestHub_PublishReachesClient(t *testing.T) {
	hub := NewHub(8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	order := &domain.Order{ID: "o-1", Symbol: "BTCUSDT", Status: domain.StatusStopLoss}
	hub.Publish(usecase.OrderEvent{Type: usecase.EventOrderClosed, Order: order, Time: time.Unix(0, 0).UTC()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got usecase.OrderEvent
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != usecase.EventOrderClosed || got.Order == nil || got.Order.ID != "o-1" {
		t.Fatalf("unexpected event: %s", msg)
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Publish(usecase.OrderEvent{Type: usecase.EventOrderCreated})
	if hub.Clients() != 0 {
		t.Fatal("no clients expected")
	}
}
