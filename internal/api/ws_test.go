package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidation-feed-hub/internal/broker"
	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/model"
)

func TestWSServer_SubscribeThenReceivesMatchingEvent(t *testing.T) {
	b := broker.New()
	ws := newWSServer(b, config.WSServerConfig{SymbolsTimeoutMs: 2000, PingIntervalMs: 10000}, zap.NewNop())

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequest{Symbols: []string{"btc"}}))

	// give the server a moment to register the subscription before notifying
	require.Eventually(t, func() bool {
		return b.SubscriberCount("BTC") == 1
	}, time.Second, 10*time.Millisecond)

	b.Notify(&model.LiquidationEvent{
		Timestamp: model.Now(),
		Symbol:    "BTC",
		Exchange:  model.ExchangeBinance,
		Price:     50000,
		Direction: model.DirectionLongLiquidated,
		Amount:    100,
	})

	var got publicEvent
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "BTC", got.Symbol)
	require.Equal(t, 50000.0, got.Price)
}

func TestWSServer_ClosesWhenNoSubscribeMessageArrives(t *testing.T) {
	b := broker.New()
	ws := newWSServer(b, config.WSServerConfig{SymbolsTimeoutMs: 50, PingIntervalMs: 10000}, zap.NewNop())

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var errMsg struct {
		Error string `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, "symbols required", errMsg.Error)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestWSServer_AcceptsQueryStringSymbols(t *testing.T) {
	b := broker.New()
	ws := newWSServer(b, config.WSServerConfig{SymbolsTimeoutMs: 2000, PingIntervalMs: 10000}, zap.NewNop())

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?symbols=btc,eth"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return b.SubscriberCount("BTC") == 1 && b.SubscriberCount("ETH") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWSServer_AcceptsPlainCSVFirstMessage(t *testing.T) {
	b := broker.New()
	ws := newWSServer(b, config.WSServerConfig{SymbolsTimeoutMs: 2000, PingIntervalMs: 10000}, zap.NewNop())

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("btc,eth")))

	require.Eventually(t, func() bool {
		return b.SubscriberCount("BTC") == 1 && b.SubscriberCount("ETH") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWSServer_AcceptsJSONObjectWithStringSymbols(t *testing.T) {
	b := broker.New()
	ws := newWSServer(b, config.WSServerConfig{SymbolsTimeoutMs: 2000, PingIntervalMs: 10000}, zap.NewNop())

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequestString{Symbols: "btc,eth"}))

	require.Eventually(t, func() bool {
		return b.SubscriberCount("BTC") == 1 && b.SubscriberCount("ETH") == 1
	}, time.Second, 10*time.Millisecond)
}
