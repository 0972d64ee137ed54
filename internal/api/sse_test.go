package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/store"
)

func TestStreamer_EmitsNewEventsAsSSEFrames(t *testing.T) {
	s := store.New(time.Hour)
	st := newStreamer(s, zap.NewNop())

	srv := httptest.NewServer(st)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// 首个 keep-alive 注释帧到达说明游标已就位，之后追加的事件必然被推送
	requireLineContains(t, reader, ": keep-alive")

	s.Append(&model.LiquidationEvent{
		Timestamp: model.Now(),
		Symbol:    "BTC",
		Exchange:  model.ExchangeBinance,
		Price:     50000,
		Direction: model.DirectionLongLiquidated,
		Amount:    100,
	})

	frame := requireDataFrame(t, reader)
	var events []publicEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "BTC", events[0].Symbol)
}

// TestStreamer_BatchesMultipleEventsIntoOneFrame 覆盖一次轮询周期内出现多条
// 事件的场景：应合并为单个 JSON 数组帧，而不是逐事件各发一帧。
func TestStreamer_BatchesMultipleEventsIntoOneFrame(t *testing.T) {
	s := store.New(time.Hour)
	st := newStreamer(s, zap.NewNop())

	srv := httptest.NewServer(st)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/stream?symbols=BTC", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	requireLineContains(t, reader, ": keep-alive")

	for i := 0; i < 3; i++ {
		s.Append(&model.LiquidationEvent{
			Timestamp: model.Now(),
			Symbol:    "BTC",
			Exchange:  model.ExchangeBinance,
			Price:     float64(50000 + i),
			Direction: model.DirectionLongLiquidated,
			Amount:    100,
		})
	}
	s.Append(&model.LiquidationEvent{
		Timestamp: model.Now(),
		Symbol:    "ETH",
		Exchange:  model.ExchangeBinance,
		Price:     3000,
		Direction: model.DirectionLongLiquidated,
		Amount:    50,
	})

	frame := requireDataFrame(t, reader)

	var events []publicEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &events))
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "BTC", e.Symbol)
	}
}

// requireDataFrame 读取到下一个 "data: " 帧并返回该行
func requireDataFrame(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return line
		}
	}
	t.Fatal("未在超时内读到 data 帧")
	return ""
}

func requireLineContains(t *testing.T, reader *bufio.Reader, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, substr) {
			return
		}
	}
	t.Fatalf("未在超时内读到包含 %q 的行", substr)
}
