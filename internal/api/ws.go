package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liquidation-feed-hub/internal/broker"
	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/model"
)

// sendBuffer 是每个 WS 客户端待投递事件的缓冲容量；投递非阻塞，超出即视为慢客户端
const sendBuffer = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer 承载对外 WebSocket 推送端点：客户端连接后先发送订阅的交易对列表，
// 随后通过 broker 接收匹配事件的实时推送
type wsServer struct {
	broker *broker.Broker
	cfg    config.WSServerConfig
	logger *zap.Logger
}

func newWSServer(b *broker.Broker, cfg config.WSServerConfig, logger *zap.Logger) *wsServer {
	return &wsServer{broker: b, cfg: cfg, logger: logger.Named("ws")}
}

// wsClient 是单个 WS 连接的订阅句柄，实现 broker.Subscriber
type wsClient struct {
	conn *websocket.Conn
	send chan *model.LiquidationEvent

	closeOnce sync.Once
}

// Send 实现 broker.Subscriber：非阻塞投递，缓冲满时返回 false 触发自动退订
func (c *wsClient) Send(event *model.LiquidationEvent) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// subscribeRequest 是首条订阅消息可能采用的 JSON 数组形式: {"symbols":["BTC","ETH"]}
type subscribeRequest struct {
	Symbols []string `json:"symbols"`
}

// subscribeRequestString 是首条订阅消息可能采用的 JSON 对象（字符串值）形式: {"symbols":"BTC,ETH"}
type subscribeRequestString struct {
	Symbols string `json:"symbols"`
}

// errSymbolsRequired 是订阅超时或为空时返回给客户端的错误消息
type errSymbolsRequired struct {
	Error string `json:"error"`
}

// ServeHTTP 处理对外 WebSocket 推送连接
// 交易对可通过查询字符串 ?symbols=BTC,ETH 提供，否则等待首条消息，
// 依次尝试 JSON 数组、{"symbols":"BTC,ETH"} 形式的 JSON 对象、纯逗号分隔字符串。
func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	symbols := parseCSVUpper(r.URL.Query().Get("symbols"))

	if len(symbols) == 0 {
		timeout := time.Duration(s.cfg.SymbolsTimeoutMs) * time.Millisecond
		_ = conn.SetReadDeadline(time.Now().Add(timeout))

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("等待订阅消息超时或连接关闭", zap.Error(err))
			s.rejectMissingSymbols(conn)
			return
		}
		symbols = parseSubscribeMessage(raw)
		// 订阅消息到达后解除等待期的读超时；后续客户端消息仅作保活，不限时
		_ = conn.SetReadDeadline(time.Time{})
	}

	if len(symbols) == 0 {
		s.rejectMissingSymbols(conn)
		return
	}

	client := &wsClient{conn: conn, send: make(chan *model.LiquidationEvent, sendBuffer)}
	s.broker.Subscribe(client, symbols)
	s.logger.Info("WS 客户端已订阅", zap.Strings("symbols", symbols))

	go s.writePump(client)
	s.readPump(client)
}

// rejectMissingSymbols 按约定发送 {"error":"symbols required"} 后关闭连接
func (s *wsServer) rejectMissingSymbols(conn *websocket.Conn) {
	_ = conn.WriteJSON(errSymbolsRequired{Error: "symbols required"})
	_ = conn.Close()
}

// parseSubscribeMessage 依次尝试 JSON 数组、JSON 对象（字符串值）、纯逗号分隔字符串
func parseSubscribeMessage(raw []byte) []string {
	var arrayForm subscribeRequest
	if err := json.Unmarshal(raw, &arrayForm); err == nil && len(arrayForm.Symbols) > 0 {
		return normalizeSubscribeSymbols(arrayForm.Symbols)
	}

	var stringForm subscribeRequestString
	if err := json.Unmarshal(raw, &stringForm); err == nil && stringForm.Symbols != "" {
		return parseCSVUpper(stringForm.Symbols)
	}

	return parseCSVUpper(string(raw))
}

// readPump 仅用于检测客户端断开；订阅后不再期望收到业务消息
func (s *wsServer) readPump(c *wsClient) {
	defer func() {
		s.broker.Unsubscribe(c)
		c.close()
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsServer) writePump(c *wsClient) {
	pingInterval := time.Duration(s.cfg.PingIntervalMs) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(toPublicEvent(event)); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func normalizeSubscribeSymbols(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
