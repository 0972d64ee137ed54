// Package okx 实现 OKX 交易所的 WebSocket 客户端。
// 连接地址: wss://ws.okx.com:8443/ws/v5/public
// 订阅频道: liquidation-orders (instType=SWAP)
// 心跳机制: 文本 ping/pong，25秒间隔，10秒超时
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/conversion"
	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/util/backoff"
	"liquidation-feed-hub/internal/util/timeutil"
)

// Client OKX WebSocket 客户端
type Client struct {
	cfg             *config.ExchangeWSConfig
	minNotionalUSDT float64
	logger          *zap.Logger
	parser          *Parser
	converter       *conversion.Converter

	conn   *websocket.Conn
	connMu sync.Mutex

	eventCh chan *model.LiquidationEvent
	errCh   chan error

	metrics   ConnectionMetrics
	metricsMu sync.RWMutex

	lastMsgTime    int64
	lastPingSentNs int64
	lastPongRecvNs int64
	updateCount    int64
	backoff        *backoff.Backoff
	closed         int32

	parseErrSampleCount uint64
	lastParseErrLogNs   int64
}

// NewClient 创建 OKX WebSocket 客户端
func NewClient(cfg *config.ExchangeWSConfig, minNotionalUSDT float64, converter *conversion.Converter, logger *zap.Logger) *Client {
	return &Client{
		cfg:             cfg,
		minNotionalUSDT: minNotionalUSDT,
		logger:          logger.Named("okx"),
		parser:          NewParser(converter),
		converter:       converter,
		eventCh:         make(chan *model.LiquidationEvent, 1000),
		errCh:           make(chan error, 10),
		backoff: backoff.New(
			time.Duration(cfg.BackoffBaseMs)*time.Millisecond,
			time.Duration(cfg.BackoffMaxMs)*time.Millisecond,
			cfg.BackoffJitter,
		),
	}
}

// Connect 建立 WebSocket 连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("Origin", "https://www.okx.com")
	header.Set("User-Agent", "liquidation-feed-hub/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("连接 OKX WebSocket 失败: %w", err)
	}

	readTimeout := time.Duration(c.readTimeoutMs()) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}

	c.conn = conn
	c.backoff.Reset()
	c.logger.Info("OKX WebSocket 连接成功", zap.String("url", c.cfg.URL))

	return nil
}

// Subscribe 订阅 liquidation-orders 频道（SWAP 全市场）
func (c *Client) Subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}

	req := SubscribeRequest{
		Op: "subscribe",
		Args: []SubscribeArg{
			{Channel: "liquidation-orders", InstType: "SWAP"},
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化订阅请求失败: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送订阅请求失败: %w", err)
	}

	c.logger.Info("OKX 订阅请求已发送", zap.String("channel", "liquidation-orders"))
	return nil
}

// Run 启动客户端主循环
func (c *Client) Run(ctx context.Context) {
	go c.heartbeatLoop(ctx)
	go c.metricsLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	readTimeout := time.Duration(c.readTimeoutMs()) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("读取 OKX 消息失败", zap.Error(err))
			c.incrementReconnectCount()
			c.reconnect(ctx)
			continue
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		nowNs := timeutil.NowNano()
		atomic.StoreInt64(&c.lastMsgTime, nowNs)

		if IsPong(data) {
			atomic.StoreInt64(&c.lastPongRecvNs, nowNs)
			lastPing := atomic.LoadInt64(&c.lastPingSentNs)
			if lastPing > 0 {
				rttMs := (nowNs - lastPing) / 1_000_000
				c.metricsMu.Lock()
				c.metrics.WsRttMs = rttMs
				c.metricsMu.Unlock()
			}
			continue
		}

		if IsSubscribeResponse(data) {
			c.logger.Debug("收到订阅响应", zap.ByteString("data", data))
			continue
		}

		events, err := c.parser.Parse(ctx, data)
		if err != nil {
			c.incrementParseErrorCount()
			c.maybeLogParseError(err, data)
			continue
		}

		for _, event := range events {
			if !event.IsValid() || event.Amount < c.minNotionalUSDT {
				continue
			}
			atomic.AddInt64(&c.updateCount, 1)
			select {
			case c.eventCh <- event:
			default:
				c.logger.Warn("OKX eventCh 已满，丢弃事件")
			}
		}
	}
}

// heartbeatLoop 每 25 秒发送 ping；若该连接在 10 秒（PongTimeout）内未收到 pong，则断开并触发重连
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			pingTime := timeutil.NowNano()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.connMu.Unlock()
				c.logger.Warn("发送 OKX ping 失败", zap.Error(err))
				continue
			}
			atomic.StoreInt64(&c.lastPingSentNs, pingTime)
			c.connMu.Unlock()

			time.AfterFunc(time.Duration(c.cfg.PongTimeoutMs)*time.Millisecond, func() {
				c.connMu.Lock()
				timedOut := c.conn == conn && atomic.LoadInt64(&c.lastPongRecvNs) < pingTime
				if timedOut {
					_ = conn.Close()
					c.conn = nil
				}
				c.connMu.Unlock()
				if timedOut {
					c.logger.Warn("OKX 心跳超时，触发重连")
					c.incrementReconnectCount()
				}
			})
		}
	}
}

func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			count := atomic.LoadInt64(&c.updateCount)
			qps := float64(count - lastCount)
			lastCount = count

			lastMsg := atomic.LoadInt64(&c.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = (timeutil.NowNano() - lastMsg) / 1_000_000
			}

			c.metricsMu.Lock()
			c.metrics.UpdatesPerSec = qps
			c.metrics.LastMessageAgeMs = ageMs
			if c.converter != nil {
				c.metrics.ConversionFailures = c.converter.Failures()
			}
			c.metricsMu.Unlock()
		}
	}
}

func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()

	delay := c.backoff.Next()
	c.logger.Info("OKX 准备重连", zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("OKX 重连失败", zap.Error(err))
		return
	}

	if err := c.Subscribe(); err != nil {
		c.logger.Error("OKX 重新订阅失败", zap.Error(err))
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	close(c.eventCh)
	close(c.errCh)
	c.logger.Info("OKX 客户端已关闭")
	return nil
}

// EventCh 获取爆仓事件输出通道
func (c *Client) EventCh() <-chan *model.LiquidationEvent {
	return c.eventCh
}

// ErrCh 获取错误通道
func (c *Client) ErrCh() <-chan error {
	return c.errCh
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) readTimeoutMs() int {
	if c.cfg.ReadTimeoutMs > 0 {
		return c.cfg.ReadTimeoutMs
	}
	return 60000
}

func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&c.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 OKX 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
