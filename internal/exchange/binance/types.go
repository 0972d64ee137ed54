// Package binance 定义 Binance 强平订单消息类型。
package binance

// SubscribeRequest Binance WebSocket 订阅请求
// 订阅 !forceOrder@arr 全市场强平订单流。
type SubscribeRequest struct {
	// Method 订阅方法: SUBSCRIBE
	Method string `json:"method"`
	// Params 订阅参数列表
	Params []string `json:"params"`
	// ID 请求 ID
	ID int64 `json:"id"`
}

// SubscribeResponse Binance WebSocket 订阅响应
// 通常形如 {"result":null,"id":1}。
type SubscribeResponse struct {
	// Result 结果（成功为 null）
	Result any `json:"result"`
	// ID 请求 ID
	ID int64 `json:"id"`
}

// ForceOrderEvent Binance 强平订单推送（forceOrder）
// 字段映射：
// - e: 事件类型（forceOrder）
// - E: 事件时间（毫秒） -> LiquidationEvent.Timestamp
// - o: 强平订单详情
type ForceOrderEvent struct {
	// EventType 事件类型: forceOrder
	EventType string `json:"e"`
	// EventTimeMs 事件时间（毫秒）
	EventTimeMs int64 `json:"E"`
	// Order 强平订单详情
	Order ForceOrder `json:"o"`
}

// ForceOrder 强平订单详情
// 字段映射：
// - s: Symbol（如 BTCUSDT）
// - S: 订单方向 SELL/BUY；SELL 表示多头爆仓被市价卖出平仓，BUY 表示空头爆仓被买入平仓
// - ap: 平均成交价
// - q: 订单原始数量（币本位），数量的首选字段
// - l: 最新成交数量（币本位），q 缺失时的兜底字段
type ForceOrder struct {
	// Symbol 交易对（大写）
	Symbol string `json:"s"`
	// Side 订单方向: SELL, BUY
	Side string `json:"S"`
	// AvgPrice 平均成交价（字符串）
	AvgPrice string `json:"ap"`
	// OrigQty 订单原始数量（字符串，币本位）
	OrigQty string `json:"q"`
	// LastFilledQty 最新成交数量（字符串，币本位），q 缺失时的兜底字段
	LastFilledQty string `json:"l"`
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64
	// UpdatesPerSec 每秒更新次数
	UpdatesPerSec float64
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64
	// ConversionFailures 本适配器相关的换算失败次数（Binance 恒为 0，保留字段以与 OKX 对齐）
	ConversionFailures int64
}
