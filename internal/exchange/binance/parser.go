// Package binance 实现 Binance 强平订单消息解析。
// 字段映射: o.s -> Symbol, o.S -> Direction, o.ap -> Price, o.q(或o.l) -> 数量
// 推送消息既可能是单个事件对象，也可能是事件数组，两种形态都经由同一条
// 归一化流水线处理。
package binance

import (
	"bytes"
	"encoding/json"
	"fmt"

	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/util/fastparse"
)

// Parser Binance 强平消息解析器
type Parser struct{}

// NewParser 创建 Binance 强平消息解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析 Binance WebSocket 消息为统一爆仓事件列表
// data 既可以是单个 JSON 对象，也可以是 JSON 数组；非 forceOrder 的条目
// （如订阅确认）被忽略，不计入返回值。
func (p *Parser) Parse(data []byte) ([]*model.LiquidationEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var msgs []ForceOrderEvent
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("解析 Binance 消息数组失败: %w", err)
		}
		events := make([]*model.LiquidationEvent, 0, len(msgs))
		for _, msg := range msgs {
			event, err := toEvent(&msg)
			if err != nil {
				return nil, err
			}
			if event != nil {
				events = append(events, event)
			}
		}
		return events, nil
	}

	var msg ForceOrderEvent
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("解析 Binance 消息失败: %w", err)
	}
	event, err := toEvent(&msg)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, nil
	}
	return []*model.LiquidationEvent{event}, nil
}

// toEvent 将单个 forceOrder 消息归一化为统一爆仓事件
// 非 forceOrder 消息（如订阅确认）返回 nil, nil，交由调用方忽略。
func toEvent(msg *ForceOrderEvent) (*model.LiquidationEvent, error) {
	if msg.EventType != "forceOrder" {
		return nil, nil
	}

	direction, err := sideToDirection(msg.Order.Side)
	if err != nil {
		return nil, fmt.Errorf("解析 Binance 强平方向失败: %w", err)
	}

	price, err := fastparse.ParseFloat(msg.Order.AvgPrice)
	if err != nil {
		return nil, fmt.Errorf("解析 Binance 成交价失败: %w", err)
	}

	qty := fastparse.MustParseFloat(msg.Order.OrigQty)
	if qty == 0 {
		qty = fastparse.MustParseFloat(msg.Order.LastFilledQty)
	}

	return &model.LiquidationEvent{
		Timestamp: model.NormalizeTimestamp(msg.EventTimeMs),
		Symbol:    model.StripQuoteSuffix(msg.Order.Symbol),
		Exchange:  model.ExchangeBinance,
		Price:     price,
		Direction: direction,
		Amount:    price * qty,
	}, nil
}

// sideToDirection 将 Binance 订单方向映射为爆仓方向
// SELL: 强平单方向为卖出，说明原仓位是多头被强平
// BUY: 强平单方向为买入，说明原仓位是空头被强平
func sideToDirection(side string) (model.Direction, error) {
	switch side {
	case "SELL":
		return model.DirectionLongLiquidated, nil
	case "BUY":
		return model.DirectionShortLiquidated, nil
	default:
		return "", fmt.Errorf("未知的 Binance 订单方向: %s", side)
	}
}
