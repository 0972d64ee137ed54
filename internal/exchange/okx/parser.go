// Package okx 实现 OKX 交易所强平消息解析。
// 字段映射: instId -> Symbol(剥离后缀), details[].posSide -> Direction,
// details[].bkPx -> Price, details[].sz(经张数换算) -> Amount
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"liquidation-feed-hub/internal/conversion"
	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/util/fastparse"
)

// Parser OKX 强平消息解析器
type Parser struct {
	// converter 合约张数到币本位数量的换算器
	converter *conversion.Converter
}

// NewParser 创建 OKX 强平消息解析器
func NewParser(converter *conversion.Converter) *Parser {
	return &Parser{converter: converter}
}

// Parse 解析 OKX liquidation-orders 消息为统一爆仓事件列表
// 一条消息可能携带多个合约、每个合约又可能包含多条强平明细。
func (p *Parser) Parse(ctx context.Context, data []byte) ([]*model.LiquidationEvent, error) {
	var msg LiquidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析 OKX 消息失败: %w", err)
	}

	if msg.Arg.Channel != "liquidation-orders" || len(msg.Data) == 0 {
		return nil, nil
	}

	events := make([]*model.LiquidationEvent, 0, len(msg.Data))
	for _, d := range msg.Data {
		// 同一批次内的明细按顺序处理，避免同一合约的缓存写入与落盘在自身内部产生竞争
		for _, detail := range d.Details {
			event, ok, err := p.parseDetail(ctx, d.InstID, &detail)
			if err != nil {
				// 单条明细解析失败（含换算失败）不影响同一批次中的其他明细
				continue
			}
			if ok {
				events = append(events, event)
			}
		}
	}

	return events, nil
}

func (p *Parser) parseDetail(ctx context.Context, instID string, detail *LiquidationDetail) (*model.LiquidationEvent, bool, error) {
	direction, ok := sidesToDirection(detail.Side, detail.PosSide)
	if !ok {
		return nil, false, nil // 未知/不符合策略的方向组合，按策略丢弃该条明细
	}

	price, err := fastparse.ParseFloat(detail.BkPx)
	if err != nil {
		return nil, false, fmt.Errorf("解析破产价格失败: %w", err)
	}

	contracts, err := fastparse.ParseFloat(detail.Sz)
	if err != nil {
		return nil, false, fmt.Errorf("解析强平张数失败: %w", err)
	}

	coinAmount, err := p.converter.CoinAmount(ctx, instID, contracts, price)
	if err != nil {
		return nil, false, err
	}

	tsMs := fastparse.MustParseInt(detail.Ts)

	event := &model.LiquidationEvent{
		Timestamp: model.NormalizeTimestamp(tsMs),
		Symbol:    canonSymbol(instID),
		Exchange:  model.ExchangeOKX,
		Price:     price,
		Direction: direction,
		Amount:    price * coinAmount,
	}
	return event, true, nil
}

// sidesToDirection 严格按 (side, posSide) 组合映射爆仓方向
// side=sell & posSide=long  -> LONG_LIQUIDATED（平多）
// side=buy  & posSide=short -> SHORT_LIQUIDATED（平空）
// 其余组合一律丢弃，不做猜测或回退。
func sidesToDirection(side, posSide string) (model.Direction, bool) {
	switch {
	case side == "sell" && posSide == "long":
		return model.DirectionLongLiquidated, true
	case side == "buy" && posSide == "short":
		return model.DirectionShortLiquidated, true
	default:
		return "", false
	}
}

// canonSymbol 将 OKX 合约 ID 转换为统一的基础资产符号
// 例如 BTC-USDT-SWAP -> BTC, ETH-USDC-SWAP -> ETH
func canonSymbol(instID string) string {
	s := strings.TrimSuffix(instID, "-SWAP")
	s = strings.ReplaceAll(s, "-", "")
	return model.StripQuoteSuffix(s)
}

// IsSubscribeResponse 判断是否为订阅响应
func IsSubscribeResponse(data []byte) bool {
	var resp SubscribeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false
	}
	return resp.Event == "subscribe" || resp.Event == "error"
}

// IsPong 判断是否为 pong 响应
func IsPong(data []byte) bool {
	return string(data) == "pong"
}
