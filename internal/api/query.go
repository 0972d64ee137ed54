// Package api 实现爆仓事件中心的 HTTP/SSE/WebSocket 对外读取接口。
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"liquidation-feed-hub/internal/model"
)

const queryTimeLayout = "2006-01-02 15:04:05"

// parseTimeParam 解析 since/until 查询参数
// 支持 "YYYY-MM-DD HH:MM:SS"（+8 时区朴素时间，与存储时间戳同一约定）或
// epoch 秒/毫秒（自动判定：数值 > 10^12 视为毫秒；epoch 是绝对时刻，
// 需经同一 +8h 偏移换算后才能与存储时间戳比较）。
// 空字符串返回 nil（不设边界）；非空但无法解析返回错误，由调用方回 400。
func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if isAllDigits(raw) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("无法解析时间参数 %q: %w", raw, err)
		}
		if v <= 1_000_000_000_000 {
			v *= 1000
		}
		t := model.NormalizeTimestamp(v)
		return &t, nil
	}

	t, err := time.Parse(queryTimeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("无法解析时间参数 %q: %w", raw, err)
	}
	return &t, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseCSVUpper 按逗号拆分并去除空白、转为大写；空字符串返回 nil
func parseCSVUpper(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseCSV 按逗号拆分并去除空白；空字符串返回 nil
func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func toExchangeSet(raw []string) map[model.Exchange]struct{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[model.Exchange]struct{}, len(raw))
	for _, s := range raw {
		out[normalizeExchange(s)] = struct{}{}
	}
	return out
}

// normalizeExchange 接受 "Binance"/"binance"/"BA"/"OKX" 等历史惯用写法
func normalizeExchange(raw string) model.Exchange {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "binance", "ba", "币安":
		return model.ExchangeBinance
	case "okx":
		return model.ExchangeOKX
	default:
		return model.Exchange(strings.ToLower(raw))
	}
}

func toDirectionSet(raw []string) map[model.Direction]struct{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[model.Direction]struct{}, len(raw))
	for _, s := range raw {
		out[normalizeDirection(s)] = struct{}{}
	}
	return out
}

// normalizeDirection 接受英文常量或原始中文标记两种写法
func normalizeDirection(raw string) model.Direction {
	switch strings.TrimSpace(raw) {
	case "多头爆仓", "LONG_LIQUIDATED":
		return model.DirectionLongLiquidated
	case "空头爆仓", "SHORT_LIQUIDATED":
		return model.DirectionShortLiquidated
	default:
		return model.Direction(raw)
	}
}

func toSymbolSet(raw []string) map[string]struct{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		out[s] = struct{}{}
	}
	return out
}
