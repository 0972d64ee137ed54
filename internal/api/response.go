package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/store"
)

const responseTimeLayout = "2006-01-02 15:04:05"

// publicEvent 是 LiquidationEvent 对外 JSON 表示，字段名与历史查询端点对齐
type publicEvent struct {
	Datetime  string  `json:"datetime"`
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Price     float64 `json:"price"`
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
	Seq       uint64  `json:"seq"`
}

func toPublicEvent(e *model.LiquidationEvent) publicEvent {
	return publicEvent{
		Datetime:  e.Timestamp.Format(responseTimeLayout),
		Symbol:    e.Symbol,
		Exchange:  e.Exchange.String(),
		Price:     e.Price,
		Direction: e.Direction.String(),
		Amount:    e.Amount,
		Seq:       e.Seq,
	}
}

func toPublicEvents(events []*model.LiquidationEvent) []publicEvent {
	out := make([]publicEvent, len(events))
	for i, e := range events {
		out[i] = toPublicEvent(e)
	}
	return out
}

// windowAggregateJSON 是 WindowAggregate 对外 JSON 表示
type windowAggregateJSON struct {
	TopLong      map[string]float64 `json:"top_long"`
	TopShort     map[string]float64 `json:"top_short"`
	BinanceLong  float64            `json:"binance_long"`
	BinanceShort float64            `json:"binance_short"`
	OkxLong      float64            `json:"okx_long"`
	OkxShort     float64            `json:"okx_short"`
}

func toAggregatesJSON(agg store.Aggregates) map[string]windowAggregateJSON {
	out := make(map[string]windowAggregateJSON, len(agg))
	for w, wa := range agg {
		out[strconv.Itoa(w)] = windowAggregateJSON{
			TopLong:      wa.TopLong,
			TopShort:     wa.TopShort,
			BinanceLong:  wa.BinanceLong,
			BinanceShort: wa.BinanceShort,
			OkxLong:      wa.OkxLong,
			OkxShort:     wa.OkxShort,
		}
	}
	return out
}

// symbolWindowStatJSON 是 SymbolWindowStat 对外 JSON 表示
type symbolWindowStatJSON struct {
	LongTotal  float64  `json:"long_total"`
	ShortTotal float64  `json:"short_total"`
	LongVWAP   *float64 `json:"long_vwap"`
	ShortVWAP  *float64 `json:"short_vwap"`
}

func toSymbolStatsJSON(stats store.SymbolStats) map[string]map[string]symbolWindowStatJSON {
	out := make(map[string]map[string]symbolWindowStatJSON, len(stats))
	for sym, byWindow := range stats {
		inner := make(map[string]symbolWindowStatJSON, len(byWindow))
		for w, stat := range byWindow {
			inner[strconv.Itoa(w)] = symbolWindowStatJSON{
				LongTotal:  stat.LongTotal,
				ShortTotal: stat.ShortTotal,
				LongVWAP:   stat.LongVWAP,
				ShortVWAP:  stat.ShortVWAP,
			}
		}
		out[sym] = inner
	}
	return out
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入 JSON 响应失败", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, map[string]string{"error": message})
}
