package store

import (
	"sort"
	"time"

	"liquidation-feed-hub/internal/model"
)

// WindowAggregate 单个时间窗口内的聚合结果
type WindowAggregate struct {
	// TopLong 按 LONG_LIQUIDATED 累计金额排序的前 N 个交易对
	TopLong map[string]float64
	// TopShort 按 SHORT_LIQUIDATED 累计金额排序的前 N 个交易对
	TopShort map[string]float64
	// BinanceLong Binance 链路 LONG_LIQUIDATED 累计金额
	BinanceLong float64
	// BinanceShort Binance 链路 SHORT_LIQUIDATED 累计金额
	BinanceShort float64
	// OkxLong OKX 链路 LONG_LIQUIDATED 累计金额
	OkxLong float64
	// OkxShort OKX 链路 SHORT_LIQUIDATED 累计金额
	OkxShort float64
}

// Aggregates 按窗口长度（分钟）索引的聚合结果
type Aggregates map[int]WindowAggregate

// SymbolWindowStat 单个交易对在单个窗口内的统计
type SymbolWindowStat struct {
	// LongTotal LONG_LIQUIDATED 累计金额
	LongTotal float64
	// ShortTotal SHORT_LIQUIDATED 累计金额
	ShortTotal float64
	// LongVWAP 成交量加权平均价；LongTotal 为 0 时为 nil
	LongVWAP *float64
	// ShortVWAP 成交量加权平均价；ShortTotal 为 0 时为 nil
	ShortVWAP *float64
}

// SymbolStats 按交易对、再按窗口长度（分钟）索引的统计结果
type SymbolStats map[string]map[int]SymbolWindowStat

type symbolAmount struct {
	amount    float64
	priceNotl float64 // Σ(price * amount)，用于 VWAP
}

// Aggregates 计算每个窗口内各交易对、各交易所+方向的累计金额
// 所有窗口共享同一次锁下的快照，保证跨窗口一致性。
func (s *Store) Aggregates(now time.Time, windowsMinutes []int, topN int) Aggregates {
	s.mu.RLock()
	snapshot := cloneSlice(s.events)
	s.mu.RUnlock()

	result := make(Aggregates, len(windowsMinutes))
	for _, w := range windowsMinutes {
		cutoff := now.Add(-time.Duration(w) * time.Minute)

		longBySymbol := make(map[string]float64)
		shortBySymbol := make(map[string]float64)
		var binanceLong, binanceShort, okxLong, okxShort float64

		for _, e := range snapshot {
			if e.Timestamp.Before(cutoff) {
				continue
			}
			switch e.Direction {
			case model.DirectionLongLiquidated:
				longBySymbol[e.Symbol] += e.Amount
				if e.Exchange == model.ExchangeBinance {
					binanceLong += e.Amount
				} else if e.Exchange == model.ExchangeOKX {
					okxLong += e.Amount
				}
			case model.DirectionShortLiquidated:
				shortBySymbol[e.Symbol] += e.Amount
				if e.Exchange == model.ExchangeBinance {
					binanceShort += e.Amount
				} else if e.Exchange == model.ExchangeOKX {
					okxShort += e.Amount
				}
			}
		}

		result[w] = WindowAggregate{
			TopLong:      topNSymbols(longBySymbol, topN),
			TopShort:     topNSymbols(shortBySymbol, topN),
			BinanceLong:  binanceLong,
			BinanceShort: binanceShort,
			OkxLong:      okxLong,
			OkxShort:     okxShort,
		}
	}

	return result
}

// topNSymbols 返回按金额降序、并列时按交易对字典序升序排列的前 n 个交易对
func topNSymbols(bySymbol map[string]float64, n int) map[string]float64 {
	type pair struct {
		symbol string
		amount float64
	}
	pairs := make([]pair, 0, len(bySymbol))
	for sym, amt := range bySymbol {
		pairs = append(pairs, pair{sym, amt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].amount != pairs[j].amount {
			return pairs[i].amount > pairs[j].amount
		}
		return pairs[i].symbol < pairs[j].symbol
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		out[p.symbol] = p.amount
	}
	return out
}

// SymbolStats 计算给定交易对集合（为空则全部）在各窗口内的统计
// long_vwap/short_vwap 在累计金额为 0 时表示为 nil。
func (s *Store) SymbolStats(now time.Time, windowsMinutes []int, symbols map[string]struct{}) SymbolStats {
	s.mu.RLock()
	snapshot := cloneSlice(s.events)
	s.mu.RUnlock()

	result := make(SymbolStats)
	for _, w := range windowsMinutes {
		cutoff := now.Add(-time.Duration(w) * time.Minute)

		longAgg := make(map[string]*symbolAmount)
		shortAgg := make(map[string]*symbolAmount)

		for _, e := range snapshot {
			if e.Timestamp.Before(cutoff) {
				continue
			}
			if len(symbols) > 0 {
				if _, ok := symbols[e.Symbol]; !ok {
					continue
				}
			}

			var agg map[string]*symbolAmount
			switch e.Direction {
			case model.DirectionLongLiquidated:
				agg = longAgg
			case model.DirectionShortLiquidated:
				agg = shortAgg
			default:
				continue
			}

			entry, ok := agg[e.Symbol]
			if !ok {
				entry = &symbolAmount{}
				agg[e.Symbol] = entry
			}
			entry.amount += e.Amount
			entry.priceNotl += e.Price * e.Amount
		}

		symbolSet := make(map[string]struct{})
		for sym := range longAgg {
			symbolSet[sym] = struct{}{}
		}
		for sym := range shortAgg {
			symbolSet[sym] = struct{}{}
		}

		for sym := range symbolSet {
			stat := SymbolWindowStat{}
			if l, ok := longAgg[sym]; ok {
				stat.LongTotal = l.amount
				if l.amount > 0 {
					vwap := l.priceNotl / l.amount
					stat.LongVWAP = &vwap
				}
			}
			if sh, ok := shortAgg[sym]; ok {
				stat.ShortTotal = sh.amount
				if sh.amount > 0 {
					vwap := sh.priceNotl / sh.amount
					stat.ShortVWAP = &vwap
				}
			}

			if _, ok := result[sym]; !ok {
				result[sym] = make(map[int]SymbolWindowStat)
			}
			result[sym][w] = stat
		}
	}

	return result
}
