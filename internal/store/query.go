package store

import (
	"time"

	"liquidation-feed-hub/internal/model"
)

// QueryFilter 描述 /history 端点的过滤条件
// 零值字段（nil/空集合）表示不过滤该维度。
type QueryFilter struct {
	// Since 起始时间（含），nil 表示不限
	Since *time.Time
	// Until 结束时间（含），nil 表示不限
	Until *time.Time
	// Symbols 交易对白名单，nil/空表示不限
	Symbols map[string]struct{}
	// Exchanges 交易所白名单，nil/空表示不限
	Exchanges map[model.Exchange]struct{}
	// Directions 方向白名单，nil/空表示不限
	Directions map[model.Direction]struct{}
	// Limit 最多返回条数（0 表示不限），超出时保留最新的 Limit 条
	Limit int
}

// Query 返回匹配过滤条件的事件，按插入顺序（最旧的在前），快照拷贝
// 当匹配结果超过 Limit 时，保留末尾（最新）的 Limit 条，仍按时间升序排列。
func (s *Store) Query(f QueryFilter) []*model.LiquidationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*model.LiquidationEvent, 0, len(s.events))
	for _, e := range s.events {
		if !matchesFilter(e, f) {
			continue
		}
		matched = append(matched, e)
	}

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}

	return cloneSlice(matched)
}

func matchesFilter(e *model.LiquidationEvent, f QueryFilter) bool {
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if len(f.Symbols) > 0 {
		if _, ok := f.Symbols[e.Symbol]; !ok {
			return false
		}
	}
	if len(f.Exchanges) > 0 {
		if _, ok := f.Exchanges[e.Exchange]; !ok {
			return false
		}
	}
	if len(f.Directions) > 0 {
		if _, ok := f.Directions[e.Direction]; !ok {
			return false
		}
	}
	return true
}
