// Package store 维护爆仓事件的内存滚动窗口。
// 与 core/store 的单写者缓存不同，本包支持并发写入与并发读取：
// 一把读写锁保护追加、淘汰与所有读操作的集合遍历，读操作在持锁期间只做快照拷贝。
package store

import (
	"sort"
	"sync"
	"time"

	"liquidation-feed-hub/internal/model"
)

// compactThreshold 已淘汰元素数超过该值时，收缩底层数组以回收内存
const compactThreshold = 4096

// Store 爆仓事件的时间有序滚动窗口
type Store struct {
	mu      sync.RWMutex
	events  []*model.LiquidationEvent
	evicted int
	nextSeq uint64

	retention time.Duration
	lastSeen  map[model.Exchange]time.Time
}

// New 创建一个保留窗口为 retention 的 Store
func New(retention time.Duration) *Store {
	return &Store{
		retention: retention,
		events:    make([]*model.LiquidationEvent, 0, 1024),
		lastSeen:  make(map[model.Exchange]time.Time),
	}
}

// Append 将事件插入尾部，赋予单调递增的 Seq，并淘汰队首中
// 时间戳早于 `e.Timestamp - retention` 的事件。返回赋值后的事件副本。
// 同时在同一把写锁下更新该交易所的最后接收时间，供 /health 使用——
// 这并非独立于回放路径的旁路状态，而是 tailer 回放同一次 Append 调用的副产物。
func (s *Store) Append(e *model.LiquidationEvent) *model.LiquidationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	appended := e.Clone()
	appended.Seq = s.nextSeq
	s.events = append(s.events, appended)

	if prev, ok := s.lastSeen[appended.Exchange]; !ok || appended.Timestamp.After(prev) {
		s.lastSeen[appended.Exchange] = appended.Timestamp
	}

	cutoff := appended.Timestamp.Add(-s.retention)
	s.evictBeforeLocked(cutoff)

	return appended.Clone()
}

// LastSeen 返回给定交易所最近一次被接收的事件时间戳
// 第二个返回值为 false 表示尚未收到过该交易所的事件。
func (s *Store) LastSeen(ex model.Exchange) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.lastSeen[ex]
	return ts, ok
}

// Prune 以当前时间为基准淘汰超出保留窗口的事件
func (s *Store) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictBeforeLocked(now.Add(-s.retention))
}

// evictBeforeLocked 淘汰队首中时间戳早于 cutoff 的事件；调用方必须持有写锁
func (s *Store) evictBeforeLocked(cutoff time.Time) {
	i := 0
	for i < len(s.events) && s.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	s.events = s.events[i:]
	s.evicted += i

	if s.evicted >= compactThreshold {
		compacted := make([]*model.LiquidationEvent, len(s.events))
		copy(compacted, s.events)
		s.events = compacted
		s.evicted = 0
	}
}

// ListLatest 返回插入顺序下最后 n 条事件（最旧的在前），快照拷贝
func (s *Store) ListLatest(n int) []*model.LiquidationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	total := len(s.events)
	start := 0
	if total > n {
		start = total - n
	}
	return cloneSlice(s.events[start:])
}

// IterSince 返回所有 Seq 大于给定游标的事件，插入顺序，快照拷贝
// Seq 为单调递增序号，用于 SSE /stream 与回放游标，避免同秒内事件顺序不确定。
func (s *Store) IterSince(seq uint64) []*model.LiquidationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// events 按 Seq 严格递增排列，可用二分查找第一个 Seq > seq 的下标
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Seq > seq
	})
	return cloneSlice(s.events[idx:])
}

// LatestSeq 返回当前已分配的最大序号（尚无事件时为 0）
func (s *Store) LatestSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

func cloneSlice(src []*model.LiquidationEvent) []*model.LiquidationEvent {
	if len(src) == 0 {
		return nil
	}
	out := make([]*model.LiquidationEvent, len(src))
	for i, e := range src {
		out[i] = e.Clone()
	}
	return out
}
