// Package broker 实现爆仓事件的按交易对订阅与扇出分发。
// 结构上对应 yoghaf-market-indikator 的 broadcast.Hub，但将单一全局 hub
// 泛化为按交易对分组的订阅表，并把注册/注销从 channel 驱动改为互斥锁保护的
// map 操作——结构变更仅涉及订阅集合本身；投递逻辑（best-effort、非阻塞、
// 锁外分发）与 Hub.run 的广播分支保持一致。
package broker

import (
	"sync"

	"liquidation-feed-hub/internal/model"
)

// Subscriber 订阅者句柄：Send 在不可投递时不得阻塞调用方（由实现保证非阻塞语义）
type Subscriber interface {
	// Send 尝试投递一个事件；返回 false 表示投递失败（发送缓冲已满或
	// 底层连接已关闭），调用方应将该订阅者从所有交易对中移除。
	Send(event *model.LiquidationEvent) bool
}

// Broker 按交易对维护订阅者集合，并将新事件扇出给匹配的订阅者
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[Subscriber]struct{}
}

// New 创建一个空的 Broker
func New() *Broker {
	return &Broker{
		subs: make(map[string]map[Subscriber]struct{}),
	}
}

// Subscribe 将 sub 加入 symbols 对应的订阅集合
// symbols 应已规范化为大写基础资产符号。
func (b *Broker) Subscribe(sub Subscriber, symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sym := range symbols {
		set, ok := b.subs[sym]
		if !ok {
			set = make(map[Subscriber]struct{})
			b.subs[sym] = set
		}
		set[sub] = struct{}{}
	}
}

// Unsubscribe 将 sub 从所有交易对的订阅集合中移除
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(sub)
}

// unsubscribeLocked 是 Unsubscribe 的无锁版本；调用方必须持有 mu
func (b *Broker) unsubscribeLocked(sub Subscriber) {
	for sym, set := range b.subs {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sym)
			}
		}
	}
}

// Notify 将 event 投递给其交易对的所有订阅者
// 订阅者集合在持锁期间快照拷贝，投递发生在锁外；投递失败的订阅者被静默移除。
func (b *Broker) Notify(event *model.LiquidationEvent) {
	b.mu.Lock()
	set, ok := b.subs[event.Symbol]
	if !ok || len(set) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make([]Subscriber, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	var dead []Subscriber
	for _, sub := range snapshot {
		if !sub.Send(event) {
			dead = append(dead, sub)
		}
	}

	if len(dead) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range dead {
		b.unsubscribeLocked(sub)
	}
}

// SubscriberCount 返回给定交易对当前的订阅者数量，用于诊断/测试
func (b *Broker) SubscriberCount(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[symbol])
}
