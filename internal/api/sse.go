package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/store"
)

// streamPollInterval 是 /stream 每次重新检查 Store 的节拍
// 对应原始实现中 _event_stream() 每秒 time.sleep(1) 的轮询节奏，这里改为以
// Store.Seq 为游标（而非时间戳）以避免同秒内多条事件的顺序歧义。
const streamPollInterval = time.Second

// streamer 实现 /stream：按 Seq 游标轮询 Store，过滤后以 SSE 帧推送给客户端
type streamer struct {
	store  *store.Store
	logger *zap.Logger
}

func newStreamer(s *store.Store, logger *zap.Logger) *streamer {
	return &streamer{store: s, logger: logger.Named("sse")}
}

// ServeHTTP 处理 /stream 连接
func (s *streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	symbols := toSymbolSet(parseCSVUpper(q.Get("symbols")))
	exchanges := toExchangeSet(parseCSV(q.Get("exchanges")))
	directions := toDirectionSet(parseCSV(q.Get("directions")))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher.Flush()

	cursor := s.store.LatestSeq()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			events := s.store.IterSince(cursor)
			if len(events) == 0 {
				_, err := fmt.Fprint(w, ": keep-alive\n\n")
				if err != nil {
					return
				}
				flusher.Flush()
				continue
			}

			matched := make([]*model.LiquidationEvent, 0, len(events))
			for _, e := range events {
				cursor = e.Seq
				if matchesStreamFilter(e, symbols, exchanges, directions) {
					matched = append(matched, e)
				}
			}

			if len(matched) > 0 {
				if err := s.writeEvents(w, matched); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

// writeEvents 将一次轮询周期内匹配的事件序列化为单个 JSON 数组，写成一个 SSE 帧
func (s *streamer) writeEvents(w http.ResponseWriter, events []*model.LiquidationEvent) error {
	payload, err := json.Marshal(toPublicEvents(events))
	if err != nil {
		s.logger.Warn("序列化 SSE 事件失败", zap.Error(err))
		return nil
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func matchesStreamFilter(e *model.LiquidationEvent, symbols map[string]struct{}, exchanges map[model.Exchange]struct{}, directions map[model.Direction]struct{}) bool {
	if len(symbols) > 0 {
		if _, ok := symbols[e.Symbol]; !ok {
			return false
		}
	}
	if len(exchanges) > 0 {
		if _, ok := exchanges[e.Exchange]; !ok {
			return false
		}
	}
	if len(directions) > 0 {
		if _, ok := directions[e.Direction]; !ok {
			return false
		}
	}
	return true
}
