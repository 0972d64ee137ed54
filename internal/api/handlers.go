package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"liquidation-feed-hub/internal/broker"
	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/exchange/binance"
	"liquidation-feed-hub/internal/exchange/okx"
	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/store"
)

const latestListSize = 50

// Server 承载 /data、/latest_liquidations、/history、/symbol_stats、/health、
// /stream 与 WebSocket 推送端点的依赖项
type Server struct {
	store    *store.Store
	agg      config.AggregationConfig
	logger   *zap.Logger
	binance  *binance.Client
	okx      *okx.Client
	streamer *streamer
	ws       *wsServer
}

// NewServer 创建承载所有对外读取端点的 Server
// b 是 Tailer 回放环节共享的 FanoutBroker：回放循环既把事件追加到 s，也会调用
// b.Notify，WS 推送端点只负责订阅管理与投递，不重复维护事件源。
func NewServer(s *store.Store, b *broker.Broker, agg config.AggregationConfig, binanceClient *binance.Client, okxClient *okx.Client, wsCfg config.WSServerConfig, logger *zap.Logger) *Server {
	srv := &Server{
		store:   s,
		agg:     agg,
		logger:  logger.Named("api"),
		binance: binanceClient,
		okx:     okxClient,
	}
	srv.streamer = newStreamer(s, srv.logger)
	srv.ws = newWSServer(b, wsCfg, srv.logger)
	return srv
}

// handleData 实现 /data：各窗口聚合榜单
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	now := model.Now()
	agg := s.store.Aggregates(now, s.agg.WindowsMinutes, s.agg.TopN)
	writeJSON(s.logger, w, http.StatusOK, toAggregatesJSON(agg))
}

// handleLatestLiquidations 实现 /latest_liquidations：最近 N 条事件
func (s *Server) handleLatestLiquidations(w http.ResponseWriter, r *http.Request) {
	events := s.store.ListLatest(latestListSize)
	writeJSON(s.logger, w, http.StatusOK, toPublicEvents(events))
}

// handleHistory 实现 /history：按时间/交易对/交易所/方向过滤的历史查询
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := parseTimeParam(q.Get("since"))
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	until, err := parseTimeParam(q.Get("until"))
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.QueryFilter{
		Since:      since,
		Until:      until,
		Symbols:    toSymbolSet(parseCSVUpper(q.Get("symbols"))),
		Exchanges:  toExchangeSet(parseCSV(q.Get("exchanges"))),
		Directions: toDirectionSet(parseCSV(q.Get("directions"))),
		Limit:      parseLimit(q.Get("limit")),
	}

	events := s.store.Query(filter)
	writeJSON(s.logger, w, http.StatusOK, toPublicEvents(events))
}

// handleSymbolStats 实现 /symbol_stats：各窗口各交易对的累计金额与 VWAP
func (s *Server) handleSymbolStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbols := toSymbolSet(parseCSVUpper(q.Get("symbols")))

	now := model.Now()
	stats := s.store.SymbolStats(now, s.agg.WindowsMinutes, symbols)
	writeJSON(s.logger, w, http.StatusOK, toSymbolStatsJSON(stats))
}

// exchangeHealth 单个交易所链路的健康状态
type exchangeHealth struct {
	Connected          bool     `json:"connected"`
	LastSeen           *string  `json:"last_seen"`
	LagSeconds         *float64 `json:"lag_seconds"`
	ReconnectCount     int64    `json:"reconnect_count"`
	ParseErrorCount    int64    `json:"parse_error_count"`
	UpdatesPerSec      float64  `json:"updates_per_sec"`
	ConversionFailures int64    `json:"conversion_failures"`
}

// handleHealth 实现 /health：两条交易所链路的接入时延与连接质量
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := model.Now()

	health := map[string]exchangeHealth{
		"Binance": s.exchangeHealthFor(model.ExchangeBinance, now, binanceMetricsOf(s.binance)),
		"OKX":     s.exchangeHealthFor(model.ExchangeOKX, now, okxMetricsOf(s.okx)),
	}
	writeJSON(s.logger, w, http.StatusOK, health)
}

// connMetrics 是两个交易所 ConnectionMetrics 结构体的公共投影
type connMetrics struct {
	reconnectCount     int64
	parseErrorCount    int64
	updatesPerSec      float64
	conversionFailures int64
}

func binanceMetricsOf(c *binance.Client) connMetrics {
	if c == nil {
		return connMetrics{}
	}
	m := c.Metrics()
	return connMetrics{
		reconnectCount:     m.ReconnectCount,
		parseErrorCount:    m.ParseErrorCount,
		updatesPerSec:      m.UpdatesPerSec,
		conversionFailures: m.ConversionFailures,
	}
}

func okxMetricsOf(c *okx.Client) connMetrics {
	if c == nil {
		return connMetrics{}
	}
	m := c.Metrics()
	return connMetrics{
		reconnectCount:     m.ReconnectCount,
		parseErrorCount:    m.ParseErrorCount,
		updatesPerSec:      m.UpdatesPerSec,
		conversionFailures: m.ConversionFailures,
	}
}

func (s *Server) exchangeHealthFor(ex model.Exchange, now time.Time, m connMetrics) exchangeHealth {
	health := exchangeHealth{
		ReconnectCount:     m.reconnectCount,
		ParseErrorCount:    m.parseErrorCount,
		UpdatesPerSec:      m.updatesPerSec,
		ConversionFailures: m.conversionFailures,
	}

	lastSeen, ok := s.store.LastSeen(ex)
	if !ok {
		return health
	}
	health.Connected = true
	formatted := lastSeen.Format(responseTimeLayout)
	health.LastSeen = &formatted
	lag := now.Sub(lastSeen).Seconds()
	health.LagSeconds = &lag
	return health
}
