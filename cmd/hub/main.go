// Package main 是爆仓事件中心的入口点。
// 汇聚 Binance 强平订单流与 OKX 强平订单流，落盘为按交易所区分的 CSV 日志，
// 再由 Tailer 回放日志驱动内存滚动窗口与对外 HTTP/SSE/WS 读取接口。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidation-feed-hub/internal/api"
	"liquidation-feed-hub/internal/broker"
	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/conversion"
	"liquidation-feed-hub/internal/exchange/binance"
	"liquidation-feed-hub/internal/exchange/okx"
	"liquidation-feed-hub/internal/journal"
	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	binanceJournal := journal.New(cfg.Journal.Dir, cfg.Journal.BinanceFilename)
	okxJournal := journal.New(cfg.Journal.Dir, cfg.Journal.OkxFilename)

	cache, err := conversion.NewCache(cfg.OkxConversion.CachePath)
	if err != nil {
		logger.Error("加载 OKX 换算缓存失败", zap.Error(err))
		os.Exit(1)
	}
	converter := conversion.NewConverter(cfg.OkxConversion, cache, logger)

	binanceClient := binance.NewClient(&cfg.WS.Binance, cfg.Thresholds.MinNotionalUSDT, logger)
	okxClient := okx.NewClient(&cfg.WS.OKX, cfg.Thresholds.MinNotionalUSDT, converter, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()

	if err := binanceClient.Connect(startCtx); err != nil {
		logger.Error("Binance 连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := binanceClient.Subscribe(); err != nil {
		logger.Error("Binance 订阅失败", zap.Error(err))
		os.Exit(1)
	}

	if err := okxClient.Connect(startCtx); err != nil {
		logger.Error("OKX 连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := okxClient.Subscribe(); err != nil {
		logger.Error("OKX 订阅失败", zap.Error(err))
		os.Exit(1)
	}

	go binanceClient.Run(ctx)
	go okxClient.Run(ctx)

	// 摄取环节只负责落盘；内存窗口/扇出由下方的 Tailer 回放驱动，
	// 保证 Tailer 回放是唯一的权威路径（不维护另一条"最新事件"旁路）。
	go journalIngested(ctx, logger, binanceClient.EventCh(), binanceJournal)
	go journalIngested(ctx, logger, okxClient.EventCh(), okxJournal)

	go logErrors(ctx, logger, "binance", binanceClient.ErrCh())
	go logErrors(ctx, logger, "okx", okxClient.ErrCh())

	eventStore := store.New(time.Duration(cfg.Retention.HorizonMinutes) * time.Minute)
	fanout := broker.New()

	tailPoll := time.Duration(cfg.Journal.TailPollMs) * time.Millisecond
	binanceTailer := journal.NewTailer(binanceJournal.Path(), tailPoll, logger)
	okxTailer := journal.NewTailer(okxJournal.Path(), tailPoll, logger)

	replayCh := make(chan *model.LiquidationEvent, 2000)
	go binanceTailer.Run(ctx, replayCh)
	go okxTailer.Run(ctx, replayCh)

	go runStoreLoop(ctx, eventStore, fanout, replayCh, time.Duration(cfg.Retention.PruneIntervalMs)*time.Millisecond)

	apiServer := api.NewServer(eventStore, fanout, cfg.Aggregation, binanceClient, okxClient, cfg.WSServer, logger)

	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: apiServer.Router()}
	wsMux := http.NewServeMux()
	wsMux.HandleFunc(cfg.WSServer.Path, apiServer.WSHandler())
	if cfg.WSServer.Path != "/" {
		// 兼容直接连根路径的客户端
		wsMux.HandleFunc("/", apiServer.WSHandler())
	}
	wsSrv := &http.Server{Addr: cfg.WSServer.Addr, Handler: wsMux}

	go func() {
		logger.Info("HTTP 查询接口监听中", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务启动失败", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("WebSocket 推送接口监听中", zap.String("addr", cfg.WSServer.Addr), zap.String("path", cfg.WSServer.Path))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("WebSocket 服务启动失败", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = wsSrv.Shutdown(shutdownCtx)
		_ = binanceClient.Close()
		_ = okxClient.Close()
		_ = binanceJournal.Close()
		_ = okxJournal.Close()
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// journalIngested 消费交易所客户端归一化后的事件并追加到对应交易所的日志文件
func journalIngested(ctx context.Context, logger *zap.Logger, ch <-chan *model.LiquidationEvent, j *journal.Journal) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Append(event); err != nil {
				logger.Warn("写入日志失败", zap.String("path", j.Path()), zap.Error(err))
			}
		}
	}
}

func logErrors(ctx context.Context, logger *zap.Logger, name string, ch <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-ch:
			if !ok {
				return
			}
			if err != nil {
				logger.Warn("交易所客户端报告错误", zap.String("exchange", name), zap.Error(err))
			}
		}
	}
}

// runStoreLoop 消费 Tailer 回放出的事件，写入内存滚动窗口并扇出给 WS 订阅者，
// 同时按 pruneInterval 周期性清理超出保留窗口的事件（应对长时间无新事件到达的情况）。
func runStoreLoop(ctx context.Context, s *store.Store, b *broker.Broker, replayCh <-chan *model.LiquidationEvent, pruneInterval time.Duration) {
	if pruneInterval <= 0 {
		pruneInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-replayCh:
			if !ok {
				return
			}
			appended := s.Append(event)
			b.Notify(appended)
		case <-ticker.C:
			s.Prune(model.Now())
		}
	}
}
