// Package config 负责加载和验证 YAML 配置文件。
// 提供进程所需的所有配置项，包括交易所连接、阈值、留存窗口与对外接口设置。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Thresholds 事件过滤阈值
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	// Retention 留存窗口配置
	Retention RetentionConfig `yaml:"retention"`
	// WS 交易所 WebSocket 连接配置
	WS WSConfig `yaml:"ws"`
	// OkxConversion OKX 合约换算配置
	OkxConversion OkxConversionConfig `yaml:"okx_conversion"`
	// Journal 落盘日志配置
	Journal JournalConfig `yaml:"journal"`
	// HTTP HTTP/SSE 接口配置
	HTTP HTTPConfig `yaml:"http"`
	// WSServer 对外 WebSocket 推送配置
	WSServer WSServerConfig `yaml:"ws_server"`
	// Aggregation 聚合窗口配置
	Aggregation AggregationConfig `yaml:"aggregation"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// ThresholdsConfig 事件过滤阈值配置
type ThresholdsConfig struct {
	// MinNotionalUSDT 最小名义金额（USDT），低于此值的事件被丢弃
	MinNotionalUSDT float64 `yaml:"min_notional_usdt"`
}

// RetentionConfig 留存窗口配置
type RetentionConfig struct {
	// HorizonMinutes 留存时长（分钟），超出此窗口的事件被清理
	HorizonMinutes int `yaml:"horizon_minutes"`
	// PruneIntervalMs 清理循环间隔（毫秒）
	PruneIntervalMs int `yaml:"prune_interval_ms"`
}

// WSConfig 各交易所 WebSocket 连接配置
type WSConfig struct {
	// Binance Binance WebSocket 配置
	Binance ExchangeWSConfig `yaml:"binance"`
	// OKX OKX WebSocket 配置
	OKX ExchangeWSConfig `yaml:"okx"`
}

// ExchangeWSConfig 单个交易所的 WebSocket 配置
type ExchangeWSConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs 心跳响应超时（毫秒）
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// BackoffBaseMs 重连退避基础间隔（毫秒）
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	// BackoffMaxMs 重连退避最大间隔（毫秒）
	BackoffMaxMs int `yaml:"backoff_max_ms"`
	// BackoffJitter 重连退避抖动比例（0-1）
	BackoffJitter float64 `yaml:"backoff_jitter"`
}

// OkxConversionConfig OKX 合约张数换算配置
type OkxConversionConfig struct {
	// RestBaseURL OKX REST API 基础地址
	RestBaseURL string `yaml:"rest_base_url"`
	// CachePath 换算比例持久化文件路径
	CachePath string `yaml:"cache_path"`
	// MaxConcurrentRequests 最大并发换算请求数
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
	// Retries 单次换算的最大尝试次数（含首次请求）
	Retries int `yaml:"retries"`
	// RetryBackoffMs 超时/网络错误重试间隔（毫秒），按尝试次数线性增长
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
	// RateLimitBackoffMs 命中 429 限流后的固定等待间隔（毫秒）
	RateLimitBackoffMs int `yaml:"rate_limit_backoff_ms"`
	// RequestTimeoutMs 单次 REST 请求超时（毫秒）
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// JournalConfig 落盘日志配置
type JournalConfig struct {
	// Dir 日志目录
	Dir string `yaml:"dir"`
	// BinanceFilename Binance 日志文件名（不含扩展名）
	BinanceFilename string `yaml:"binance_filename"`
	// OkxFilename OKX 日志文件名（不含扩展名）
	OkxFilename string `yaml:"okx_filename"`
	// TailPollMs 日志尾随轮询间隔（毫秒）
	TailPollMs int `yaml:"tail_poll_ms"`
}

// HTTPConfig HTTP/SSE 查询接口配置
type HTTPConfig struct {
	// Addr 监听地址，如 :6680
	Addr string `yaml:"addr"`
}

// WSServerConfig 对外 WebSocket 推送接口配置
type WSServerConfig struct {
	// Addr 监听地址，如 :6681
	Addr string `yaml:"addr"`
	// Path WebSocket 路径
	Path string `yaml:"path"`
	// SymbolsTimeoutMs 等待客户端发送订阅符号的超时（毫秒）
	SymbolsTimeoutMs int `yaml:"symbols_timeout_ms"`
	// PingIntervalMs 服务端向客户端发送心跳的间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
}

// AggregationConfig 聚合窗口配置
type AggregationConfig struct {
	// WindowsMinutes 统计窗口（分钟）列表，如 [3,15,60,240,1440]
	WindowsMinutes []int `yaml:"windows_minutes"`
	// TopN 按方向金额排序时保留的交易对数量
	TopN int `yaml:"top_n"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "liquidation-feed-hub"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Thresholds.MinNotionalUSDT == 0 {
		c.Thresholds.MinNotionalUSDT = 10
	}

	if c.Retention.HorizonMinutes == 0 {
		c.Retention.HorizonMinutes = 48 * 60
	}
	if c.Retention.PruneIntervalMs == 0 {
		c.Retention.PruneIntervalMs = 5000
	}

	// Binance: 协议层 ping 30s 间隔，消息空闲 180s 触发重连；PongTimeoutMs 默认 15s，
	// 但 Binance 客户端不读取该项，pong 只用于刷新读超时
	setWSDefaults(&c.WS.Binance, 180000, 15000)
	if c.WS.Binance.PingIntervalMs == 0 {
		c.WS.Binance.PingIntervalMs = 30000
	}
	// OKX: 应用层文本 ping 25s 间隔、10s pong 超时，消息空闲 60s 触发重连
	setWSDefaults(&c.WS.OKX, 60000, 10000)
	if c.WS.OKX.PingIntervalMs == 0 {
		c.WS.OKX.PingIntervalMs = 25000
	}

	if c.OkxConversion.MaxConcurrentRequests == 0 {
		c.OkxConversion.MaxConcurrentRequests = 2
	}
	if c.OkxConversion.Retries == 0 {
		c.OkxConversion.Retries = 3
	}
	if c.OkxConversion.RetryBackoffMs == 0 {
		c.OkxConversion.RetryBackoffMs = 500
	}
	if c.OkxConversion.RateLimitBackoffMs == 0 {
		c.OkxConversion.RateLimitBackoffMs = 2000
	}
	if c.OkxConversion.RequestTimeoutMs == 0 {
		c.OkxConversion.RequestTimeoutMs = 5000
	}
	if c.OkxConversion.CachePath == "" {
		c.OkxConversion.CachePath = "./data/okx_conversion_cache.json"
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Journal.BinanceFilename == "" {
		c.Journal.BinanceFilename = "liquidation_ba"
	}
	if c.Journal.OkxFilename == "" {
		c.Journal.OkxFilename = "liquidation_okx"
	}
	if c.Journal.TailPollMs == 0 {
		c.Journal.TailPollMs = 500
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":6680"
	}

	if c.WSServer.Addr == "" {
		c.WSServer.Addr = ":6681"
	}
	if c.WSServer.Path == "" {
		c.WSServer.Path = "/ws"
	}
	if c.WSServer.SymbolsTimeoutMs == 0 {
		c.WSServer.SymbolsTimeoutMs = 30000
	}
	if c.WSServer.PingIntervalMs == 0 {
		c.WSServer.PingIntervalMs = 20000
	}

	if len(c.Aggregation.WindowsMinutes) == 0 {
		c.Aggregation.WindowsMinutes = []int{3, 15, 60, 240, 1440}
	}
	if c.Aggregation.TopN == 0 {
		c.Aggregation.TopN = 10
	}
}

func setWSDefaults(cfg *ExchangeWSConfig, readTimeoutMs, pongTimeoutMs int) {
	if cfg.ReadTimeoutMs == 0 {
		cfg.ReadTimeoutMs = readTimeoutMs
	}
	if cfg.PongTimeoutMs == 0 {
		cfg.PongTimeoutMs = pongTimeoutMs
	}
	if cfg.BackoffBaseMs == 0 {
		cfg.BackoffBaseMs = 5000
	}
	if cfg.BackoffMaxMs == 0 {
		cfg.BackoffMaxMs = 5000
	}
	if cfg.BackoffJitter == 0 {
		cfg.BackoffJitter = 0.2
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.WS.Binance.URL == "" {
		errs = append(errs, "ws.binance.url: Binance WebSocket 地址不能为空")
	}
	if c.WS.OKX.URL == "" {
		errs = append(errs, "ws.okx.url: OKX WebSocket 地址不能为空")
	}

	if c.OkxConversion.RestBaseURL == "" {
		errs = append(errs, "okx_conversion.rest_base_url: OKX REST API 地址不能为空")
	}
	if c.OkxConversion.MaxConcurrentRequests <= 0 {
		errs = append(errs, "okx_conversion.max_concurrent_requests: 必须为正数")
	}

	if c.Thresholds.MinNotionalUSDT < 0 {
		errs = append(errs, "thresholds.min_notional_usdt: 不能为负数")
	}

	if c.Retention.HorizonMinutes <= 0 {
		errs = append(errs, "retention.horizon_minutes: 必须为正数")
	}

	if c.Journal.Dir == "" {
		errs = append(errs, "journal.dir: 日志目录不能为空")
	}

	for _, w := range c.Aggregation.WindowsMinutes {
		if w <= 0 {
			errs = append(errs, "aggregation.windows_minutes: 窗口长度必须为正数")
			break
		}
	}
	if c.Aggregation.TopN <= 0 {
		errs = append(errs, "aggregation.top_n: 必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
