// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigValidation_Thresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("负数阈值应验证失败", prop.ForAll(
		func(v float64) bool {
			cfg := createValidConfig()
			cfg.Thresholds.MinNotionalUSDT = v
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, -0.0001),
	))

	properties.Property("非负阈值应通过验证", prop.ForAll(
		func(v float64) bool {
			cfg := createValidConfig()
			cfg.Thresholds.MinNotionalUSDT = v
			return cfg.Validate() == nil
		},
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestConfigValidation_Retention(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("留存时长非正数应验证失败", prop.ForAll(
		func(v int) bool {
			cfg := createValidConfig()
			cfg.Retention.HorizonMinutes = v
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

func TestConfigValidation_RequiredURLs(t *testing.T) {
	t.Run("空 binance url 应验证失败", func(t *testing.T) {
		cfg := createValidConfig()
		cfg.WS.Binance.URL = ""
		if cfg.Validate() == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("空 okx url 应验证失败", func(t *testing.T) {
		cfg := createValidConfig()
		cfg.WS.OKX.URL = ""
		if cfg.Validate() == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("空 okx rest base url 应验证失败", func(t *testing.T) {
		cfg := createValidConfig()
		cfg.OkxConversion.RestBaseURL = ""
		if cfg.Validate() == nil {
			t.Error("期望返回错误")
		}
	})
}

func TestConfigValidation_ValidConfig(t *testing.T) {
	cfg := createValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("期望通过验证，got %v", err)
	}
}

func createValidConfig() *Config {
	return &Config{
		App: AppConfig{Name: "test", LogLevel: "info"},
		Thresholds: ThresholdsConfig{
			MinNotionalUSDT: 10,
		},
		Retention: RetentionConfig{
			HorizonMinutes:  2880,
			PruneIntervalMs: 5000,
		},
		WS: WSConfig{
			Binance: ExchangeWSConfig{URL: "wss://fstream.binance.com/ws", ReadTimeoutMs: 30000},
			OKX:     ExchangeWSConfig{URL: "wss://ws.okx.com:8443/ws/v5/public", PingIntervalMs: 25000, PongTimeoutMs: 10000},
		},
		OkxConversion: OkxConversionConfig{
			RestBaseURL:           "https://www.okx.com",
			CachePath:             "./data/okx_conversion_cache.json",
			MaxConcurrentRequests: 2,
			Retries:               3,
			RetryBackoffMs:        500,
			RateLimitBackoffMs:    2000,
			RequestTimeoutMs:      5000,
		},
		Journal: JournalConfig{
			Dir:             "./data/journal",
			BinanceFilename: "liquidation_ba",
			OkxFilename:     "liquidation_okx",
			TailPollMs:      500,
		},
		HTTP:     HTTPConfig{Addr: ":6680"},
		WSServer: WSServerConfig{Addr: ":6681", Path: "/ws", SymbolsTimeoutMs: 30000, PingIntervalMs: 20000},
		Aggregation: AggregationConfig{
			WindowsMinutes: []int{3, 15, 60, 240, 1440},
			TopN:           10,
		},
	}
}

func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-hub
  log_level: info

thresholds:
  min_notional_usdt: 10

retention:
  horizon_minutes: 2880
  prune_interval_ms: 5000

ws:
  binance:
    url: wss://fstream.binance.com/ws
  okx:
    url: wss://ws.okx.com:8443/ws/v5/public

okx_conversion:
  rest_base_url: https://www.okx.com

journal:
  dir: ./data/journal

http:
  addr: :6680

ws_server:
  addr: :6681
  path: /ws
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-hub" {
		t.Errorf("App.Name = %s, want test-hub", cfg.App.Name)
	}
	if cfg.Retention.HorizonMinutes != 2880 {
		t.Errorf("Retention.HorizonMinutes = %d, want 2880", cfg.Retention.HorizonMinutes)
	}
	if cfg.OkxConversion.MaxConcurrentRequests != 2 {
		t.Errorf("OkxConversion.MaxConcurrentRequests = %d, want default 2", cfg.OkxConversion.MaxConcurrentRequests)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}
