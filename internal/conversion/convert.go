package conversion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"liquidation-feed-hub/internal/config"
	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/util/fastparse"
)

// convertContractCoinResponse OKX GET /api/v5/public/convert-contract-coin 响应
type convertContractCoinResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID string `json:"instId"`
		Sz     string `json:"sz"`
	} `json:"data"`
}

// Converter 带缓存、并发限制与重试的 OKX 合约张数换算器
// 并发上限通过带缓冲 channel 充当信号量实现；429 与超时/网络错误采用不同的重试间隔。
// 换算比例（币本位数量 / 张数）按 instId 永久缓存，后续同一合约的事件直接复用。
type Converter struct {
	cfg    config.OkxConversionConfig
	cache  *Cache
	client *http.Client
	sem    chan struct{}
	logger *zap.Logger

	failures int64
}

// NewConverter 创建换算器
func NewConverter(cfg config.OkxConversionConfig, cache *Cache, logger *zap.Logger) *Converter {
	return &Converter{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond},
		sem:    make(chan struct{}, cfg.MaxConcurrentRequests),
		logger: logger.Named("okx_convert"),
	}
}

// CoinAmount 将给定 instId 的合约张数换算为币本位数量
// 缓存命中时直接返回，不经过信号量/网络；未命中时调用 OKX 的张币转换接口，
// 以 price 作为基准价格求出换算比例并永久缓存。
func (c *Converter) CoinAmount(ctx context.Context, instID string, contracts, price float64) (float64, error) {
	if ratio, ok := c.cache.Get(instID); ok {
		return contracts * ratio, nil
	}

	ratio, err := c.fetchRatio(ctx, instID, contracts, price)
	if err != nil {
		atomic.AddInt64(&c.failures, 1)
		return 0, fmt.Errorf("换算合约 %s 张数失败: %w", instID, err)
	}

	if err := c.cache.Put(model.ConversionRatio{ContractID: instID, CoinPerContract: ratio}); err != nil {
		c.logger.Warn("持久化换算比例失败", zap.Error(err))
	}

	return contracts * ratio, nil
}

// Failures 返回累计换算失败次数
func (c *Converter) Failures() int64 {
	return atomic.LoadInt64(&c.failures)
}

// fetchRatio 调用 OKX 张转币接口换算出单张合约对应的币本位数量；
// 受 sem 限制的最大并发数为 cfg.MaxConcurrentRequests；
// HTTP 429 固定等待 RateLimitBackoffMs 后重试；
// 超时/网络错误按 attempt*RetryBackoffMs 线性退避重试。
func (c *Converter) fetchRatio(ctx context.Context, instID string, contracts, price float64) (float64, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		ratio, rateLimited, err := c.doFetch(ctx, instID, contracts, price)
		if err == nil {
			return ratio, nil
		}
		lastErr = err

		var wait time.Duration
		if rateLimited {
			wait = time.Duration(c.cfg.RateLimitBackoffMs) * time.Millisecond
		} else {
			wait = time.Duration(attempt*c.cfg.RetryBackoffMs) * time.Millisecond
		}

		c.logger.Warn("换算请求失败，准备重试",
			zap.String("instId", instID), zap.Int("attempt", attempt),
			zap.Bool("rate_limited", rateLimited), zap.Error(err))

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(wait):
		}
	}
	return 0, fmt.Errorf("重试 %d 次后仍然失败: %w", c.cfg.Retries, lastErr)
}

// doFetch 请求 GET /api/v5/public/convert-contract-coin?type=2&instId=...&sz=...&px=...
// type=2 表示张转币；响应 data[0].sz 为换算后的币本位数量，
// 换算比例 = 响应 sz / 请求 sz（单张合约对应的币本位数量）。
func (c *Converter) doFetch(ctx context.Context, instID string, contracts, price float64) (ratio float64, rateLimited bool, err error) {
	sz := fastparse.FormatFloat(contracts, -1)
	px := fastparse.FormatFloat(price, -1)

	q := url.Values{}
	q.Set("type", "2")
	q.Set("instId", instID)
	q.Set("sz", sz)
	q.Set("px", px)

	reqURL := fmt.Sprintf("%s/api/v5/public/convert-contract-coin?%s", c.cfg.RestBaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, true, fmt.Errorf("OKX 返回 429 限流")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed convertContractCoinResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, false, fmt.Errorf("解析响应失败: %w", err)
	}
	if parsed.Code != "0" || len(parsed.Data) == 0 {
		return 0, false, fmt.Errorf("OKX 张转币响应为空或错误码非0: %s", parsed.Code)
	}

	convertedSz, err := fastparse.ParseFloat(parsed.Data[0].Sz)
	if err != nil {
		return 0, false, fmt.Errorf("解析换算后数量失败: %w", err)
	}
	if contracts == 0 {
		return 0, false, fmt.Errorf("张数不能为 0")
	}
	ratio = convertedSz / contracts
	if ratio <= 0 {
		return 0, false, fmt.Errorf("换算比例非法: %f", ratio)
	}

	return ratio, false, nil
}
