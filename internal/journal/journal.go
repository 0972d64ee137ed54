// Package journal 实现爆仓事件的落盘持久化与增量尾随。
// 每个交易所对应一份单一的、永久追加的 CSV 日志文件（按 §4.1 的约定，
// 滚动/归档不在本系统范围内），供重启后经 Tailer 回放、重建内存窗口。
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"liquidation-feed-hub/internal/model"
	"liquidation-feed-hub/internal/util/fastparse"
)

// Header CSV 表头，列顺序固定
var Header = []string{"时间", "币对", "交易所", "价格", "方向", "金额"}

const timeLayout = "2006-01-02 15:04:05"

// exchangeTag 交易所在日志文件中使用的历史惯用标签
func exchangeTag(ex model.Exchange) string {
	switch ex {
	case model.ExchangeBinance:
		return "BA"
	case model.ExchangeOKX:
		return "OKX"
	default:
		return string(ex)
	}
}

func tagToExchange(tag string) (model.Exchange, error) {
	switch tag {
	case "BA":
		return model.ExchangeBinance, nil
	case "OKX":
		return model.ExchangeOKX, nil
	default:
		return "", fmt.Errorf("未知交易所标签: %s", tag)
	}
}

// directionToken 方向在日志文件中使用的历史惯用词
func directionToken(d model.Direction) string {
	switch d {
	case model.DirectionLongLiquidated:
		return "多头爆仓"
	case model.DirectionShortLiquidated:
		return "空头爆仓"
	default:
		return string(d)
	}
}

func tokenToDirection(tok string) (model.Direction, error) {
	switch tok {
	case "多头爆仓":
		return model.DirectionLongLiquidated, nil
	case "空头爆仓":
		return model.DirectionShortLiquidated, nil
	default:
		return "", fmt.Errorf("未知方向标记: %s", tok)
	}
}

// Journal 单个交易所的永久追加 CSV 日志
// Append 对同一文件的并发调用通过 mu 串行化，每次调用同步刷盘；只追加、
// 不随机写、不删除，文件名固定（如 liquidation_ba.csv），不按日期切分。
type Journal struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// New 创建一个写入 dir/filename.csv 的 Journal
// 参数 dir: 日志目录，参数 filename: 文件名（不含扩展名，如 liquidation_ba）
func New(dir, filename string) *Journal {
	return &Journal{path: filepath.Join(dir, filename+".csv")}
}

// Path 返回本日志的完整文件路径
func (j *Journal) Path() string {
	return j.path
}

// ensureOpenLocked 惰性打开底层文件；调用方必须持有 mu
func (j *Journal) ensureOpenLocked() error {
	if j.file != nil {
		return nil
	}

	if dir := filepath.Dir(j.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建日志目录失败: %w", err)
		}
	}

	needHeader := false
	if info, err := os.Stat(j.path); err != nil || info.Size() == 0 {
		needHeader = true
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}

	j.file = f
	j.writer = csv.NewWriter(f)

	if needHeader {
		if err := j.writer.Write(Header); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
		j.writer.Flush()
		if err := j.writer.Error(); err != nil {
			return fmt.Errorf("刷新表头失败: %w", err)
		}
	}

	return nil
}

// Append 原子地追加一行并刷盘
// 同一文件的并发调用由 mu 串行化，每次调用返回前数据已落盘。
func (j *Journal) Append(e *model.LiquidationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.ensureOpenLocked(); err != nil {
		return err
	}

	record := []string{
		e.Timestamp.Format(timeLayout),
		e.Symbol,
		exchangeTag(e.Exchange),
		fastparse.FormatFloat(e.Price, -1),
		directionToken(e.Direction),
		fastparse.FormatFloat(e.Amount, -1),
	}

	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("写入日志行失败: %w", err)
	}
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("刷新日志缓冲区失败: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("同步日志文件失败: %w", err)
	}
	return nil
}

// Close 关闭底层文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ParseRecord 将一条 CSV 记录解析为 LiquidationEvent，供 Tailer 与回放工具复用
func ParseRecord(record []string) (*model.LiquidationEvent, error) {
	if len(record) != len(Header) {
		return nil, fmt.Errorf("日志列数不匹配: got %d, want %d", len(record), len(Header))
	}

	ts, err := time.Parse(timeLayout, record[0])
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %w", err)
	}
	ex, err := tagToExchange(record[2])
	if err != nil {
		return nil, err
	}
	price, err := fastparse.ParseFloat(record[3])
	if err != nil {
		return nil, fmt.Errorf("解析价格失败: %w", err)
	}
	dir, err := tokenToDirection(record[4])
	if err != nil {
		return nil, err
	}
	amount, err := fastparse.ParseFloat(record[5])
	if err != nil {
		return nil, fmt.Errorf("解析金额失败: %w", err)
	}

	return &model.LiquidationEvent{
		Timestamp: ts,
		Symbol:    record[1],
		Exchange:  ex,
		Price:     price,
		Direction: dir,
		Amount:    amount,
	}, nil
}
