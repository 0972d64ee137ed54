// Package journal 的 Tailer 增量跟随单个交易所固定路径的日志文件，
// 用于进程启动时回放历史事件、重建内存窗口，以及兜底追赶当前日志的真实状态。
// 文件名固定不变，但仍检测 inode/设备号变化，以兼容外部运维对日志文件的
// 替换（例如人工归档后重建空文件）。
package journal

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"liquidation-feed-hub/internal/model"
)

// Tailer 增量跟随单个交易所的日志文件
type Tailer struct {
	path   string
	poll   time.Duration
	logger *zap.Logger

	curDev    uint64
	curIno    uint64
	offset    int64
	sawHeader bool
	seenFile  bool
}

// NewTailer 创建一个跟随固定路径 path 的 Tailer，poll 为轮询间隔
func NewTailer(path string, poll time.Duration, logger *zap.Logger) *Tailer {
	return &Tailer{
		path:   path,
		poll:   poll,
		logger: logger.Named("journal_tailer").With(zap.String("path", path)),
	}
}

// Run 持续轮询日志文件，解析出的事件写入 out；ctx 取消时返回
func (t *Tailer) Run(ctx context.Context, out chan<- *model.LiquidationEvent) {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	t.pollOnce(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(out)
		}
	}
}

// pollOnce 执行一次轮询：检测文件被替换，读取新增内容并解析
func (t *Tailer) pollOnce(out chan<- *model.LiquidationEvent) {
	dev, ino, err := statDevIno(t.path)
	if err != nil {
		t.logger.Debug("日志文件尚不存在", zap.Error(err))
		return
	}

	if !t.seenFile || dev != t.curDev || ino != t.curIno {
		if t.seenFile {
			t.logger.Info("检测到日志文件被替换，重新从头读取")
		}
		t.seenFile = true
		t.curDev = dev
		t.curIno = ino
		t.offset = 0
		t.sawHeader = false
	}

	t.readNew(out)
}

// readNew 从上次读取位置继续读取新增字节，逐行解析为事件
func (t *Tailer) readNew(out chan<- *model.LiquidationEvent) {
	f, err := os.Open(t.path)
	if err != nil {
		t.logger.Warn("打开日志文件失败", zap.Error(err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.logger.Warn("stat 日志文件失败", zap.Error(err))
		return
	}
	if info.Size() < t.offset {
		// 文件被截断，从头重新读取
		t.offset = 0
		t.sawHeader = false
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.logger.Warn("定位日志文件失败", zap.Error(err))
		return
	}

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			// 行尾没有换行符说明写入方尚未写完这一行，留到下次轮询再读
			break
		}
		t.offset += int64(len(line))
		t.handleLine(line, out)
	}
}

func (t *Tailer) handleLine(line string, out chan<- *model.LiquidationEvent) {
	rows, err := csv.NewReader(strings.NewReader(line)).ReadAll()
	if err != nil || len(rows) == 0 {
		return
	}
	record := rows[0]

	if !t.sawHeader {
		t.sawHeader = true
		if len(record) > 0 && record[0] == Header[0] {
			return
		}
	}

	event, err := ParseRecord(record)
	if err != nil {
		t.logger.Warn("解析日志行失败，跳过", zap.Error(err))
		return
	}

	select {
	case out <- event:
	default:
		t.logger.Warn("回放通道已满，丢弃事件")
	}
}

// statDevIno 返回文件的设备号与 inode 号，用于判定文件是否被替换
func statDevIno(path string) (dev uint64, ino uint64, err error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, 0, err
	}
	return uint64(st.Dev), uint64(st.Ino), nil
}
