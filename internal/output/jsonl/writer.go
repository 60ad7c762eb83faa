// Package jsonl 实现异步 JSONL 文件写入。
// 投递走带缓冲的 channel，编码与文件 I/O 在后台 goroutine 完成。
package jsonl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/core/model"
)

// ClassificationsFile 分类事件审计文件名
const ClassificationsFile = "classifications.jsonl"

// ErrClosed 写入器已关闭
var ErrClosed = errors.New("writer 已关闭")

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	val  any
	done chan error
}

// Writer 异步 JSONL 写入器
type Writer struct {
	path   string
	ch     chan op
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	// sendMu 保证 Close 之后不再向 ch 发送
	sendMu sync.Mutex

	written atomic.Int64
	failed  atomic.Int64

	wg sync.WaitGroup
}

// NewWriter 创建 JSONL 写入器
// 参数 path: 输出文件路径（追加写）
// 参数 bufferSize: channel 容量
func NewWriter(path string, bufferSize int, logger *zap.Logger) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	w := &Writer{
		path:   path,
		ch:     make(chan op, bufferSize),
		logger: logger.Named("jsonl"),
	}

	w.wg.Add(1)
	go w.loop(f)

	return w, nil
}

// NewClassificationWriter 在 dir 下创建分类事件审计文件
func NewClassificationWriter(dir string, bufferSize int, logger *zap.Logger) (*Writer, error) {
	return NewWriter(filepath.Join(dir, ClassificationsFile), bufferSize, logger)
}

// Path 输出文件路径
func (w *Writer) Path() string { return w.path }

// Write 投递一条记录，缓冲区满时阻塞
func (w *Writer) Write(v any) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	if w.closed.Load() {
		return ErrClosed
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed.Load() {
		return ErrClosed
	}
	w.ch <- op{typ: opWrite, val: v}
	return nil
}

// WriteClassification 写入一条分类事件
func (w *Writer) WriteClassification(c *model.Classification) error {
	if c == nil {
		return nil
	}
	return w.Write(*c)
}

// Flush 强制刷新文件缓冲区
func (w *Writer) Flush() error {
	if w == nil || w.closed.Load() {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed.Load() {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 刷新并关闭文件
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.sendMu.Lock()
		defer w.sendMu.Unlock()
		done := make(chan error, 1)
		w.ch <- op{typ: opClose, done: done}
		w.closeErr = <-done
		close(w.ch)
	})
	w.wg.Wait()
	return w.closeErr
}

// Stats 已写入与失败的记录数
func (w *Writer) Stats() (written, failed int64) {
	return w.written.Load(), w.failed.Load()
}

func (w *Writer) loop(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 64<<10)
	reply := func(err error, done chan error) {
		if done != nil {
			done <- err
		}
	}

	for req := range w.ch {
		switch req.typ {
		case opWrite:
			if err := writeLine(bw, req.val); err != nil {
				if w.failed.Add(1) == 1 {
					w.logger.Error("写入记录失败", zap.String("path", w.path), zap.Error(err))
				}
				continue
			}
			w.written.Add(1)
		case opFlush:
			reply(bw.Flush(), req.done)
		case opClose:
			reply(bw.Flush(), req.done)
			return
		}
	}
}

func writeLine(bw *bufio.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := bw.Write(b); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}
