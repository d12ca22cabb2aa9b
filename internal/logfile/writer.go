// Package logfile writes captured events as newline-delimited JSON, with
// optional size-based rotation.
package logfile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/standardbeagle/consolelog/internal/capture"
)

// DefaultKeep is the number of rotated files kept when Options.Keep is unset.
const DefaultKeep = 5

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("log writer closed")

// Options configures a file-backed Writer.
type Options struct {
	Path string
	// MaxSizeBytes triggers rotation once the active file reaches it.
	// Zero disables rotation.
	MaxSizeBytes int64
	// Keep is the number of rotated files (<path>.1 ... <path>.<Keep>).
	Keep int
}

// Writer appends one JSON object per line. It is safe for concurrent use.
type Writer struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File // nil for streams and after a failed reopen
	buf    *bufio.Writer
	size   int64
	closed bool
}

// Open opens (or creates) the log file for appending. The size counter
// starts from the file's current size, so rotation thresholds hold across
// restarts.
func Open(opts Options, logger *zap.Logger) (*Writer, error) {
	if opts.Path == "" {
		return nil, errors.New("log file path is required")
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if opts.MaxSizeBytes < 0 {
		opts.MaxSizeBytes = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	w := &Writer{opts: opts, logger: logger}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// NewStream returns a Writer over out that never rotates. Close flushes but
// leaves out open.
func NewStream(out io.Writer) *Writer {
	return &Writer{
		logger: zap.NewNop(),
		buf:    bufio.NewWriter(out),
	}
}

// Path returns the active file path, or "" for a stream.
func (w *Writer) Path() string {
	return w.opts.Path
}

// Size returns the number of bytes in the active file, including buffered
// bytes.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Write appends ev as a single JSON line and rotates if the size limit is
// reached.
func (w *Writer) Write(ev capture.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.buf == nil {
		// A reopen after rotation failed; try again so writes resume once
		// the cause clears.
		if err := w.openLocked(); err != nil {
			w.logger.Error("failed to write event", zap.String("path", w.opts.Path), zap.Error(err))
			return err
		}
		w.logger.Info("log file reopened", zap.String("path", w.opts.Path))
	}

	n, err := w.buf.Write(line)
	w.size += int64(n)
	if err != nil {
		w.logger.Error("failed to write event", zap.String("path", w.opts.Path), zap.Error(err))
		return fmt.Errorf("write event: %w", err)
	}

	if w.file != nil && w.opts.MaxSizeBytes > 0 && w.size >= w.opts.MaxSizeBytes {
		w.rotateLocked()
	}
	return nil
}

// Flush hands buffered lines to the operating system.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil || w.buf.Buffered() == 0 {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		w.logger.Error("failed to flush log", zap.String("path", w.opts.Path), zap.Error(err))
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close flushes, syncs and closes the file. Streams are flushed only.
// Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if w.file == nil {
		if w.buf != nil {
			return w.buf.Flush()
		}
		return nil
	}
	return w.closeFileLocked()
}

func (w *Writer) openLocked() error {
	f, err := os.OpenFile(w.opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.opts.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file %s: %w", w.opts.Path, err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.size = info.Size()
	return nil
}

func (w *Writer) closeFileLocked() error {
	f := w.file
	w.file = nil
	err := w.buf.Flush()
	w.buf = nil
	if syncErr := f.Sync(); syncErr != nil && err == nil {
		err = syncErr
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// rotateLocked moves the active file to <path>.1, shifting older files up
// and dropping the one beyond Keep, then reopens an empty active file. A
// failed step is logged and the file is reopened regardless.
func (w *Writer) rotateLocked() {
	w.logger.Debug("rotating log file", zap.String("path", w.opts.Path), zap.Int64("size", w.size))

	if err := w.closeFileLocked(); err != nil {
		w.logger.Warn("error closing log file before rotation", zap.Error(err))
	}
	if err := shift(w.opts.Path, w.opts.Keep); err != nil {
		w.logger.Error("log rotation failed", zap.String("path", w.opts.Path), zap.Error(err))
	}
	if err := w.openLocked(); err != nil {
		w.logger.Error("failed to reopen log file after rotation", zap.Error(err))
		return
	}
	w.logger.Debug("log rotation complete", zap.String("path", w.opts.Path))
}

func rotatedName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func shift(path string, keep int) error {
	if err := os.Remove(rotatedName(path, keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove oldest: %w", err)
	}
	for k := keep - 1; k >= 1; k-- {
		src := rotatedName(path, k)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, rotatedName(path, k+1)); err != nil {
			return fmt.Errorf("shift %s: %w", src, err)
		}
	}
	if err := os.Rename(path, rotatedName(path, 1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("rotate active file: %w", err)
	}
	return nil
}
