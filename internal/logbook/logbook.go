// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package logbook mirrors log entries to the console and to one file per day.
package logbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	fileDateLayout = "02-01-2006"
	timeLayout     = "02-01-2006 15:04:05"
)

// FileName is the name of the log file holding the entries of day `t`.
func FileName(t time.Time) string {
	return "log_" + t.Format(fileDateLayout) + ".txt"
}

// Book creates loggers writing to the console and the file of the day.
type Book struct {
	fs      afero.Fs
	dir     string
	console zapcore.WriteSyncer
	level   zapcore.LevelEnabler
	clock   zapcore.Clock
}

type Option func(*Book)

// WithClock sets the clock used for timestamps and file names.
func WithClock(c zapcore.Clock) Option {
	return func(b *Book) { b.clock = c }
}

func New(fs afero.Fs, dir string, console io.Writer, level zapcore.LevelEnabler, opts ...Option) *Book {
	b := &Book{
		fs:      fs,
		dir:     dir,
		console: zapcore.AddSync(console),
		level:   level,
		clock:   zapcore.DefaultClock,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	// Time and level are written by prefixEncoder.
	ec.TimeKey = zapcore.OmitKey
	ec.LevelKey = zapcore.OmitKey
	ec.CallerKey = zapcore.OmitKey
	ec.StacktraceKey = zapcore.OmitKey
	return ec
}

var pool = buffer.NewPool()

// prefixEncoder starts every line with `[dd-MM-yyyy HH:mm:ss]`, or with
// `[ERROR: dd-MM-yyyy HH:mm:ss]` at error level and above.
type prefixEncoder struct {
	zapcore.Encoder
}

func newEncoder() zapcore.Encoder {
	return prefixEncoder{zapcore.NewConsoleEncoder(encoderConfig())}
}

func (e prefixEncoder) Clone() zapcore.Encoder {
	return prefixEncoder{e.Encoder.Clone()}
}

func (e prefixEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := e.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}
	defer line.Free()

	buf := pool.Get()
	buf.AppendString(prefix(ent))
	buf.AppendByte(' ')
	buf.Write(line.Bytes())
	return buf, nil
}

func prefix(ent zapcore.Entry) string {
	ts := ent.Time.Format(timeLayout)
	if ent.Level >= zapcore.ErrorLevel {
		return "[ERROR: " + ts + "]"
	}
	return "[" + ts + "]"
}

// Open appends to the file of the current day and returns a logger writing
// to it and to the console. The returned func flushes and closes the file.
func (b *Book) Open() (*zap.Logger, func() error, error) {
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("Failed to create log directory: %w", err)
	}
	path := filepath.Join(b.dir, FileName(b.clock.Now()))
	f, err := b.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to open log file: %w", err)
	}

	enc := newEncoder()
	core := zapcore.NewTee(
		zapcore.NewCore(enc, b.console, b.level),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), b.level),
	)
	log := zap.New(core, zap.WithClock(b.clock))

	closer := func() error {
		_ = log.Sync()
		return f.Close()
	}
	return log, closer, nil
}
