// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package logbook

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time                         { return c.t }
func (c *fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func TestFileName(t *testing.T) {
	day := time.Date(2026, time.March, 7, 23, 59, 0, 0, time.Local)
	if want, got := "log_07-03-2026.txt", FileName(day); want != got {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestConsoleAndFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	var console bytes.Buffer
	clock := &fixedClock{time.Date(2026, time.October, 19, 8, 30, 5, 0, time.Local)}
	b := New(fs, "logs", &console, zap.InfoLevel, WithClock(clock))

	log, closer, err := b.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Info("Connected to the e-mail server")
	log.Debug("not written")
	log.Error("Error! Check the message below", zap.Error(errors.New("boom")))
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := afero.ReadFile(fs, "logs/log_19-10-2026.txt")
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if string(data) != console.String() {
		t.Errorf("Expected console and file to match:\nconsole: %q\nfile:    %q", console.String(), string(data))
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if want, got := 2, len(lines); want != got {
		t.Fatalf("Expected %d lines, got %d: %q", want, got, lines)
	}
	if want, got := "[19-10-2026 08:30:05] Connected to the e-mail server", lines[0]; want != got {
		t.Errorf("Expected first line %q, got %q", want, got)
	}
	if !strings.HasPrefix(lines[1], "[ERROR: 19-10-2026 08:30:05] Error! Check the message below") ||
		!strings.Contains(lines[1], "boom") {
		t.Errorf("Unexpected second line %q", lines[1])
	}
}

func TestFieldsAfterWith(t *testing.T) {
	var console bytes.Buffer
	clock := &fixedClock{time.Date(2026, time.October, 19, 8, 30, 5, 0, time.Local)}
	b := New(afero.NewMemMapFs(), "logs", &console, zap.InfoLevel, WithClock(clock))

	log, closer, err := b.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log = log.With(zap.String("cycle", "c1"))
	log.Warn("Slow server")
	closer()

	line := strings.TrimSpace(console.String())
	if !strings.HasPrefix(line, "[19-10-2026 08:30:05] Slow server") || !strings.Contains(line, `"cycle": "c1"`) {
		t.Errorf("Unexpected line %q", line)
	}
}

func TestAppendAndRotate(t *testing.T) {
	fs := afero.NewMemMapFs()
	var console bytes.Buffer
	clock := &fixedClock{time.Date(2026, time.October, 19, 23, 0, 0, 0, time.Local)}
	b := New(fs, "logs", &console, zap.InfoLevel, WithClock(clock))

	for i, msg := range []string{"first", "second"} {
		log, closer, err := b.Open()
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
		log.Info(msg)
		closer()
	}

	clock.t = clock.t.Add(2 * time.Hour)
	log, closer, err := b.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Info("next day")
	closer()

	day1, _ := afero.ReadFile(fs, "logs/log_19-10-2026.txt")
	if !strings.Contains(string(day1), "first") || !strings.Contains(string(day1), "second") {
		t.Errorf("Expected both entries appended, got %q", string(day1))
	}
	if strings.Contains(string(day1), "next day") {
		t.Errorf("Entry of the next day written to the previous file")
	}
	day2, _ := afero.ReadFile(fs, "logs/log_20-10-2026.txt")
	if !strings.Contains(string(day2), "next day") {
		t.Errorf("Expected new file for the next day, got %q", string(day2))
	}
}
