// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"src.bluestatic.org/mailattach/internal/interval"
	"src.bluestatic.org/mailattach/internal/journal"
	"src.bluestatic.org/mailattach/internal/poll"
	"src.bluestatic.org/mailattach/pkg/version"
)

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	o := &options{
		fs:     fs,
		stdin:  strings.NewReader(""),
		stdout: &out,
	}
	cmd := newRootCommand(o)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if want, got := version.VersionString, out; want != got {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestOnceCreatesIntervalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	out, err := execute(t, fs, "once", "--secrets", "missing.json")

	var fe *poll.FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FatalError for missing secrets, got %v", err)
	}
	if want, got := poll.ReasonRuntime, fe.Reason; want != got {
		t.Errorf("Expected reason %v, got %v", want, got)
	}
	if want, got := exitFatal, exitCode(err); want != got {
		t.Errorf("Expected exit code %d, got %d", want, got)
	}

	data, err := afero.ReadFile(fs, "config.ini")
	if err != nil {
		t.Fatalf("Expected config.ini to be created: %v", err)
	}
	if !strings.Contains(string(data), "HOURS=1") || !strings.Contains(string(data), "MINUTES=0") {
		t.Errorf("Unexpected config file %q", string(data))
	}
	if !strings.Contains(out, "The config file was created") {
		t.Errorf("Expected creation to be logged, got %q", out)
	}
	if !strings.Contains(out, "Error! Check the message below") {
		t.Errorf("Expected the failure to be logged, got %q", out)
	}

	infos, err := afero.ReadDir(fs, "logs")
	if err != nil || len(infos) != 1 {
		t.Fatalf("Expected one log file, got %v (%v)", infos, err)
	}
}

func TestStartupConfigError(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "config.ini", []byte("[TIME_INTERVAL]\nHOURS=one\nMINUTES=0\n"), 0o644)

	out, err := execute(t, fs, "run")
	if !errors.Is(err, interval.ErrConfigParse) {
		t.Fatalf("Expected ErrConfigParse, got %v", err)
	}
	if want, got := exitConfig, exitCode(err); want != got {
		t.Errorf("Expected exit code %d, got %d", want, got)
	}
	if !strings.Contains(out, "Check input values on config file") {
		t.Errorf("Expected the parse error to be logged, got %q", out)
	}
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	err = j.Record(testContext(t), journal.Delivery{
		CycleID:  "c1",
		Sender:   "reports@example.org",
		Filename: "report.pdf",
		Path:     "out/report.pdf",
		Size:     42,
		SHA256:   "00",
		SavedAt:  time.Now(),
	})
	j.Close()
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, afero.NewMemMapFs(), "history", "--journal", path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if want, got := 2, len(lines); want != got {
		t.Fatalf("Expected %d lines, got %q", want, out)
	}
	if !strings.Contains(lines[1], "out/report.pdf") || !strings.Contains(lines[1], "42") {
		t.Errorf("Unexpected row %q", lines[1])
	}
}
