// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package interval

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, contents string) (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	if contents != "" {
		if err := afero.WriteFile(fs, "config.ini", []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewStore(fs, "config.ini", zap.NewNop()), fs
}

func TestBootstrapDefault(t *testing.T) {
	s, fs := newTestStore(t, "")

	iv, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if iv != Default {
		t.Errorf("Expected %v, got %v", Default, iv)
	}

	data, err := afero.ReadFile(fs, "config.ini")
	if err != nil {
		t.Fatalf("Expected config file to be created: %v", err)
	}
	for _, line := range []string{"[TIME_INTERVAL]", "HOURS=1", "MINUTES=0"} {
		if !strings.Contains(string(data), line) {
			t.Errorf("Expected config file to contain %q, got %q", line, string(data))
		}
	}

	again, err := s.Load()
	if err != nil {
		t.Fatalf("Second Load: %v", err)
	}
	if again != iv {
		t.Errorf("Expected reload to return %v, got %v", iv, again)
	}
	if want, got := time.Hour, again.Duration(); want != got {
		t.Errorf("Expected duration %v, got %v", want, got)
	}
}

func TestLoadValues(t *testing.T) {
	cases := []struct {
		contents string
		want     Interval
	}{
		{"[TIME_INTERVAL]\nHOURS=0\nMINUTES=5\n", Interval{0, 5}},
		{"[TIME_INTERVAL]\nHOURS=2\nMINUTES=30\n", Interval{2, 30}},
		// Missing keys are zero, no merging with the default.
		{"[TIME_INTERVAL]\nMINUTES=15\n", Interval{0, 15}},
		{"HOURS=3\n", Interval{3, 0}},
		// Unknown lines are ignored.
		{"# polling\n[TIME_INTERVAL]\nthis line means nothing\nHOURS=1\nCOLOR=blue\nMINUTES=1\n", Interval{1, 1}},
	}
	for i, c := range cases {
		s, _ := newTestStore(t, c.contents)
		got, err := s.Load()
		if err != nil {
			t.Errorf("case %d: unexpected error: %v", i, err)
			continue
		}
		if got != c.want {
			t.Errorf("case %d: expected %v, got %v", i, c.want, got)
		}
	}

	if want, got := 300*time.Second, (Interval{0, 5}).Duration(); want != got {
		t.Errorf("Expected duration %v, got %v", want, got)
	}
}

func TestLoadParseError(t *testing.T) {
	for _, contents := range []string{
		"[TIME_INTERVAL]\nHOURS=one\nMINUTES=0\n",
		"[TIME_INTERVAL]\nHOURS=1\nMINUTES=1.5\n",
		"[TIME_INTERVAL]\nHOURS=\n",
	} {
		s, _ := newTestStore(t, contents)
		_, err := s.Load()
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("Expected ErrConfigParse for %q, got %v", contents, err)
		}
	}
}

func TestLoadNegative(t *testing.T) {
	for _, iv := range []Interval{{-1, 0}, {0, -1}, {-3, -7}, {2, -30}} {
		s, fs := newTestStore(t, "")
		if err := s.Save(iv); err != nil {
			t.Fatal(err)
		}
		_, err := s.Load()
		if !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Expected ErrInvalidInterval for %v, got %v", iv, err)
		}
		// The file is left untouched for the operator to fix.
		if exists, _ := afero.Exists(fs, "config.ini"); !exists {
			t.Errorf("Expected config file to remain")
		}
	}
}

func TestLoadTooLong(t *testing.T) {
	for _, contents := range []string{
		"[TIME_INTERVAL]\nHOURS=3000000\nMINUTES=0\n",
		"[TIME_INTERVAL]\nHOURS=0\nMINUTES=200000000\n",
		"[TIME_INTERVAL]\nHOURS=2562047\nMINUTES=60\n",
	} {
		s, _ := newTestStore(t, contents)
		_, err := s.Load()
		if !errors.Is(err, ErrIntervalTooLong) {
			t.Errorf("Expected ErrIntervalTooLong for %q, got %v", contents, err)
		}
	}

	// The longest accepted interval still sleeps forward.
	iv := Interval{Hours: 2562047, Minutes: 47}
	if err := iv.Validate(); err != nil {
		t.Fatalf("Validate(%v): %v", iv, err)
	}
	if iv.Duration() <= 0 {
		t.Errorf("Expected a positive duration, got %v", iv.Duration())
	}
}
