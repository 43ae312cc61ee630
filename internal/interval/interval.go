// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package interval persists the wait between two polls of the mailbox.
package interval

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

const (
	sectionName = "TIME_INTERVAL"
	keyHours    = "HOURS"
	keyMinutes  = "MINUTES"
)

var (
	ErrConfigParse     = errors.New("Check input values on config file")
	ErrInvalidInterval = errors.New("The time interval value cannot be negative")
	ErrIntervalTooLong = errors.New("The time interval value is too long")
)

func init() {
	// Write `KEY=VALUE` without padding.
	ini.PrettyFormat = false
}

// Interval is the time between the end of one cycle and the start of the next.
type Interval struct {
	Hours   int
	Minutes int
}

// Default is written when no config file exists.
var Default = Interval{Hours: 1, Minutes: 0}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.Hours)*time.Hour + time.Duration(i.Minutes)*time.Minute
}

func (i Interval) Validate() error {
	if i.Hours < 0 || i.Minutes < 0 {
		return fmt.Errorf("%w: %s=%d %s=%d", ErrInvalidInterval, keyHours, i.Hours, keyMinutes, i.Minutes)
	}
	// The sum must fit in a time.Duration.
	hours := int64(i.Hours)
	if hours > math.MaxInt64/int64(time.Hour) ||
		int64(i.Minutes) > (math.MaxInt64-hours*int64(time.Hour))/int64(time.Minute) {
		return fmt.Errorf("%w: %s=%d %s=%d", ErrIntervalTooLong, keyHours, i.Hours, keyMinutes, i.Minutes)
	}
	return nil
}

func (i Interval) String() string {
	return fmt.Sprintf("%dh%02dm", i.Hours, i.Minutes)
}

// Store reads and bootstraps the interval file.
type Store struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
}

func NewStore(fs afero.Fs, path string, log *zap.Logger) *Store {
	return &Store{
		fs:   fs,
		path: path,
		log:  log.With(zap.String("path", path)),
	}
}

// Load returns the validated interval, creating the file with `Default` when
// it does not exist. Keys missing from an existing file are zero.
func (s *Store) Load() (Interval, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.Save(Default); err != nil {
			return Interval{}, err
		}
		s.log.Info("The config file was created", zap.Stringer("interval", Default))
		return Default, nil
	}
	if err != nil {
		return Interval{}, fmt.Errorf("Failed to read config file: %w", err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{SkipUnrecognizableLines: true, Loose: true}, data)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	var iv Interval
	for _, sec := range f.Sections() {
		if err := readKey(sec, keyHours, &iv.Hours); err != nil {
			return Interval{}, err
		}
		if err := readKey(sec, keyMinutes, &iv.Minutes); err != nil {
			return Interval{}, err
		}
	}

	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	s.log.Debug("Loaded interval", zap.Stringer("interval", iv))
	return iv, nil
}

func readKey(sec *ini.Section, name string, dst *int) error {
	if !sec.HasKey(name) {
		return nil
	}
	raw := sec.Key(name).String()
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrConfigParse, name, raw)
	}
	*dst = v
	return nil
}

// Save writes `iv` in the `[TIME_INTERVAL]` layout.
func (s *Store) Save(iv Interval) error {
	f := ini.Empty()
	sec, err := f.NewSection(sectionName)
	if err != nil {
		return err
	}
	if _, err := sec.NewKey(keyHours, strconv.Itoa(iv.Hours)); err != nil {
		return err
	}
	if _, err := sec.NewKey(keyMinutes, strconv.Itoa(iv.Minutes)); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("Failed to write config file: %w", err)
	}
	return nil
}
