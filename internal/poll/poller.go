// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package poll runs the fetch cycle against the mailbox on a fixed interval.
package poll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"src.bluestatic.org/mailattach/internal/filter"
	"src.bluestatic.org/mailattach/internal/interval"
	"src.bluestatic.org/mailattach/internal/journal"
	"src.bluestatic.org/mailattach/internal/mailbox"
	"src.bluestatic.org/mailattach/internal/mime"
	"src.bluestatic.org/mailattach/internal/secrets"
)

// SettingsSource yields the connection settings. It is consulted at the
// start of every cycle so that edits to the secrets file take effect
// without a restart.
type SettingsSource interface {
	Resolve() (secrets.Settings, error)
}

// LogSource opens the logger for one cycle. See logbook.Book.
type LogSource interface {
	Open() (*zap.Logger, func() error, error)
}

// Recorder receives one entry per attachment written.
type Recorder interface {
	Record(ctx context.Context, d journal.Delivery) error
	Close() error
}

type Config struct {
	Interval interval.Interval
	Settings SettingsSource
	Logs     LogSource
	Fs       afero.Fs

	// Optional hooks. Nil fields get the production behavior.
	NewClient   func(s secrets.Settings, log *zap.Logger) mailbox.Client
	OpenJournal func(path string) (Recorder, error)
	Acknowledge func()
	ClearScreen func()
	Now         func() time.Time
	After       func(d time.Duration) <-chan time.Time
}

type Poller struct {
	c   Config
	fs  afero.Fs
	log *zap.Logger

	now    func() time.Time
	decode func(raw []byte) (*mime.Message, error)
}

func New(c Config, log *zap.Logger) *Poller {
	if c.NewClient == nil {
		c.NewClient = func(s secrets.Settings, log *zap.Logger) mailbox.Client {
			return mailbox.NewPOP3(mailbox.Options{
				Addr:    s.Addr(),
				UseTLS:  s.UseSSL,
				Timeout: s.Timeout,
			}, log)
		}
	}
	if c.OpenJournal == nil {
		c.OpenJournal = func(path string) (Recorder, error) {
			j, err := journal.Open(path)
			if err != nil {
				return nil, err
			}
			return j, nil
		}
	}
	if c.Acknowledge == nil {
		c.Acknowledge = func() {}
	}
	if c.ClearScreen == nil {
		c.ClearScreen = func() {}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.After == nil {
		c.After = time.After
	}
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	return &Poller{
		c:      c,
		fs:     c.Fs,
		log:    log,
		now:    c.Now,
		decode: mime.Decode,
	}
}

// Run executes cycles until one of them is fatal or `ctx` is cancelled. A
// cancelled context returns nil, after the cycle in progress has finished. A
// fatal cycle returns a *FatalError once the operator has acknowledged it.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("Starting poller", zap.Stringer("interval", p.c.Interval))
	for {
		out := p.RunOnce(context.WithoutCancel(ctx))
		if out.Kind == Fatal {
			p.c.Acknowledge()
			return &FatalError{Reason: out.Reason, Err: out.Err}
		}

		select {
		case <-ctx.Done():
			p.log.Info("Poller stopping")
			return nil
		case <-p.c.After(p.c.Interval.Duration()):
		}
		p.c.ClearScreen()
	}
}

// RunOnce executes a single cycle. It never returns an error directly: all
// failures are reported through the Outcome and the day's log.
func (p *Poller) RunOnce(ctx context.Context) Outcome {
	log, closeLog, err := p.c.Logs.Open()
	if err != nil {
		p.log.Error("Failed to open the log file", zap.Error(err))
		log, closeLog = p.log, func() error { return nil }
	}
	defer closeLog()

	id := uuid.NewString()
	log = log.With(zap.String("cycle", id))

	out := p.runCycle(ctx, id, log)
	if out.Kind == Fatal {
		log.Error("Error! Check the message below",
			zap.Stringer("reason", out.Reason),
			zap.Error(out.Err))
		return out
	}

	next := p.now().Add(p.c.Interval.Duration())
	log.Info("Next run", zap.String("at", next.Format("02-01-2006 15:04:05")))
	return out
}

func (p *Poller) runCycle(ctx context.Context, id string, log *zap.Logger) Outcome {
	s, err := p.c.Settings.Resolve()
	if err != nil {
		return fatalOutcome(err)
	}

	c := &cycle{
		id:     id,
		p:      p,
		s:      s,
		client: p.c.NewClient(s, log),
		filter: filter.New(filter.Rule{Sender: s.Sender, Prefixes: s.Prefixes}, log),
		log:    log,
	}

	if s.JournalPath != "" {
		rec, err := p.c.OpenJournal(s.JournalPath)
		if err != nil {
			return fatalOutcome(err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error("Failed to close the journal", zap.Error(err))
			}
		}()
		c.recorder = rec
	}

	return c.run(ctx)
}
