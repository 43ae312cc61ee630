// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package poll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"src.bluestatic.org/mailattach/internal/filter"
	"src.bluestatic.org/mailattach/internal/journal"
	"src.bluestatic.org/mailattach/internal/mailbox"
	"src.bluestatic.org/mailattach/internal/mime"
	"src.bluestatic.org/mailattach/internal/secrets"
)

// cycle is a single connect, fetch, filter, persist, delete, disconnect pass.
type cycle struct {
	id       string
	p        *Poller
	s        secrets.Settings
	client   mailbox.Client
	filter   *filter.Filter
	recorder Recorder
	log      *zap.Logger
}

func (c *cycle) run(ctx context.Context) Outcome {
	c.log.Info("Connecting to the e-mail server")
	if err := c.client.Connect(ctx); err != nil {
		return fatalOutcome(err)
	}
	c.log.Info("Connected to the e-mail server")

	out := c.transact(ctx)

	c.log.Info("Disconnecting from the email server")
	if err := c.client.Close(); err != nil {
		if out.Kind == Continue {
			return fatalOutcome(fmt.Errorf("Failed to close the session: %w", err))
		}
		c.log.Debug("Close after failure", zap.Error(err))
	}
	return out
}

func (c *cycle) transact(ctx context.Context) Outcome {
	if err := c.client.Authenticate(c.s.Email, c.s.Password); err != nil {
		return fatalOutcome(err)
	}
	c.log.Info("Client authenticated on the server")

	n, err := c.client.Count()
	if err != nil {
		return fatalOutcome(fmt.Errorf("Failed to count messages: %w", err))
	}
	c.log.Info("Number of e-mails", zap.Int("count", n))

	if n == 0 {
		c.log.Info("There is no e-mail on inbox")
		return continueOutcome()
	}

	// Servers give the newest message the highest number.
	msgs := make([]*mime.Message, 0, n)
	for i := n; i > 0; i-- {
		raw, err := c.client.Fetch(i)
		if err != nil {
			return fatalOutcome(err)
		}
		msg, err := c.p.decode(raw)
		if err != nil {
			return fatalOutcome(fmt.Errorf("Failed to decode message %d: %w", i, err))
		}
		msgs = append(msgs, msg)
	}

	if err := c.ensureTarget(); err != nil {
		return fatalOutcome(err)
	}

	for _, msg := range msgs {
		for _, a := range c.filter.Select(msg) {
			if err := c.persist(ctx, msg.From, a); err != nil {
				return fatalOutcome(err)
			}
		}
	}

	if err := c.client.DeleteAll(); err != nil {
		return fatalOutcome(fmt.Errorf("Failed to delete messages: %w", err))
	}
	c.log.Info("E-mails were removed from the inbox", zap.Int("count", n))
	return continueOutcome()
}

func (c *cycle) ensureTarget() error {
	exists, err := afero.DirExists(c.p.fs, c.s.TargetPath)
	if err != nil {
		return fmt.Errorf("Failed to stat target folder: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.p.fs.MkdirAll(c.s.TargetPath, 0o755); err != nil {
		return fmt.Errorf("Failed to create target folder: %w", err)
	}
	c.log.Info("The target folder was created", zap.String("path", c.s.TargetPath))
	return nil
}

// persist writes the attachment under its own name, replacing any file
// already there.
func (c *cycle) persist(ctx context.Context, from string, a mime.Attachment) error {
	path := filepath.Join(c.s.TargetPath, a.Filename)
	c.log.Info("Transferring attachment to the target folder",
		zap.String("filename", a.Filename),
		zap.String("path", path),
		zap.Int("size", len(a.Content)))

	if err := afero.WriteFile(c.p.fs, path, a.Content, 0o644); err != nil {
		return fmt.Errorf("Failed to write %q: %w", path, err)
	}

	if c.recorder == nil {
		return nil
	}
	sum := sha256.Sum256(a.Content)
	return c.recorder.Record(ctx, journal.Delivery{
		CycleID:  c.id,
		Sender:   from,
		Filename: a.Filename,
		Path:     path,
		Size:     int64(len(a.Content)),
		SHA256:   hex.EncodeToString(sum[:]),
		SavedAt:  c.p.now(),
	})
}
