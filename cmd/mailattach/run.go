// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"src.bluestatic.org/mailattach/internal/poll"
	"src.bluestatic.org/mailattach/internal/secrets"
)

const clearScreen = "\033[H\033[2J"

func (o *options) newPoller() (*poll.Poller, error) {
	book := o.logbook()
	iv, err := o.loadInterval(book)
	if err != nil {
		return nil, err
	}

	c := poll.Config{
		Interval: iv,
		Settings: secrets.NewProvider(o.fs, o.secretsPath, &lazyKeyring{}),
		Logs:     book,
		Fs:       o.fs,
	}
	if o.interactive {
		c.Acknowledge = o.acknowledge
		c.ClearScreen = func() { fmt.Fprint(o.stdout, clearScreen) }
	}
	return poll.New(c, o.consoleLogger()), nil
}

func (o *options) run(ctx context.Context) error {
	p, err := o.newPoller()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return p.Run(ctx)
}

func (o *options) once(ctx context.Context) error {
	p, err := o.newPoller()
	if err != nil {
		return err
	}

	out := p.RunOnce(ctx)
	if out.Kind == poll.Fatal {
		return &poll.FatalError{Reason: out.Reason, Err: out.Err}
	}
	return nil
}

func (o *options) acknowledge() {
	fmt.Fprint(o.stdout, "Press Enter to exit the application...")
	bufio.NewReader(o.stdin).ReadString('\n')
}

// lazyKeyring opens the OS keyring on first use, so that settings files that
// carry the password never touch it.
type lazyKeyring struct {
	once sync.Once
	ring *secrets.Keyring
	err  error
}

func (k *lazyKeyring) Password(account string) (string, error) {
	k.once.Do(func() {
		k.ring, k.err = secrets.OpenKeyring(keyringDir())
	})
	if k.err != nil {
		return "", k.err
	}
	return k.ring.Password(account)
}

func keyringDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "keyring"
	}
	return filepath.Join(dir, "mailattach", "keyring")
}
