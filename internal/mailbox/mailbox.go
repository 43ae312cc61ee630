// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package mailbox is the mail server seen by a poll cycle.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"src.bluestatic.org/mailattach/pkg/pop3"
)

var (
	ErrServerUnreachable = errors.New("Connection to the e-mail server is not possible")
	ErrAuthentication    = errors.New("Invalid user and/or password when authenticating on the server")

	errNotConnected = errors.New("Mailbox is not connected")
)

// Client is a single session with the server. It is *not* goroutine safe.
type Client interface {
	Connect(ctx context.Context) error
	Authenticate(user, pass string) error
	// Count returns the number of messages at the time of the call.
	Count() (int, error)
	// Fetch returns the raw message numbered `index`, 1-based.
	Fetch(index int) ([]byte, error)
	// DeleteAll marks every message in the mailbox for deletion. The server
	// removes them when the session is closed.
	DeleteAll() error
	Close() error
}

// Options describe how to reach the server.
type Options struct {
	Addr    string
	UseTLS  bool
	Timeout time.Duration
}

type pop3Client struct {
	o   Options
	log *zap.Logger

	po pop3.PostOffice
	mb pop3.Mailbox
}

// NewPOP3 returns a Client speaking POP3 to `o.Addr`.
func NewPOP3(o Options, log *zap.Logger) Client {
	return &pop3Client{
		o:   o,
		log: log.With(zap.String("server", o.Addr)),
	}
}

func (c *pop3Client) Connect(ctx context.Context) error {
	d := &net.Dialer{Timeout: c.o.Timeout}
	var nc net.Conn
	var err error
	if c.o.UseTLS {
		host, _, _ := net.SplitHostPort(c.o.Addr)
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: host}}
		nc, err = td.DialContext(ctx, "tcp", c.o.Addr)
	} else {
		nc, err = d.DialContext(ctx, "tcp", c.o.Addr)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerUnreachable, err)
	}

	po, err := pop3.Connect(nc, c.log, pop3.WithTimeout(c.o.Timeout))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerUnreachable, err)
	}
	c.po = po
	return nil
}

func (c *pop3Client) Authenticate(user, pass string) error {
	if c.po == nil {
		return errNotConnected
	}
	mb, err := c.po.OpenMailbox(user, pass)
	if err != nil {
		var serr *pop3.ServerError
		if errors.As(err, &serr) {
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		return err
	}
	c.mb = mb
	return nil
}

func (c *pop3Client) Count() (int, error) {
	if c.mb == nil {
		return 0, errNotConnected
	}
	count, _, err := c.mb.Stat()
	return count, err
}

func (c *pop3Client) Fetch(index int) ([]byte, error) {
	if c.mb == nil {
		return nil, errNotConnected
	}
	msg := c.mb.GetMessage(index)
	if msg == nil {
		return nil, fmt.Errorf("No message %d on the server", index)
	}
	rc, err := c.mb.Retrieve(msg)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve message %d: %w", index, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Failed to read message %d: %w", index, err)
	}
	return body, nil
}

func (c *pop3Client) DeleteAll() error {
	if c.mb == nil {
		return errNotConnected
	}
	msgs, err := c.mb.ListMessages()
	if err != nil {
		return fmt.Errorf("Failed to list messages: %w", err)
	}
	for _, msg := range msgs {
		if err := c.mb.Delete(msg); err != nil {
			return fmt.Errorf("Failed to delete message %d: %w", msg.ID(), err)
		}
	}
	return nil
}

func (c *pop3Client) Close() error {
	var err error
	switch {
	case c.mb != nil:
		err = c.mb.Close()
	case c.po != nil:
		err = c.po.Close()
	default:
		return errNotConnected
	}
	c.po = nil
	c.mb = nil
	return err
}
