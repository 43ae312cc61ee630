// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package pop3

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errSessionOpen = errors.New("Mailbox is already open")

// Option configures a client connection.
type Option func(*clientConn)

// WithTimeout bounds every command round trip, including the greeting and a
// full RETR transfer.
func WithTimeout(d time.Duration) Option {
	return func(cc *clientConn) { cc.timeout = d }
}

type clientConn struct {
	nc      net.Conn
	tp      *textproto.Conn
	log     *zap.Logger
	timeout time.Duration

	greeting string
	authed   bool
	marked   map[int]bool
}

// Connect reads the server greeting on `nc` and returns the `PostOffice` for
// opening the maildrop. The connection is closed if the greeting is not
// positive.
func Connect(nc net.Conn, log *zap.Logger, opts ...Option) (PostOffice, error) {
	cc := &clientConn{
		nc:     nc,
		tp:     textproto.NewConn(nc),
		log:    log.With(zap.Stringer("address", nc.RemoteAddr())),
		marked: make(map[int]bool),
	}
	for _, o := range opts {
		o(cc)
	}

	cc.arm()
	greeting, err := cc.status()
	if err != nil {
		cc.tp.Close()
		return nil, fmt.Errorf("Failed to open connection: %w", err)
	}
	cc.greeting = greeting
	cc.log.Debug("Server greeting", zap.String("greeting", greeting))
	return cc, nil
}

// arm sets the deadline of the next round trip.
func (cc *clientConn) arm() {
	if cc.timeout > 0 {
		cc.nc.SetDeadline(time.Now().Add(cc.timeout))
	}
}

func (cc *clientConn) Name() string {
	return cc.greeting
}

func (cc *clientConn) OpenMailbox(user, pass string) (Mailbox, error) {
	if cc.authed {
		return nil, errSessionOpen
	}
	if _, err := cc.command("USER %s", user); err != nil {
		return nil, err
	}

	// Not through command(), which logs the line.
	cc.arm()
	if err := cc.tp.PrintfLine("PASS %s", pass); err != nil {
		return nil, err
	}
	if _, err := cc.status(); err != nil {
		cc.log.Error("Authentication failed", zap.String("user", user), zap.Error(err))
		return nil, err
	}

	cc.log.Info("Opened mailbox", zap.String("user", user))
	cc.authed = true
	return cc, nil
}

// command sends one line and returns the text after the positive status
// indicator.
func (cc *clientConn) command(format string, args ...any) (string, error) {
	line := fmt.Sprintf(format, args...)
	log := cc.log.With(zap.String("command", line))
	log.Debug("Sending command")

	cc.arm()
	if err := cc.tp.PrintfLine("%s", line); err != nil {
		log.Error("Failed to send command", zap.Error(err))
		return "", err
	}
	text, err := cc.status()
	if err != nil {
		log.Error("Command failed", zap.Error(err))
		return "", err
	}
	log.Debug("Command succeeded", zap.String("reply", text))
	return text, nil
}

// status reads a status line. A negative indicator becomes a *ServerError.
func (cc *clientConn) status() (string, error) {
	line, err := cc.tp.ReadLine()
	if err != nil {
		return "", err
	}
	indicator, text, _ := strings.Cut(line, " ")
	switch indicator {
	case "+OK":
		return text, nil
	case "-ERR":
		return "", &ServerError{Reply: text}
	}
	return "", fmt.Errorf("Unexpected server reply: %q", line)
}

// twoInts parses the `a b` prefix shared by STAT and scan listings. Anything
// after the second number is ignored.
func twoInts(s string) (int, int, error) {
	f := strings.Fields(s)
	if len(f) < 2 {
		return 0, 0, fmt.Errorf("Expected two numbers in %q", s)
	}
	a, err := strconv.Atoi(f[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(f[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (cc *clientConn) Stat() (int, int, error) {
	text, err := cc.command("STAT")
	if err != nil {
		return 0, 0, err
	}
	count, size, err := twoInts(text)
	if err != nil {
		cc.log.Error("Bad STAT reply", zap.String("reply", text), zap.Error(err))
		return 0, 0, fmt.Errorf("Bad server reply to STAT: %w", err)
	}
	return count, size, nil
}

func (cc *clientConn) ListMessages() ([]Message, error) {
	if _, err := cc.command("LIST"); err != nil {
		return nil, err
	}
	lines, err := cc.tp.ReadDotLines()
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(lines))
	for i, line := range lines {
		msg, err := cc.scanListing(line)
		if err != nil {
			cc.log.Error("Bad scan listing", zap.Int("index", i), zap.String("line", line), zap.Error(err))
			return nil, fmt.Errorf("Bad server reply to LIST: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (cc *clientConn) GetMessage(id int) Message {
	// With an argument, the scan listing is on the status line.
	text, err := cc.command("LIST %d", id)
	if err != nil {
		return nil
	}
	msg, err := cc.scanListing(text)
	if err != nil {
		cc.log.Error("Bad scan listing", zap.String("reply", text), zap.Error(err))
		return nil
	}
	return msg
}

func (cc *clientConn) scanListing(line string) (*listing, error) {
	id, size, err := twoInts(line)
	if err != nil {
		return nil, err
	}
	return &listing{cc: cc, id: id, size: size}, nil
}

func (cc *clientConn) Retrieve(msg Message) (io.ReadCloser, error) {
	if _, err := cc.command("RETR %d", msg.ID()); err != nil {
		return nil, err
	}
	return io.NopCloser(cc.tp.DotReader()), nil
}

func (cc *clientConn) Delete(msg Message) error {
	if _, err := cc.command("DELE %d", msg.ID()); err != nil {
		return err
	}
	cc.marked[msg.ID()] = true
	return nil
}

func (cc *clientConn) Reset() {
	if _, err := cc.command("RSET"); err == nil {
		clear(cc.marked)
	}
}

func (cc *clientConn) Close() error {
	_, err := cc.command("QUIT")
	if cerr := cc.tp.Close(); err == nil {
		err = cerr
	}
	return err
}

type listing struct {
	cc   *clientConn
	id   int
	size int
}

func (m *listing) ID() int       { return m.id }
func (m *listing) Size() int     { return m.size }
func (m *listing) Deleted() bool { return m.cc.marked[m.id] }
