// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package pop3 implements the client side of RFC 1939.
package pop3

import (
	"fmt"
	"io"
)

// Message is an entry in the scan listing of a maildrop. Message numbers are
// 1-based and only valid for the lifetime of the session that listed them.
type Message interface {
	ID() int
	Size() int
	Deleted() bool
}

// Mailbox is an authenticated session in the TRANSACTION state.
type Mailbox interface {
	// Stat returns the number of messages and the total size of the maildrop,
	// not counting messages marked as deleted.
	Stat() (count, size int, err error)
	ListMessages() ([]Message, error)
	// GetMessage returns the listing for message number `id`, or nil if the
	// server does not know the message.
	GetMessage(id int) Message
	// Retrieve returns the dot-decoded message body. It must be fully read
	// before issuing another command.
	Retrieve(Message) (io.ReadCloser, error)
	Delete(Message) error
	// Close sends QUIT, which makes the server commit the deletions.
	Close() error
	Reset()
}

// PostOffice is a connection in the AUTHORIZATION state.
type PostOffice interface {
	// Name is the server greeting.
	Name() string
	OpenMailbox(user, pass string) (Mailbox, error)
	// Close sends QUIT and closes the connection.
	Close() error
}

// ServerError is a negative status indicator (-ERR) sent by the server.
type ServerError struct {
	Reply string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Server error: %s", e.Reply)
}
