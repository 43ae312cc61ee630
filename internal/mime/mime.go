// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package mime decodes raw RFC 5322 messages into a sender and named parts.
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Attachment is a named part of a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a decoded mail message.
type Message struct {
	// From is the address of the first From mailbox, or "" if the header is
	// missing or malformed.
	From        string
	Subject     string
	Attachments []Attachment
}

// Decode parses `raw` and collects, in part order, every part that carries a
// filename, whether it is disposed as attachment or inline.
func Decode(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("Failed to parse message: %w", err)
	}
	defer mr.Close()

	msg := &Message{}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = addrs[0].Address
	}
	msg.Subject, _ = mr.Header.Subject()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (part == nil || !message.IsUnknownCharset(err)) {
			return nil, fmt.Errorf("Failed to read message part: %w", err)
		}

		var a Attachment
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			a.Filename, _ = h.Filename()
			a.ContentType, _, _ = h.ContentType()
		case *mail.InlineHeader:
			var params map[string]string
			a.ContentType, params, _ = h.ContentType()
			a.Filename = params["name"]
			if _, dparams, err := h.ContentDisposition(); err == nil && dparams["filename"] != "" {
				a.Filename = dparams["filename"]
			}
		}
		if a.Filename == "" {
			continue
		}

		a.Content, err = io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("Failed to read attachment %q: %w", a.Filename, err)
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return msg, nil
}
