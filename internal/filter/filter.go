// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package filter selects the attachments worth keeping from a message.
package filter

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"src.bluestatic.org/mailattach/internal/mime"
)

// MaxPrefixes is the number of filename prefixes a Rule accepts.
const MaxPrefixes = 2

// Rule matches attachments sent by `Sender` whose filename starts with one of
// `Prefixes`. An empty prefix matches every filename. Only the first
// MaxPrefixes entries are used.
type Rule struct {
	Sender   string
	Prefixes []string
}

// Filter applies a Rule to decoded messages.
type Filter struct {
	sender   string
	prefixes []string
	log      *zap.Logger
}

func New(rule Rule, log *zap.Logger) *Filter {
	n := min(len(rule.Prefixes), MaxPrefixes)
	return &Filter{
		sender:   rule.Sender,
		prefixes: slices.Clone(rule.Prefixes[:n]),
		log:      log,
	}
}

// AcceptsSender reports whether `from`, trimmed, is exactly the configured
// sender. The comparison is case-sensitive.
func (f *Filter) AcceptsSender(from string) bool {
	return strings.TrimSpace(from) == f.sender
}

// AcceptsFilename reports whether `name` starts with any configured prefix.
func (f *Filter) AcceptsFilename(name string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Select returns the attachments of `msg` to persist, in message order.
func (f *Filter) Select(msg *mime.Message) []mime.Attachment {
	if !f.AcceptsSender(msg.From) {
		f.log.Debug("Skipping message from other sender", zap.String("from", msg.From))
		return nil
	}
	var matches []mime.Attachment
	for _, a := range msg.Attachments {
		if f.AcceptsFilename(a.Filename) {
			matches = append(matches, a)
		} else {
			f.log.Debug("Skipping attachment", zap.String("filename", a.Filename))
		}
	}
	return matches
}
