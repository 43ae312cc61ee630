// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package poll

import (
	"errors"
	"fmt"

	"src.bluestatic.org/mailattach/internal/mailbox"
)

type Kind int

const (
	Continue Kind = iota
	Fatal
)

// FatalReason tells why a cycle stopped the poller.
type FatalReason int

const (
	ReasonNone FatalReason = iota
	ReasonServerUnreachable
	ReasonAuthenticationFailed
	ReasonRuntime
)

func (r FatalReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonServerUnreachable:
		return "server-unreachable"
	case ReasonAuthenticationFailed:
		return "authentication-failed"
	case ReasonRuntime:
		return "runtime"
	}
	return fmt.Sprintf("FatalReason(%d)", int(r))
}

// Outcome is the result of one cycle. Every failure is fatal: there is no
// outcome that retries.
type Outcome struct {
	Kind   Kind
	Reason FatalReason
	Err    error
}

func continueOutcome() Outcome {
	return Outcome{Kind: Continue}
}

func fatalOutcome(err error) Outcome {
	return Outcome{Kind: Fatal, Reason: classify(err), Err: err}
}

func classify(err error) FatalReason {
	switch {
	case errors.Is(err, mailbox.ErrServerUnreachable):
		return ReasonServerUnreachable
	case errors.Is(err, mailbox.ErrAuthentication):
		return ReasonAuthenticationFailed
	}
	return ReasonRuntime
}

// FatalError is returned by Poller.Run after a fatal cycle.
type FatalError struct {
	Reason FatalReason
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
