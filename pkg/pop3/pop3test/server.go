// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package pop3test provides an in-memory POP3 server for tests.
package pop3test

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	errStateAuth  = "not in AUTHORIZATION"
	errStateTxn   = "not in TRANSACTION"
	errSyntax     = "syntax error"
	errDeletedMsg = "no such message - deleted"
)

// Server is a single-maildrop POP3 server. Deletions are committed to the
// maildrop when a session sends QUIT.
type Server struct {
	User, Pass string

	log *zap.Logger
	l   net.Listener

	mu       sync.Mutex
	msgs     []string
	commands []string
}

// NewServer creates a server for the maildrop of `user`.
func NewServer(user, pass string, log *zap.Logger) *Server {
	return &Server{
		User: user,
		Pass: pass,
		log:  log,
	}
}

// AddMessage appends a raw message to the maildrop.
func (s *Server) AddMessage(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, body)
}

// Messages returns the committed contents of the maildrop.
func (s *Server) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// Commands returns the command verbs received so far, across sessions.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Start listens on a random localhost port and serves sessions until Close.
func (s *Server) Start() (net.Addr, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, err
	}
	s.l = l
	go func() {
		for {
			nc, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(nc)
		}
	}()
	return l.Addr(), nil
}

func (s *Server) Close() error {
	if s.l == nil {
		return nil
	}
	return s.l.Close()
}

type session struct {
	s   *Server
	tp  *textproto.Conn
	log *zap.Logger

	user     string
	loggedIn bool
	// Snapshot of the maildrop taken at PASS.
	msgs    []string
	deleted map[int]bool
}

func (s *Server) serve(nc net.Conn) {
	ss := &session{
		s:       s,
		tp:      textproto.NewConn(nc),
		log:     s.log.With(zap.Stringer("client", nc.RemoteAddr())),
		deleted: make(map[int]bool),
	}
	defer ss.tp.Close()

	ss.ok("POP3 test server ready")
	for {
		line, err := ss.tp.ReadLine()
		if err != nil {
			ss.log.Debug("ReadLine()", zap.Error(err))
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			ss.err("invalid command")
			continue
		}
		cmd := strings.ToUpper(fields[0])
		args := fields[1:]

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch cmd {
		case "QUIT":
			ss.doQUIT()
			return
		case "USER":
			ss.doUSER(args)
		case "PASS":
			ss.doPASS(args)
		case "STAT":
			ss.doSTAT()
		case "LIST":
			ss.doLIST(args)
		case "RETR":
			ss.doRETR(args)
		case "DELE":
			ss.doDELE(args)
		case "RSET":
			if ss.inTxn() {
				ss.deleted = make(map[int]bool)
				ss.ok("")
			}
		case "NOOP":
			ss.ok("")
		default:
			ss.err("unknown command")
		}
	}
}

func (ss *session) ok(msg string) {
	if len(msg) > 0 {
		msg = " " + msg
	}
	ss.tp.PrintfLine("+OK%s", msg)
}

func (ss *session) err(msg string) {
	ss.log.Debug("error", zap.String("message", msg))
	ss.tp.PrintfLine("-ERR %s", msg)
}

func (ss *session) inTxn() bool {
	if !ss.loggedIn {
		ss.err(errStateTxn)
	}
	return ss.loggedIn
}

func (ss *session) doQUIT() {
	if ss.loggedIn {
		ss.s.mu.Lock()
		var kept []string
		for i, body := range ss.s.msgs {
			if !ss.deleted[i+1] {
				kept = append(kept, body)
			}
		}
		ss.s.msgs = kept
		ss.s.mu.Unlock()
	}
	ss.ok("goodbye")
}

func (ss *session) doUSER(args []string) {
	if ss.loggedIn {
		ss.err(errStateAuth)
		return
	}
	if len(args) != 1 {
		ss.err(errSyntax)
		return
	}
	ss.user = args[0]
	ss.ok("")
}

func (ss *session) doPASS(args []string) {
	if ss.loggedIn {
		ss.err(errStateAuth)
		return
	}
	if ss.user == "" {
		ss.err("no USER")
		return
	}
	if ss.user != ss.s.User || strings.Join(args, " ") != ss.s.Pass {
		ss.user = ""
		ss.err("invalid username or password")
		return
	}
	ss.s.mu.Lock()
	ss.msgs = append([]string(nil), ss.s.msgs...)
	ss.s.mu.Unlock()
	ss.loggedIn = true
	ss.ok("maildrop locked and ready")
}

func (ss *session) doSTAT() {
	if !ss.inTxn() {
		return
	}
	num, size := 0, 0
	for i, body := range ss.msgs {
		if ss.deleted[i+1] {
			continue
		}
		num++
		size += len(body)
	}
	ss.ok(fmt.Sprintf("%d %d", num, size))
}

func (ss *session) doLIST(args []string) {
	if !ss.inTxn() {
		return
	}
	if len(args) == 1 {
		id, body, ok := ss.requestedMessage(args)
		if !ok {
			return
		}
		ss.ok(fmt.Sprintf("%d %d", id, len(body)))
		return
	}
	ss.ok("scan listing")
	for i, body := range ss.msgs {
		if ss.deleted[i+1] {
			continue
		}
		ss.tp.PrintfLine("%d %d", i+1, len(body))
	}
	ss.tp.PrintfLine(".")
}

func (ss *session) doRETR(args []string) {
	if !ss.inTxn() {
		return
	}
	_, body, ok := ss.requestedMessage(args)
	if !ok {
		return
	}
	ss.ok(fmt.Sprintf("%d octets", len(body)))
	w := ss.tp.DotWriter()
	io.WriteString(w, body)
	w.Close()
}

func (ss *session) doDELE(args []string) {
	if !ss.inTxn() {
		return
	}
	id, _, ok := ss.requestedMessage(args)
	if !ok {
		return
	}
	ss.deleted[id] = true
	ss.ok(fmt.Sprintf("message %d deleted", id))
}

func (ss *session) requestedMessage(args []string) (int, string, bool) {
	var id int
	if len(args) != 1 {
		ss.err(errSyntax)
		return 0, "", false
	}
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		ss.err(errSyntax)
		return 0, "", false
	}
	if id < 1 || id > len(ss.msgs) {
		ss.err("no such message")
		return 0, "", false
	}
	if ss.deleted[id] {
		ss.err(errDeletedMsg)
		return 0, "", false
	}
	return id, ss.msgs[id-1], true
}
