// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package server implements the line-based TCP query/command protocol
// (C6) described in spec.md §4.6.
package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Request is one parsed client command, submitted to the engine's
// single event loop for handling. The engine is the sole owner of
// zone state (spec.md §5), so the server never answers a query
// itself; it only parses the line and waits for Reply.
type Request struct {
	Verb string
	Arg  string

	Reply chan Response
}

// Response is the engine's answer to a Request. Lines are written
// CRLF-terminated, verbatim, in order; Close ends the connection
// after they are flushed. `quit` never reaches the engine: the
// connection handler closes the connection itself without a Response.
type Response struct {
	Lines []string
	Close bool
}

// Server accepts TCP clients and turns each command line into a
// Request on its single Requests() channel, mirroring the "coordinator
// task feeding a single command channel" pattern spec.md §9 allows as
// an alternative to a literal single-threaded loop.
type Server struct {
	addr string

	mu       sync.Mutex
	listener net.Listener

	requests chan Request
	warn     *warnLimiter
}

// New creates a Server bound to addr; it does not start listening
// until Listen or Serve is called.
func New(addr string) *Server {
	return &Server{
		addr:     addr,
		requests: make(chan Request),
		warn:     newWarnLimiter(),
	}
}

// Requests returns the channel every parsed client command is sent
// on. The engine is the sole reader.
func (s *Server) Requests() <-chan Request {
	return s.requests
}

// Listen binds the listen socket without accepting connections yet.
// Callers that need a bind failure to be fatal at startup (per
// spec.md §7) should call Listen synchronously before handing Serve
// off to a goroutine; Serve calls it itself if it hasn't been called
// already, for callers (and tests) that don't care about the
// distinction.
func (s *Server) Listen() error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections on the bound listener until ctx is
// cancelled or a fatal accept error occurs.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Addr returns the listener's bound address, useful for tests that
// bind to port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		verb, arg := parseCommand(line)
		if verb == "" {
			continue
		}

		if verb == "quit" {
			return
		}

		req := Request{Verb: verb, Arg: arg, Reply: make(chan Response, 1)}

		select {
		case s.requests <- req:
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			s.warn.Warnf("query server: engine busy, blocking on command %q from %s", verb, conn.RemoteAddr())
			select {
			case s.requests <- req:
			case <-ctx.Done():
				return
			}
		}

		var resp Response
		select {
		case resp = <-req.Reply:
		case <-ctx.Done():
			return
		}

		for _, l := range resp.Lines {
			if _, err := conn.Write([]byte(l + "\r\n")); err != nil {
				return
			}
		}
		if resp.Close {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		glog.V(1).Infof("query server: connection from %s: %v", conn.RemoteAddr(), err)
	}
}

// parseCommand splits a command line into its verb (case-folded) and
// a single trailing argument, per spec.md §4.6's "case-insensitive
// verb, optional whitespace" grammar.
func parseCommand(line string) (verb, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	fields := strings.SplitN(line, " ", 2)
	verb = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return verb, arg
}
