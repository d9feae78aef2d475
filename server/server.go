/*
 * This file is part of Chihaya.
 *
 * Chihaya is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Chihaya is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Chihaya.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package server is the connection driver (C6): it owns the listening
// socket and serves exactly one connection to completion before accepting
// the next. There is no per-connection goroutine, so announces never race
// each other.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"mini-tracker/config"
	"mini-tracker/log"
	"mini-tracker/query"
	"mini-tracker/registry"
	"mini-tracker/tracker"
	"mini-tracker/util"
)

// Metrics is the subset of the metrics collector the driver reports to.
// Kept as an interface so the server package doesn't need to import
// prometheus directly.
type Metrics interface {
	ObserveRequest()
}

type Server struct {
	listener net.Listener
	registry *registry.Registry
	metrics  Metrics

	bufferPool *util.BufferPool
	closing    atomic.Bool
}

func New(reg *registry.Registry, m Metrics) *Server {
	return &Server{
		registry:   reg,
		metrics:    m,
		bufferPool: util.NewBufferPool(512),
	}
}

// Start binds the listening socket. The standard library's net.Listen
// does not expose the listen(2) backlog parameter, so the OS default
// applies instead of the literal backlog of 50 the original tracker
// requested; see DESIGN.md.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return err
	}

	s.listener = listener

	return nil
}

// Serve runs the accept loop until Stop is called or a fatal accept error
// occurs. It never returns while the server is healthy.
func (s *Server) Serve() error {
	log.Info.Printf("ready and accepting new connections on %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}

		s.handle(conn)
	}
}

func (s *Server) Stop() error {
	s.closing.Store(true)
	return s.listener.Close()
}

// handle drives one connection end-to-end: read request, sweep the
// registry, dispatch, reply, close. Any panic in the dispatch path is
// recovered so a single bad connection can never take down the accept
// loop.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("connection panic recovered: %v", r)
			log.WriteStack()
		}
	}()

	deadline := time.Now().Add(config.RequestTimeout)
	_ = conn.SetDeadline(deadline)

	target, outcome := readRequest(conn)

	switch outcome {
	case outcomeSilentFail:
		return
	case outcomeBadVerb:
		writeNotFound(conn)
		return
	}

	s.registry.Sweep()

	p, err := query.Parse(target)
	switch {
	case errors.Is(err, query.ErrUnknownEndpoint):
		writeNotFound(conn)
		return
	case err != nil:
		// ParseFailure: zero parameters or a bare parameter. Close
		// without a reply.
		return
	}

	buf := s.bufferPool.Take()
	defer s.bufferPool.Give(buf)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	switch p.Endpoint {
	case query.EndpointAnnounce:
		success := tracker.HandleAnnounce(ctx, s.registry, sourceIP(conn), p, buf)
		if success {
			writeSuccess(conn, buf)
			log.Verbose.Println(log.Color(log.ColorGreen, "announce ok"), sourceIP(conn))
		} else {
			// AnnounceInvalid: bare bencoded body, no HTTP headers at all.
			_, _ = conn.Write(buf.Bytes())
			log.Verbose.Println(log.Color(log.ColorRed, "announce invalid"), sourceIP(conn))
		}
	case query.EndpointScrape:
		writeNotFound(conn)
	}

	if s.metrics != nil {
		s.metrics.ObserveRequest()
	}
}

func sourceIP(conn net.Conn) net.IP {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP
	}
	return nil
}

const (
	successHeaders = "HTTP/1.1 200 OK\r\nServer: mini-tracker\r\nConnection: close\r\nCache-Control: no-cache\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n"
	notFoundHeaders = "HTTP/1.1 404 Not Found\r\nServer: mini-tracker\r\nConnection: close\r\nCache-Control: no-cache\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n"
	notFoundBody    = "<html><head><title>404 Not Found</title></head><body><h1>404 Not Found</h1></body></html>"
)

func writeSuccess(conn net.Conn, buf *bytes.Buffer) {
	_, _ = fmt.Fprintf(conn, successHeaders, buf.Len())
	_, _ = conn.Write(buf.Bytes())
}

func writeNotFound(conn net.Conn) {
	_, _ = fmt.Fprintf(conn, notFoundHeaders, len(notFoundBody))
	_, _ = conn.Write([]byte(notFoundBody))
}
