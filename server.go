// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package transfer

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	Directory string
	IP        string
	Port      int
	Logger    io.Writer
	LogLevel  LogLevel
	Clock     clockwork.Clock // audit timestamps; nil means real time
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Directory: "data",
		IP:        "127.0.0.1",
		Port:      12345,
		LogLevel:  LevelInfo,
	}
}

// Server accepts transfer clients and receives one file per connection into
// its working directory. Each connection runs in its own goroutine; the
// cross-connection invariants are held by the in-flight name registry and
// the audit log, which serialize their own writers.
type Server struct {
	config   ServerConfig
	listener net.Listener
	audit    *AuditLog
	registry *InFlightRegistry
	metrics  *ServerMetrics
	logger   *log.Logger

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup

	closing      int32 // atomic flag: shutdown has begun
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer prepares the working directory and the audit log. The directory
// is created when absent; received files and log_file.csv live inside it.
func NewServer(config ServerConfig) (*Server, error) {
	defaults := DefaultServerConfig()
	if config.Directory == "" {
		config.Directory = defaults.Directory
	}
	if config.IP == "" {
		config.IP = defaults.IP
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}

	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("transfer: creating working directory %s: %w", config.Directory, err)
	}
	audit, err := OpenAuditLog(filepath.Join(config.Directory, AuditLogFileName), config.Clock)
	if err != nil {
		return nil, err
	}

	var srvLogger *log.Logger
	if config.Logger != nil {
		srvLogger = log.New(NewSimpleLogger(config.Logger, config.LogLevel, "server"), "", 0)
	}

	return &Server{
		config:   config,
		audit:    audit,
		registry: NewInFlightRegistry(),
		metrics:  &ServerMetrics{},
		logger:   srvLogger,
		conns:    make(map[*Connection]struct{}),
	}, nil
}

func (s *Server) log(format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// Listen binds the listening socket. Binding is split from Serve so callers
// can learn the bound address first (port 0 in tests).
func (s *Server) Listen() error {
	address := net.JoinHostPort(s.config.IP, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("transfer: listening on %s: %w", address, err)
	}
	s.listener = listener
	s.log("server listening on %s, working directory %s", listener.Addr(), s.config.Directory)
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown closes the listener. Each accepted
// client is handed to its own connection goroutine.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("transfer: server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("transfer: accept failed: %w", err)
		}
		if s.isClosing() {
			conn.Close()
			return nil
		}

		c := newConnection(s, conn)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.metrics.addConnection()
		s.log("connection from %s", c.peer)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
		}()
	}
}

// ListenAndServe binds the socket and serves until shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// forgetConnection drops a finished connection from the live set.
func (s *Server) forgetConnection(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) isClosing() bool {
	return atomic.LoadInt32(&s.closing) == 1
}

// Metrics returns a snapshot of the server counters.
func (s *Server) Metrics() ServerMetrics {
	return s.metrics.Snapshot()
}

// InFlight returns how many file names are currently being received.
func (s *Server) InFlight() int {
	return s.registry.Len()
}

// Shutdown stops accepting, force-closes every live connection, waits for
// their terminal cleanup (sinks closed, partial files deleted, audit rows
// written), and closes the audit log. It is idempotent: later calls return
// the first call's result without doing anything.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		atomic.StoreInt32(&s.closing, 1)
		s.log("closing server socket")

		var result *multierror.Error
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}

		s.mu.Lock()
		live := make([]*Connection, 0, len(s.conns))
		for c := range s.conns {
			live = append(live, c)
		}
		s.mu.Unlock()
		for _, c := range live {
			if err := c.abort(); err != nil {
				result = multierror.Append(result, err)
			}
		}

		s.wg.Wait()
		if err := s.audit.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		s.shutdownErr = result.ErrorOrNil()
	})
	return s.shutdownErr
}
