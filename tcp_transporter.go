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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TCPTransporter ships frames to the server over a net.Conn and collects the
// one-byte response the server answers each frame with.
type TCPTransporter struct {
	conn     net.Conn
	packager *FramePackager
	logger   *log.Logger
	mu       sync.Mutex // serializes frame/response round trips
	closed   int32      // atomic flag for closed state
}

// TCPTransporterConfig holds configuration for establishing a connection.
type TCPTransporterConfig struct {
	ConnectTimeout  time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
	Logger          io.Writer
	LogLevel        LogLevel
}

// DefaultTCPTransporterConfig returns the default connect policy: three
// attempts, 100 ms apart, 3 s timeout each, Nagle disabled.
func DefaultTCPTransporterConfig() TCPTransporterConfig {
	return TCPTransporterConfig{
		ConnectTimeout:  3 * time.Second,
		ConnectAttempts: 3,
		RetryDelay:      100 * time.Millisecond,
	}
}

// ValidateAddress checks that ip is a dotted-quad IPv4 address and that port
// is in [1, 65535].
func ValidateAddress(ip string, port int) error {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return fmt.Errorf("%w: invalid IP address %q", ErrConnectionFailed, ip)
	}
	for _, part := range parts {
		octet, err := strconv.Atoi(part)
		if err != nil || part == "" || octet < 0 || octet > 255 {
			return fmt.Errorf("%w: invalid IP address %q", ErrConnectionFailed, ip)
		}
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrConnectionFailed, port)
	}
	return nil
}

// ConnectTCP validates the address and dials the server with bounded retry.
// Every failure mode collapses into ErrConnectionFailed, matching the
// client-side error taxonomy.
func ConnectTCP(ip string, port int, config TCPTransporterConfig) (*TCPTransporter, error) {
	if err := ValidateAddress(ip, port); err != nil {
		return nil, err
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultTCPTransporterConfig().ConnectTimeout
	}
	if config.ConnectAttempts == 0 {
		config.ConnectAttempts = DefaultTCPTransporterConfig().ConnectAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultTCPTransporterConfig().RetryDelay
	}

	var tcpLogger *log.Logger
	if config.Logger != nil {
		tcpLogger = log.New(NewSimpleLogger(config.Logger, config.LogLevel, "tcp"), "", 0)
	}

	address := net.JoinHostPort(ip, strconv.Itoa(port))
	var conn net.Conn
	var err error
	for attempt := 0; attempt < config.ConnectAttempts; attempt++ {
		if attempt > 0 && config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
		conn, err = net.DialTimeout("tcp", address, config.ConnectTimeout)
		if err == nil {
			break
		}
		if tcpLogger != nil {
			tcpLogger.Printf("[WARNING] connect attempt %d/%d to %s failed: %v", attempt+1, config.ConnectAttempts, address, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %d attempts to %s exhausted: %v", ErrConnectionFailed, config.ConnectAttempts, address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil && tcpLogger != nil {
			tcpLogger.Printf("failed to disable Nagle on %s: %v", address, err)
		}
	}

	return &TCPTransporter{
		conn:     conn,
		packager: NewFramePackager(),
		logger:   tcpLogger,
	}, nil
}

// NewTCPTransporter wraps an already-established connection. Used by tests
// and by callers that manage dialing themselves.
func NewTCPTransporter(conn net.Conn, logger io.Writer) *TCPTransporter {
	var tcpLogger *log.Logger
	if logger != nil {
		tcpLogger = log.New(NewSimpleLogger(logger, LevelDebug, "tcp"), "", 0)
	}
	return &TCPTransporter{
		conn:     conn,
		packager: NewFramePackager(),
		logger:   tcpLogger,
	}
}

// log writes a log message if a logger is configured.
func (t *TCPTransporter) log(format string, v ...any) {
	if t.logger != nil {
		t.logger.Printf(format, v...)
	}
}

// IsClosed returns whether the transporter is closed.
func (t *TCPTransporter) IsClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

// SendFrame writes one complete frame and reads the server's one-byte
// response. It returns nil on SUCCESS, ErrFileAlreadyTransferring on 0x11,
// ErrTransferFailed on 0xFF, and ErrConnectionFailed on a socket error, a
// short response read, or an unrecognized response byte.
func (t *TCPTransporter) SendFrame(msgType MessageType, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.IsClosed() {
		return fmt.Errorf("%w: transporter is closed", ErrConnectionFailed)
	}

	frame, err := t.packager.Pack(msgType, payload)
	if err != nil {
		return err
	}

	t.log("[DEBUG] sending %s frame, payload %d bytes", msgType, len(payload))

	written := 0
	for written < len(frame) {
		n, err := t.conn.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("%w: write failed after %d bytes: %v", ErrConnectionFailed, written, err)
		}
		written += n
	}

	var response [1]byte
	if _, err := io.ReadFull(t.conn, response[:]); err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrConnectionFailed, err)
	}

	switch Response(response[0]) {
	case ResponseSuccess:
		return nil
	case ResponseFileAlreadyInFlight:
		return ErrFileAlreadyTransferring
	case ResponseError:
		return ErrTransferFailed
	default:
		return fmt.Errorf("%w: unrecognized response byte 0x%02X", ErrConnectionFailed, response[0])
	}
}

// Close closes the underlying connection and marks the transporter closed.
func (t *TCPTransporter) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil // Already closed
	}
	t.log("[DEBUG] closing transporter")
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// RemoteAddr returns the remote network address as text.
func (t *TCPTransporter) RemoteAddr() string {
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}
