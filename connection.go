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
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// errNameInFlight marks the rejection of a START whose file name another
// connection currently owns. The connection is closed without an audit row:
// no sink was ever opened for it.
var errNameInFlight = errors.New("transfer: file name already in flight")

// Connection is the server-side state of one client: its peer address, the
// framing decoder (which owns the type/length/payload phase), and the sink
// file once a START has been accepted. A Connection is created at accept and
// destroyed on the first terminal transition.
type Connection struct {
	srv     *Server
	conn    net.Conn
	peer    string
	decoder *FrameDecoder

	// Sink state. A sink exists iff sinkName is held in the registry.
	sink     *os.File
	sinkName string
	sinkPath string

	sinkOnce sync.Once
	sockOnce sync.Once
}

func newConnection(srv *Server, conn net.Conn) *Connection {
	return &Connection{
		srv:     srv,
		conn:    conn,
		peer:    conn.RemoteAddr().String(),
		decoder: NewFrameDecoder(conn),
	}
}

// serve runs the connection to its terminal transition. It is the only
// goroutine touching this connection's state; cross-connection state lives in
// the server's registry, audit log, and metrics, each of which serializes
// its own writers.
func (c *Connection) serve() {
	defer c.srv.forgetConnection(c)

	for {
		msgType, payload, err := c.decoder.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Peer closed between frames: no response possible.
				c.srv.log("[WARNING] connection from %s closed by peer", c.peer)
			} else {
				c.srv.log("[ERROR] connection from %s: %v", c.peer, err)
				c.respond(ResponseError)
			}
			c.closeWithResult(ResultError, false)
			return
		}

		done, err := c.dispatch(msgType, payload)
		if err != nil {
			if errors.Is(err, errNameInFlight) {
				// Rejection already answered with 0x11; nothing to clean up.
				c.closeSocket()
				return
			}
			c.srv.log("[ERROR] connection from %s: %v", c.peer, err)
			c.closeWithResult(ResultError, false)
			return
		}
		if done {
			return
		}
	}
}

// dispatch applies the transition for one complete frame.
func (c *Connection) dispatch(msgType MessageType, payload []byte) (done bool, err error) {
	switch msgType {
	case MessageTypeStart:
		return false, c.handleStart(payload)
	case MessageTypeData:
		return false, c.handleData(payload)
	case MessageTypeEnd:
		return true, c.handleEnd()
	case MessageTypeCancel:
		return true, c.handleCancel()
	default:
		// Unreachable: the decoder rejects unknown literals.
		c.respond(ResponseError)
		return false, &ProtocolError{Kind: MalformedType, Detail: msgType.String()}
	}
}

// handleStart opens the sink and claims the file name, or rejects the
// transfer when another connection owns the name already.
func (c *Connection) handleStart(payload []byte) error {
	if c.sink != nil {
		c.respond(ResponseError)
		return &ProtocolError{Kind: UnexpectedMessage, Detail: "second START on one connection"}
	}

	start, err := DecodeStartPayload(payload)
	if err != nil {
		c.respond(ResponseError)
		return err
	}

	if !c.srv.registry.Acquire(start.FileName) {
		c.srv.log("[WARNING] file %s is being transferred right now, rejecting %s", start.FileName, c.peer)
		c.respond(ResponseFileAlreadyInFlight)
		return errNameInFlight
	}

	sinkPath := filepath.Join(c.srv.config.Directory, start.FileName)
	sink, err := os.OpenFile(sinkPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		c.srv.registry.Release(start.FileName)
		c.respond(ResponseError)
		return fmt.Errorf("transfer: creating sink %s: %w", sinkPath, err)
	}

	c.sink = sink
	c.sinkName = start.FileName
	c.sinkPath = sinkPath
	c.srv.log("Receiving file %s (%d bytes) from %s", start.FileName, start.FileSize, c.peer)
	return c.respond(ResponseSuccess)
}

// handleData appends one payload to the sink.
func (c *Connection) handleData(payload []byte) error {
	if c.sink == nil {
		c.respond(ResponseError)
		return &ProtocolError{Kind: UnexpectedMessage, Detail: "DATA before START"}
	}
	if err := c.respond(ResponseSuccess); err != nil {
		return err
	}
	if _, err := c.sink.Write(payload); err != nil {
		return fmt.Errorf("transfer: writing %d bytes to %s: %w", len(payload), c.sinkPath, err)
	}
	c.srv.metrics.addBytes(len(payload))
	return nil
}

// handleEnd completes the transfer and keeps the received file.
func (c *Connection) handleEnd() error {
	if c.sink == nil {
		c.respond(ResponseError)
		return &ProtocolError{Kind: UnexpectedMessage, Detail: "END before START"}
	}
	c.respond(ResponseSuccess)
	c.srv.log("connection from %s closed successfully", c.peer)
	c.closeWithResult(ResultSuccess, true)
	return nil
}

// handleCancel aborts the transfer and deletes the partial file.
func (c *Connection) handleCancel() error {
	if c.sink == nil {
		c.respond(ResponseError)
		return &ProtocolError{Kind: UnexpectedMessage, Detail: "CANCEL before START"}
	}
	c.respond(ResponseSuccess)
	c.srv.log("connection from %s canceled", c.peer)
	c.closeWithResult(ResultCancel, false)
	return nil
}

// respond writes the one-byte verdict for the current frame.
func (c *Connection) respond(r Response) error {
	if _, err := c.conn.Write([]byte{byte(r)}); err != nil {
		return fmt.Errorf("transfer: responding 0x%02X to %s: %w", byte(r), c.peer, err)
	}
	return nil
}

// closeWithResult runs the terminal transition: close the sink exactly once,
// delete the partial file unless the transfer completed, write the audit row
// iff a sink existed, release the in-flight name, and close the socket.
func (c *Connection) closeWithResult(result Result, keepFile bool) {
	if c.sink != nil {
		c.sinkOnce.Do(func() {
			c.sink.Close()
			if !keepFile {
				if err := os.Remove(c.sinkPath); err != nil && !os.IsNotExist(err) {
					c.srv.log("[WARNING] removing partial file %s: %v", c.sinkPath, err)
				}
			}
			if err := c.srv.audit.Append(c.sinkName, result); err != nil {
				c.srv.log("[ERROR] %v", err)
			}
			c.srv.registry.Release(c.sinkName)
			c.srv.metrics.addResult(result)
		})
	}
	c.closeSocket()
}

// closeSocket closes the network connection exactly once.
func (c *Connection) closeSocket() {
	c.sockOnce.Do(func() {
		c.conn.Close()
	})
}

// abort force-closes the socket from outside the connection goroutine; the
// goroutine's next read fails and its own terminal path runs the cleanup.
func (c *Connection) abort() error {
	var err error
	c.sockOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
