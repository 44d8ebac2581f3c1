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
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
)

// Buffer size bounds for a single DATA frame read from the source file.
const (
	MinBufferSize     = 1
	MaxBufferSize     = 32768
	DefaultBufferSize = 1024
)

// terminatorPayload is the single-byte payload END and CANCEL frames carry.
var terminatorPayload = []byte{0x00}

// OnProgressFunc is a callback type reporting bytes acknowledged per DATA frame.
type OnProgressFunc func(bytesSent int)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	BufferSize int
	OnProgress OnProgressFunc
	Logger     io.Writer
	LogLevel   LogLevel
}

// DefaultClientConfig returns the default sender configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{BufferSize: DefaultBufferSize}
}

// Client streams one file to the server as a START, DATA..., END frame
// sequence over a Transporter. Each frame is individually acknowledged; the
// first non-success verdict aborts the transfer.
type Client struct {
	transporter Transporter
	bufferSize  int
	onProgress  OnProgressFunc
	logger      *log.Logger
}

// NewClient creates a new Client over the given transporter.
func NewClient(transporter Transporter, config ClientConfig) (*Client, error) {
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.BufferSize < MinBufferSize || config.BufferSize > MaxBufferSize {
		return nil, fmt.Errorf("transfer: buffer size %d must be between %d and %d", config.BufferSize, MinBufferSize, MaxBufferSize)
	}
	var clientLogger *log.Logger
	if config.Logger != nil {
		clientLogger = log.New(NewSimpleLogger(config.Logger, config.LogLevel, "client"), "", 0)
	}
	return &Client{
		transporter: transporter,
		bufferSize:  config.BufferSize,
		onProgress:  config.OnProgress,
		logger:      clientLogger,
	}, nil
}

func (c *Client) log(format string, v ...any) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}

// SendFile streams the file at filePath to the server. The OnProgress
// callback fires after every acknowledged DATA frame. When ctx is cancelled
// between frames, a CANCEL frame is sent and ctx's error is returned; there
// is no reconnect or resume on a broken connection.
func (c *Client) SendFile(ctx context.Context, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("transfer: file %s not found: %w", filePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("transfer: %s is a directory", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("transfer: opening %s: %w", filePath, err)
	}
	defer file.Close()

	fileName := filepath.Base(filePath)
	fileSize := info.Size()
	c.log("sending %s (%s) to %s", fileName, units.HumanSize(float64(fileSize)), c.transporter.RemoteAddr())

	if err := c.transporter.SendFrame(MessageTypeStart, EncodeStartPayload(fileName, fileSize)); err != nil {
		return err
	}

	buf := make([]byte, c.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return c.cancel(err)
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			if err := c.transporter.SendFrame(MessageTypeData, buf[:n]); err != nil {
				return err
			}
			if c.onProgress != nil {
				c.onProgress(n)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("transfer: reading %s: %w", filePath, readErr)
		}
	}

	if err := c.transporter.SendFrame(MessageTypeEnd, terminatorPayload); err != nil {
		return err
	}
	c.log("file %s sent successfully", fileName)
	return nil
}

// cancel tells the server to drop the transfer, then reports cause.
// The CANCEL frame is best effort: the socket may already be gone.
func (c *Client) cancel(cause error) error {
	c.log("cancelling transfer: %v", cause)
	if err := c.transporter.SendFrame(MessageTypeCancel, terminatorPayload); err != nil {
		c.log("[WARNING] cancel frame not delivered: %v", err)
	}
	return cause
}

// Close closes the underlying transporter.
func (c *Client) Close() error {
	return c.transporter.Close()
}
