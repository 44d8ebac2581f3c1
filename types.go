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

import "fmt"

// Frame layout: message type (6 bytes) + payload length (8 bytes, big-endian
// unsigned) + payload.
const (
	MessageTypeLength = 6
	LengthFieldLength = 8
	FrameHeaderLength = MessageTypeLength + LengthFieldLength

	// MaxPayloadLength caps the payload a single frame may carry. A hostile
	// length prefix larger than this is rejected before any allocation.
	MaxPayloadLength = 1 << 20
)

// MessageType is the 6-byte NUL-padded type literal that opens every frame.
type MessageType [MessageTypeLength]byte

var (
	MessageTypeStart  = MessageType{'S', 'T', 'A', 'R', 'T', 0x00}
	MessageTypeData   = MessageType{'D', 'A', 'T', 'A', 0x00, 0x00}
	MessageTypeEnd    = MessageType{'E', 'N', 'D', 0x00, 0x00, 0x00}
	MessageTypeCancel = MessageType{'C', 'A', 'N', 'C', 'E', 'L'}
)

// String returns the literal with NUL padding stripped, for logs.
func (t MessageType) String() string {
	for i, b := range t {
		if b == 0x00 {
			return string(t[:i])
		}
	}
	return string(t[:])
}

// ParseMessageType validates a raw 6-byte literal against the known set.
func ParseMessageType(raw [MessageTypeLength]byte) (MessageType, error) {
	switch MessageType(raw) {
	case MessageTypeStart, MessageTypeData, MessageTypeEnd, MessageTypeCancel:
		return MessageType(raw), nil
	}
	return MessageType{}, &ProtocolError{
		Kind:   MalformedType,
		Detail: fmt.Sprintf("unknown message type % X", raw[:]),
	}
}

// Response is the single octet the server answers every frame with.
type Response byte

const (
	ResponseSuccess             Response = 0x00
	ResponseFileAlreadyInFlight Response = 0x11
	ResponseError               Response = 0xFF
)

// Result classifies how a transfer ended; it is what the audit log records.
type Result int

const (
	ResultSuccess Result = iota
	ResultError
	ResultCancel
)

// String returns the audit log spelling of the result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultError:
		return "ERROR"
	case ResultCancel:
		return "CANCEL"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Transporter is the client-side frame transport: it ships one framed message
// and reports the server's one-byte verdict as an error (nil on SUCCESS).
type Transporter interface {
	SendFrame(msgType MessageType, payload []byte) error
	Close() error
	RemoteAddr() string
}
