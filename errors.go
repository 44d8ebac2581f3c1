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
)

var (
	// ErrConnectionFailed reports that the client could not establish or keep
	// a usable connection: validation failure, retries exhausted, a socket
	// error mid-send, or an unrecognized response byte.
	ErrConnectionFailed = errors.New("transfer: connection failed")

	// ErrFileAlreadyTransferring reports the server's 0x11 verdict: another
	// client currently owns the same file name.
	ErrFileAlreadyTransferring = errors.New("transfer: file is being already transferred")

	// ErrTransferFailed reports the server's 0xFF verdict on a frame.
	ErrTransferFailed = errors.New("transfer: transfer failed")
)

// ProtocolErrorKind classifies server-side protocol violations.
type ProtocolErrorKind int

const (
	// MalformedType: the 6 type bytes match no known literal.
	MalformedType ProtocolErrorKind = iota
	// ShortRead: the peer closed mid-frame.
	ShortRead
	// OversizedPayload: the length prefix exceeds MaxPayloadLength.
	OversizedPayload
	// UnexpectedMessage: a frame arrived that the transfer state forbids,
	// such as DATA before START.
	UnexpectedMessage
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case MalformedType:
		return "malformed type"
	case ShortRead:
		return "short read"
	case OversizedPayload:
		return "oversized payload"
	case UnexpectedMessage:
		return "unexpected message"
	default:
		return fmt.Sprintf("ProtocolErrorKind(%d)", int(k))
	}
}

// ProtocolError is raised by the server dispatcher when a connection violates
// the framing contract. It is terminal for that connection only.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("transfer: protocol error: %s", e.Kind)
	}
	return fmt.Sprintf("transfer: protocol error: %s: %s", e.Kind, e.Detail)
}

// IsProtocolError reports whether err is a ProtocolError, unwrapping as needed.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
