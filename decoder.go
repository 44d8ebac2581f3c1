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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Phase is the decoder's current expectation on the wire.
// It advances strictly AwaitingType -> AwaitingLength -> AwaitingPayload and
// wraps back to AwaitingType when a frame completes.
type Phase int

const (
	PhaseAwaitingType Phase = iota
	PhaseAwaitingLength
	PhaseAwaitingPayload
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingType:
		return "awaiting-type"
	case PhaseAwaitingLength:
		return "awaiting-length"
	case PhaseAwaitingPayload:
		return "awaiting-payload"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// FrameDecoder reads frames from a connection one segment at a time. Each
// phase accumulates its exact byte count before the decoder advances, so a
// frame split across many TCP segments is reassembled rather than dropped.
type FrameDecoder struct {
	r             io.Reader
	phase         Phase
	pendingType   MessageType
	pendingLength uint64
}

// NewFrameDecoder creates a decoder reading from r, starting at AwaitingType.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r, phase: PhaseAwaitingType}
}

// Phase returns the decoder's current phase.
func (d *FrameDecoder) Phase() Phase {
	return d.phase
}

// PendingType returns the type literal of the frame being decoded.
// Valid only after the type segment has been consumed.
func (d *FrameDecoder) PendingType() MessageType {
	return d.pendingType
}

// ReadFrame decodes one complete frame. It returns io.EOF when the peer
// closes cleanly between frames, and a ProtocolError when the stream ends
// mid-frame, carries an unknown type literal, or announces a payload larger
// than MaxPayloadLength.
func (d *FrameDecoder) ReadFrame() (MessageType, []byte, error) {
	if err := d.readType(); err != nil {
		return MessageType{}, nil, err
	}
	if err := d.readLength(); err != nil {
		return MessageType{}, nil, err
	}
	payload, err := d.readPayload()
	if err != nil {
		return MessageType{}, nil, err
	}

	msgType := d.pendingType
	d.phase = PhaseAwaitingType
	d.pendingType = MessageType{}
	d.pendingLength = 0
	return msgType, payload, nil
}

func (d *FrameDecoder) readType() error {
	if d.phase != PhaseAwaitingType {
		return nil
	}
	var raw [MessageTypeLength]byte
	n, err := io.ReadFull(d.r, raw[:])
	if err != nil {
		// EOF before the first type byte is a clean close, not a violation.
		if errors.Is(err, io.EOF) && n == 0 {
			return io.EOF
		}
		return &ProtocolError{Kind: ShortRead, Detail: fmt.Sprintf("reading message type: %v", err)}
	}
	msgType, err := ParseMessageType(raw)
	if err != nil {
		return err
	}
	d.pendingType = msgType
	d.phase = PhaseAwaitingLength
	return nil
}

func (d *FrameDecoder) readLength() error {
	if d.phase != PhaseAwaitingLength {
		return nil
	}
	var raw [LengthFieldLength]byte
	if _, err := io.ReadFull(d.r, raw[:]); err != nil {
		return &ProtocolError{Kind: ShortRead, Detail: fmt.Sprintf("reading payload length: %v", err)}
	}
	length := binary.BigEndian.Uint64(raw[:])
	if err := ValidatePayloadLength(length); err != nil {
		return err
	}
	d.pendingLength = length
	d.phase = PhaseAwaitingPayload
	return nil
}

func (d *FrameDecoder) readPayload() ([]byte, error) {
	payload := make([]byte, d.pendingLength)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &ProtocolError{Kind: ShortRead, Detail: fmt.Sprintf("reading %d payload bytes: %v", d.pendingLength, err)}
	}
	return payload, nil
}
