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
	"bytes"
	"encoding/binary"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// FramePackager packs and unpacks transfer frames.
// The frame format is: message type (6 bytes) + payload length (8 bytes,
// big-endian unsigned) + payload.
type FramePackager struct{}

// NewFramePackager creates a new FramePackager.
func NewFramePackager() *FramePackager {
	return &FramePackager{}
}

// Pack packs a message type and payload into a complete frame.
func (p *FramePackager) Pack(msgType MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("transfer: payload length %d exceeds maximum %d bytes", len(payload), MaxPayloadLength)
	}

	frame := make([]byte, FrameHeaderLength+len(payload))
	copy(frame[0:MessageTypeLength], msgType[:])
	binary.BigEndian.PutUint64(frame[MessageTypeLength:FrameHeaderLength], uint64(len(payload)))
	copy(frame[FrameHeaderLength:], payload)

	return frame, nil
}

// Unpack splits a complete frame into its message type and payload.
func (p *FramePackager) Unpack(frame []byte) (MessageType, []byte, error) {
	if len(frame) < FrameHeaderLength {
		return MessageType{}, nil, fmt.Errorf("transfer: invalid frame length: %d bytes, minimum required: %d bytes", len(frame), FrameHeaderLength)
	}

	var raw [MessageTypeLength]byte
	copy(raw[:], frame[0:MessageTypeLength])
	msgType, err := ParseMessageType(raw)
	if err != nil {
		return MessageType{}, nil, err
	}

	length := binary.BigEndian.Uint64(frame[MessageTypeLength:FrameHeaderLength])
	if err := ValidatePayloadLength(length); err != nil {
		return MessageType{}, nil, err
	}
	if uint64(len(frame)-FrameHeaderLength) != length {
		return MessageType{}, nil, &ProtocolError{
			Kind:   ShortRead,
			Detail: fmt.Sprintf("length field %d, payload %d bytes", length, len(frame)-FrameHeaderLength),
		}
	}

	return msgType, frame[FrameHeaderLength : FrameHeaderLength+int(length)], nil
}

// ValidatePayloadLength checks a decoded length prefix against the ceiling.
func ValidatePayloadLength(length uint64) error {
	if length > MaxPayloadLength {
		return &ProtocolError{
			Kind:   OversizedPayload,
			Detail: fmt.Sprintf("length field %d exceeds maximum %d bytes", length, MaxPayloadLength),
		}
	}
	return nil
}

// StartPayload carries the metadata announced by a START frame.
type StartPayload struct {
	FileName string
	FileSize int64 // advisory only; the server never enforces it
}

// EncodeStartPayload builds the START payload "<basename>\t<size_decimal>".
// Path components are stripped from the name before encoding.
func EncodeStartPayload(fileName string, fileSize int64) []byte {
	name := filepath.Base(fileName)
	return []byte(name + "\t" + strconv.FormatInt(fileSize, 10))
}

// DecodeStartPayload parses a START payload. It rejects payloads with more or
// less than one tab, a non-decimal or negative size, or an empty name after
// basename stripping. The returned name has all path components removed so a
// client-supplied "../../etc/x" can never escape the working directory.
func DecodeStartPayload(payload []byte) (StartPayload, error) {
	if bytes.Count(payload, []byte{'\t'}) != 1 {
		return StartPayload{}, fmt.Errorf("transfer: START payload must be <name>\\t<size>, got %d tabs", bytes.Count(payload, []byte{'\t'}))
	}
	idx := bytes.IndexByte(payload, '\t')
	name := string(payload[:idx])
	sizeText := string(payload[idx+1:])

	size, err := strconv.ParseInt(sizeText, 10, 64)
	if err != nil || size < 0 {
		return StartPayload{}, fmt.Errorf("transfer: invalid file size %q in START payload", sizeText)
	}

	name = sanitizeFileName(name)
	if name == "" {
		return StartPayload{}, fmt.Errorf("transfer: empty file name in START payload")
	}

	return StartPayload{FileName: name, FileSize: size}, nil
}

// sanitizeFileName strips every path component, including ones spelled with
// the foreign separator, so only a bare basename survives.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
