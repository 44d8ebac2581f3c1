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
	"testing"
)

func TestFramePackager_PackUnpack(t *testing.T) {
	p := NewFramePackager()
	payload := []byte("hello.txt\t3")

	frame, err := p.Pack(MessageTypeStart, payload)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	gotType, gotPayload, err := p.Unpack(frame)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if gotType != MessageTypeStart {
		t.Errorf("type mismatch: got %v, want %v", gotType, MessageTypeStart)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}

func TestFramePackager_WireFormat(t *testing.T) {
	p := NewFramePackager()
	frame, err := p.Pack(MessageTypeStart, []byte("hello.txt\t3"))
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	want := append([]byte{0x53, 0x54, 0x41, 0x52, 0x54, 0x00}, // "START\x00"
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0B) // uint64(11) big-endian
	want = append(want, []byte("hello.txt\t3")...)
	if !bytes.Equal(frame, want) {
		t.Errorf("frame mismatch:\ngot  % X\nwant % X", frame, want)
	}
}

func TestMessageType_Literals(t *testing.T) {
	cases := []struct {
		msgType MessageType
		want    []byte
	}{
		{MessageTypeStart, []byte{0x53, 0x54, 0x41, 0x52, 0x54, 0x00}},
		{MessageTypeEnd, []byte{0x45, 0x4E, 0x44, 0x00, 0x00, 0x00}},
		{MessageTypeData, []byte{0x44, 0x41, 0x54, 0x41, 0x00, 0x00}},
		{MessageTypeCancel, []byte{0x43, 0x41, 0x4E, 0x43, 0x45, 0x4C}},
	}
	for _, c := range cases {
		if !bytes.Equal(c.msgType[:], c.want) {
			t.Errorf("%s literal mismatch: got % X, want % X", c.msgType, c.msgType[:], c.want)
		}
	}
}

func TestParseMessageType_Unknown(t *testing.T) {
	_, err := ParseMessageType([6]byte{'B', 'O', 'G', 'U', 'S', 0x00})
	if err == nil {
		t.Fatal("ParseMessageType should fail for unknown literal")
	}
	if !IsProtocolError(err) {
		t.Errorf("expected ProtocolError, got %T", err)
	}
}

func TestFramePackager_Pack_Oversized(t *testing.T) {
	p := NewFramePackager()
	if _, err := p.Pack(MessageTypeData, make([]byte, MaxPayloadLength+1)); err == nil {
		t.Error("Pack should fail for payload exceeding max length")
	}
}

func TestFramePackager_Unpack_Invalid(t *testing.T) {
	p := NewFramePackager()
	// Too short
	if _, _, err := p.Unpack([]byte{1, 2, 3}); err == nil {
		t.Error("Unpack should fail for short frame")
	}
	// Unknown type literal
	frame, _ := p.Pack(MessageTypeData, []byte("xx"))
	copy(frame[0:6], "BOGUS\x00")
	if _, _, err := p.Unpack(frame); err == nil {
		t.Error("Unpack should fail for unknown type literal")
	}
	// Length field disagreeing with payload
	frame, _ = p.Pack(MessageTypeData, []byte("xx"))
	frame[13] = 0x05
	if _, _, err := p.Unpack(frame); err == nil {
		t.Error("Unpack should fail when length field exceeds payload")
	}
}

func TestStartPayload_RoundTrip(t *testing.T) {
	payload := EncodeStartPayload("/tmp/files/report.bin", 4096)
	if string(payload) != "report.bin\t4096" {
		t.Fatalf("EncodeStartPayload: got %q", payload)
	}
	sp, err := DecodeStartPayload(payload)
	if err != nil {
		t.Fatalf("DecodeStartPayload failed: %v", err)
	}
	if sp.FileName != "report.bin" || sp.FileSize != 4096 {
		t.Errorf("got %+v", sp)
	}
}

func TestDecodeStartPayload_PathTraversal(t *testing.T) {
	cases := map[string]string{
		"../../etc/x\t1":     "x",
		"../x\t0":            "x",
		"a/b/c.txt\t12":      "c.txt",
		"..\\..\\evil\t9":    "evil",
		"C:\\temp\\f.txt\t3": "f.txt",
	}
	for payload, want := range cases {
		sp, err := DecodeStartPayload([]byte(payload))
		if err != nil {
			t.Errorf("DecodeStartPayload(%q) failed: %v", payload, err)
			continue
		}
		if sp.FileName != want {
			t.Errorf("DecodeStartPayload(%q): got name %q, want %q", payload, sp.FileName, want)
		}
	}
}

func TestDecodeStartPayload_Invalid(t *testing.T) {
	cases := []string{
		"noseparator", // no tab
		"a\tb\tc",     // two tabs
		"name\t-3",    // negative size
		"name\tabc",   // non-decimal size
		"name\t",      // empty size
		"\t42",        // empty name
		"..\t42",      // name collapses to nothing
	}
	for _, payload := range cases {
		if _, err := DecodeStartPayload([]byte(payload)); err == nil {
			t.Errorf("DecodeStartPayload(%q) should fail", payload)
		}
	}
}

func TestResult_String(t *testing.T) {
	if ResultSuccess.String() != "SUCCESS" || ResultError.String() != "ERROR" || ResultCancel.String() != "CANCEL" {
		t.Error("Result strings do not match the audit log spellings")
	}
}
