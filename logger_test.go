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
	"strings"
	"testing"
)

func TestSimpleLogger_LevelFilter(t *testing.T) {
	var out bytes.Buffer
	l := NewSimpleLogger(&out, LevelWarning, "server")

	l.Write([]byte("[DEBUG] noisy detail"))
	l.Write([]byte("[INFO] routine note"))
	l.Write([]byte("[WARNING] something odd"))
	l.Write([]byte("[ERROR] something broke"))

	logged := out.String()
	if strings.Contains(logged, "noisy detail") || strings.Contains(logged, "routine note") {
		t.Errorf("messages below WARNING must be filtered, got: %s", logged)
	}
	if !strings.Contains(logged, "something odd") || !strings.Contains(logged, "something broke") {
		t.Errorf("WARNING and ERROR messages must pass, got: %s", logged)
	}
	if !strings.Contains(logged, "<server>") {
		t.Errorf("prefix missing from output: %s", logged)
	}
}

func TestSimpleLogger_DefaultsToInfo(t *testing.T) {
	var out bytes.Buffer
	l := NewSimpleLogger(&out, LevelInfo, "test")

	l.Write([]byte("plain message without level tag"))
	if !strings.Contains(out.String(), "[INFO]") {
		t.Errorf("untagged messages should log at INFO, got: %s", out.String())
	}
}

func TestSimpleLogger_NoneSilencesAll(t *testing.T) {
	var out bytes.Buffer
	l := NewSimpleLogger(&out, LevelNone, "test")
	l.Write([]byte("[ERROR] even this"))
	if out.Len() != 0 {
		t.Errorf("LevelNone must silence everything, got: %s", out.String())
	}
}

func TestSimpleLogger_SetLevel(t *testing.T) {
	var out bytes.Buffer
	l := NewSimpleLogger(&out, LevelError, "test")
	l.Write([]byte("[INFO] dropped"))
	l.SetLevel(LevelDebug)
	l.Write([]byte("[INFO] kept"))

	if strings.Contains(out.String(), "dropped") {
		t.Errorf("message below the initial level must be filtered, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "kept") {
		t.Errorf("message after SetLevel must pass, got: %s", out.String())
	}
	if l.GetLevel() != LevelDebug {
		t.Errorf("level: got %v, want %v", l.GetLevel(), LevelDebug)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarning,
		"Warning": LevelWarning,
		"error":   LevelError,
		"none":    LevelNone,
	}
	for name, want := range cases {
		got, err := ParseLogLevel(name)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q): got %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLogLevel("bogus"); err == nil {
		t.Error("ParseLogLevel should fail for unknown level")
	}
}
