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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"gotest.tools/v3/assert"
)

func TestAuditLog_HeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), AuditLogFileName)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 17, 9, 30, 15, 987654321, time.UTC))

	l, err := OpenAuditLog(path, clock)
	assert.NilError(t, err)

	assert.NilError(t, l.Append("hello.txt", ResultSuccess))
	clock.Advance(75 * time.Second)
	assert.NilError(t, l.Append("big.bin", ResultCancel))
	assert.NilError(t, l.Append("bad.dat", ResultError))
	assert.NilError(t, l.Close())

	raw, err := os.ReadFile(path)
	assert.NilError(t, err)
	want := "File Name\tDate and Time\tResult\n" +
		"hello.txt\t2024-05-17 09:30:15\tSUCCESS\n" +
		"big.bin\t2024-05-17 09:31:30\tCANCEL\n" +
		"bad.dat\t2024-05-17 09:31:30\tERROR\n"
	assert.Equal(t, string(raw), want)
}

func TestAuditLog_AppendOnlyAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), AuditLogFileName)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC))

	l, err := OpenAuditLog(path, clock)
	assert.NilError(t, err)
	assert.NilError(t, l.Append("first.txt", ResultSuccess))
	assert.NilError(t, l.Close())

	// Reopening must not rewrite the header or truncate existing rows.
	l, err = OpenAuditLog(path, clock)
	assert.NilError(t, err)
	assert.NilError(t, l.Append("second.txt", ResultError))
	assert.NilError(t, l.Close())

	raw, err := os.ReadFile(path)
	assert.NilError(t, err)
	want := "File Name\tDate and Time\tResult\n" +
		"first.txt\t2024-05-17 12:00:00\tSUCCESS\n" +
		"second.txt\t2024-05-17 12:00:00\tERROR\n"
	assert.Equal(t, string(raw), want)
}

func TestAuditLog_TimestampIsUTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), AuditLogFileName)
	offset := time.FixedZone("UTC+3", 3*60*60)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 17, 15, 0, 0, 0, offset))

	l, err := OpenAuditLog(path, clock)
	assert.NilError(t, err)
	assert.NilError(t, l.Append("tz.txt", ResultSuccess))
	assert.NilError(t, l.Close())

	raw, err := os.ReadFile(path)
	assert.NilError(t, err)
	want := "File Name\tDate and Time\tResult\n" +
		"tz.txt\t2024-05-17 12:00:00\tSUCCESS\n"
	assert.Equal(t, string(raw), want)
}
