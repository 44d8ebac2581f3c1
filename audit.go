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
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
)

// AuditLogFileName is the log's name inside the server working directory.
const AuditLogFileName = "log_file.csv"

// auditTimeLayout renders UTC timestamps without fractional seconds or zone.
const auditTimeLayout = "2006-01-02 15:04:05"

var auditHeader = []string{"File Name", "Date and Time", "Result"}

// AuditLog is the append-only, tab-separated record of finished transfers.
// One row is written per transfer whose START succeeded, whatever the
// outcome. Appends are serialized; every connection goroutine may write,
// including while a shutdown is cleaning up.
type AuditLog struct {
	mu    sync.Mutex
	file  *os.File
	clock clockwork.Clock
}

// OpenAuditLog opens (or creates with a header row) the audit log at path.
// A nil clock defaults to the real one; tests inject a fake.
func OpenAuditLog(path string, clock clockwork.Clock) (*AuditLog, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	_, statErr := os.Stat(path)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening audit log %s: %w", path, err)
	}

	l := &AuditLog{file: file, clock: clock}
	if os.IsNotExist(statErr) {
		if err := l.writeRow(auditHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("transfer: writing audit log header: %w", err)
		}
	}
	return l, nil
}

// Append records the outcome of one transfer.
func (l *AuditLog) Append(fileName string, result Result) error {
	timestamp := l.clock.Now().UTC().Format(auditTimeLayout)
	if err := l.writeRow([]string{fileName, timestamp, result.String()}); err != nil {
		return fmt.Errorf("transfer: appending audit row for %s: %w", fileName, err)
	}
	return nil
}

func (l *AuditLog) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := csv.NewWriter(l.file)
	w.Comma = '\t'
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Close closes the underlying file.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
