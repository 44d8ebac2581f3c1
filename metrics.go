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

import "sync/atomic"

// ServerMetrics aggregates counters across the server's lifetime. All fields
// are updated atomically from connection goroutines; Snapshot gives a
// consistent-enough copy for operator logging.
type ServerMetrics struct {
	ConnectionsAccepted uint64
	BytesReceived       uint64
	FilesCompleted      uint64
	FilesCanceled       uint64
	FilesFailed         uint64
}

func (m *ServerMetrics) addConnection() { atomic.AddUint64(&m.ConnectionsAccepted, 1) }

func (m *ServerMetrics) addBytes(n int) { atomic.AddUint64(&m.BytesReceived, uint64(n)) }

func (m *ServerMetrics) addResult(r Result) {
	switch r {
	case ResultSuccess:
		atomic.AddUint64(&m.FilesCompleted, 1)
	case ResultCancel:
		atomic.AddUint64(&m.FilesCanceled, 1)
	case ResultError:
		atomic.AddUint64(&m.FilesFailed, 1)
	}
}

// Snapshot returns an atomic copy of the current counters.
func (m *ServerMetrics) Snapshot() ServerMetrics {
	return ServerMetrics{
		ConnectionsAccepted: atomic.LoadUint64(&m.ConnectionsAccepted),
		BytesReceived:       atomic.LoadUint64(&m.BytesReceived),
		FilesCompleted:      atomic.LoadUint64(&m.FilesCompleted),
		FilesCanceled:       atomic.LoadUint64(&m.FilesCanceled),
		FilesFailed:         atomic.LoadUint64(&m.FilesFailed),
	}
}
