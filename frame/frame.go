/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package frame implements spec §4.E's wire framing: an 8-byte
// big-endian length prefix followed by that many payload bytes.
// Grounded on the teacher's server-node-golang wire helpers (read a
// fixed header, then read-exact the body); the max frame size guard is
// parsed with docker/go-units the way the teacher parses human-readable
// byte-size settings elsewhere in storage/settings.go.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/docker/go-units"

	"github.com/launix-de/jsondbserver/apperr"
)

// DefaultMaxSize is the frame size ceiling applied when the server is
// not configured with an explicit --max-frame-size.
const DefaultMaxSize = 64 * units.MiB

// ParseMaxSize parses a human-readable size string ("64MB", "1GiB")
// into a byte count, the same helper the teacher's CLI uses for its own
// size flags.
func ParseMaxSize(s string) (int64, error) {
	if s == "" {
		return DefaultMaxSize, nil
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max frame size %q: %w", s, err)
	}
	return n, nil
}

// Read consumes exactly one frame from r: an 8-byte big-endian length,
// then that many payload bytes. A partial length or payload read (or a
// payload exceeding maxSize) is reported as an error; it is always a
// framing-level failure that closes the connection (spec §4.F).
func Read(r io.Reader, maxSize int64) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(header[:])
	if maxSize > 0 && n > uint64(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes exceeds max frame size %d", n, maxSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Write emits one frame to w: an 8-byte big-endian length, then payload.
func Write(w io.Writer, payload []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// invalidFrame wraps a framing failure with apperr.InvalidState so
// callers that want a structured Kind (rather than a bare I/O error)
// can obtain one; Session treats any Read/Write error as fatal
// regardless.
func invalidFrame(err error) error {
	return apperr.Wrap(apperr.InvalidState, err, "malformed frame")
}
