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

// Package idgen replaces the source's "ID generator as source string"
// with a server-supplied enum of named strategies (spec §9): the wire
// command carries a name, never code.
package idgen

import (
	"fmt"
	"math/big"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/launix-de/jsondbserver/apperr"
)

// Generator produces record IDs on demand; installed per engine via
// Engine.SetIDGenerator (spec §4.C).
type Generator func() string

const (
	StrategyUUID18   = "uuid18"
	StrategyUUID4    = "uuid4"
	StrategyCounter  = "counter"
	defaultStrategy  = StrategyUUID18
)

// ByName resolves one of the server-supplied strategies by name.
// An unrecognized name is a MalformedIdGenerator error, mirroring the
// source's rejection of an uncompileable generator.
func ByName(name string) (Generator, error) {
	if name == "" {
		name = defaultStrategy
	}
	switch name {
	case StrategyUUID18:
		return UUID18, nil
	case StrategyUUID4:
		return UUID4, nil
	case StrategyCounter:
		return NewCounter(), nil
	default:
		return nil, apperr.New(apperr.MalformedIdGenerator, fmt.Sprintf("unknown id generator %q", name))
	}
}

// UUID18 derives an opaque 18-character decimal string from a random
// 128-bit value, the default generator named in spec §3.
func UUID18() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	s := n.String()
	if len(s) >= 18 {
		return s[:18]
	}
	// left-pad on the vanishingly rare short decimal expansion
	for len(s) < 18 {
		s = "0" + s
	}
	return s
}

// UUID4 returns a canonical hyphenated UUIDv4 string.
func UUID4() string {
	return uuid.New().String()
}

// NewCounter returns a process-local monotonically increasing decimal
// generator, useful for deterministic tests and for clients that want
// sortable IDs. Not safe to share across engines with overlapping
// lifetimes — each call to NewCounter starts a fresh sequence at 1.
func NewCounter() Generator {
	var n uint64
	return func() string {
		next := atomic.AddUint64(&n, 1)
		return strconv.FormatUint(next, 10)
	}
}
