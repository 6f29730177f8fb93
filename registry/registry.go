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

// Package registry is the server's shared name->engine map (spec §4.G:
// "share a shared map of name -> engine across handlers"). Grounded on
// the teacher's use of NonLockingReadMap for its own read-heavy,
// write-seldom shard/table registries (storage/database.go): many
// sessions look up an engine by database name on every command, while
// new databases are registered rarely (CREATE_DB, or the first USE_DB
// of a database).
package registry

import (
	"github.com/launix-de/jsondbserver/engine"
	nonlockingreadmap "github.com/launix-de/NonLockingReadMap"
)

// entry adapts *engine.Engine to NonLockingReadMap's KeyGetter/Sizable
// contract; the map is keyed by database name.
type entry struct {
	name string
	eng  *engine.Engine
}

func (e entry) GetKey() string    { return e.name }
func (e entry) ComputeSize() uint { return 64 }

// Registry maps database name -> *engine.Engine, shared across every
// session's command dispatch.
type Registry struct {
	m nonlockingreadmap.NonLockingReadMap[entry, string]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{m: nonlockingreadmap.New[entry, string]()}
}

// Get returns the engine registered under name, or nil if none is.
func (r *Registry) Get(name string) *engine.Engine {
	e := r.m.Get(name)
	if e == nil {
		return nil
	}
	return e.eng
}

// Set registers eng under name, replacing any previous engine there.
func (r *Registry) Set(name string, eng *engine.Engine) {
	r.m.Set(&entry{name: name, eng: eng})
}

// Remove deregisters name, returning the engine that was there, if any.
func (r *Registry) Remove(name string) *engine.Engine {
	e := r.m.Remove(name)
	if e == nil {
		return nil
	}
	return e.eng
}

// All returns every registered engine, keyed by database name.
func (r *Registry) All() map[string]*engine.Engine {
	out := map[string]*engine.Engine{}
	for _, e := range r.m.GetAll() {
		out[e.name] = e.eng
	}
	return out
}
