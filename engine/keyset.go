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
package engine

import (
	"github.com/google/btree"
)

// keySet keeps a section's permitted field names sorted and
// duplicate-free (spec §3 invariant 3), the same ordered-index
// structure the teacher (storage/index.go) builds on google/btree for
// its shard indices, reused here for the much smaller "keys[S]"
// registry so re-serializing it in sorted order never needs an
// explicit sort step.
type keySet struct {
	t *btree.BTreeG[string]
}

func newKeySet() *keySet {
	return &keySet{t: btree.NewG(8, func(a, b string) bool { return a < b })}
}

func keySetFromSlice(names []string) *keySet {
	ks := newKeySet()
	for _, n := range names {
		ks.t.ReplaceOrInsert(n)
	}
	return ks
}

func (ks *keySet) Add(name string) {
	ks.t.ReplaceOrInsert(name)
}

func (ks *keySet) Has(name string) bool {
	_, ok := ks.t.Get(name)
	return ok
}

func (ks *keySet) Len() int { return ks.t.Len() }

// List returns the ascending, duplicate-free field names.
func (ks *keySet) List() []string {
	out := make([]string, 0, ks.t.Len())
	ks.t.Ascend(func(item string) bool {
		out = append(out, item)
		return true
	})
	return out
}

func (ks *keySet) clone() *keySet {
	return keySetFromSlice(ks.List())
}
