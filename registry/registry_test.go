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
package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launix-de/jsondbserver/engine"
)

func TestSetGetRemove(t *testing.T) {
	r := New()
	require.Nil(t, r.Get("d1"))

	eng, err := engine.Create(filepath.Join(t.TempDir(), "d1.json"), false)
	require.NoError(t, err)

	r.Set("d1", eng)
	require.Same(t, eng, r.Get("d1"))

	removed := r.Remove("d1")
	require.Same(t, eng, removed)
	require.Nil(t, r.Get("d1"))
}

func TestAllReturnsEverything(t *testing.T) {
	r := New()
	e1, err := engine.Create(filepath.Join(t.TempDir(), "d1.json"), false)
	require.NoError(t, err)
	e2, err := engine.Create(filepath.Join(t.TempDir(), "d2.json"), false)
	require.NoError(t, err)

	r.Set("d1", e1)
	r.Set("d2", e2)

	all := r.All()
	require.Len(t, all, 2)
	require.Same(t, e1, all["d1"])
	require.Same(t, e2, all["d2"])
}
