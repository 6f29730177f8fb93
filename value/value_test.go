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
package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.False(t, NewNull().Truthy())
	require.False(t, NewBool(false).Truthy())
	require.True(t, NewBool(true).Truthy())
	require.False(t, NewInt(0).Truthy())
	require.True(t, NewInt(1).Truthy())
	require.False(t, NewString("").Truthy())
	require.True(t, NewString("x").Truthy())
	require.False(t, NewList(nil).Truthy())
	require.False(t, NewMap(nil).Truthy())
}

func TestEqualNumericCrossKind(t *testing.T) {
	require.True(t, NewInt(30).Equal(NewFloat(30)))
	require.False(t, NewInt(30).Equal(NewFloat(30.5)))
}

func TestLessOnlyNumericOrString(t *testing.T) {
	lt, ok := NewInt(1).Less(NewInt(2))
	require.True(t, ok)
	require.True(t, lt)

	_, ok = NewInt(1).Less(NewString("a"))
	require.False(t, ok)
}

func TestInMembership(t *testing.T) {
	list := NewList([]Value{NewInt(1), NewInt(2), NewInt(3)})
	in, ok := NewInt(2).In(list)
	require.True(t, ok)
	require.True(t, in)

	in, ok = NewInt(9).In(list)
	require.True(t, ok)
	require.False(t, in)
}

func TestMergeShallow(t *testing.T) {
	base := NewMap(map[string]Value{"name": NewString("A"), "age": NewInt(30)})
	patch := NewMap(map[string]Value{"age": NewInt(31)})
	merged := base.Merge(patch)
	require.Equal(t, int64(31), merged.Map()["age"].Int())
	require.Equal(t, "A", merged.Map()["name"].String())
}

func TestFieldsSorted(t *testing.T) {
	v := NewMap(map[string]Value{"b": NewInt(1), "a": NewInt(2)})
	require.Equal(t, []string{"a", "b"}, v.Fields())
}

func TestJSONRoundTrip(t *testing.T) {
	v := NewMap(map[string]Value{
		"name": NewString("A"),
		"age":  NewInt(30),
		"tags": NewList([]Value{NewString("x"), NewString("y")}),
	})
	data, err := v.MarshalJSON()
	require.NoError(t, err)

	var v2 Value
	require.NoError(t, v2.UnmarshalJSON(data))
	require.True(t, v.Equal(v2))
}
