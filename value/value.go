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

// Package value implements the tagged JSON variant used everywhere a
// record, predicate literal or patch crosses the engine boundary,
// instead of passing naked interface{} around.
package value

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
)

// Kind tags which alternative of Value is populated.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	List
	Map
)

// Value is a tagged variant over the JSON data model: null, bool, int,
// float, string, list and map. Zero value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

func NewNull() Value           { return Value{kind: Null} }
func NewBool(b bool) Value     { return Value{kind: Bool, b: b} }
func NewInt(i int64) Value     { return Value{kind: Int, i: i} }
func NewFloat(f float64) Value { return Value{kind: Float, f: f} }
func NewString(s string) Value { return Value{kind: String, s: s} }
func NewList(l []Value) Value  { return Value{kind: List, l: l} }
func NewMap(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: Map, m: m}
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == Null }
func (v Value) Bool() bool        { return v.b }
func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) String() string    { return v.s }
func (v Value) List() []Value     { return v.l }
func (v Value) Map() map[string]Value { return v.m }

// Truthy mirrors the spec's "anything the target language considers
// truthy for a record value": null, false, zero, empty string, empty
// list/map are falsy; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case String:
		return v.s != ""
	case List:
		return len(v.l) > 0
	case Map:
		return len(v.m) > 0
	}
	return false
}

// Equal implements the grammar's == operator: numeric kinds compare by
// numeric value across Int/Float, everything else must share a Kind.
func (v Value) Equal(other Value) bool {
	if isNumeric(v.kind) && isNumeric(other.kind) {
		return v.numeric() == other.numeric()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case String:
		return v.s == other.s
	case List:
		if len(v.l) != len(other.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(other.l[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := other.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func isNumeric(k Kind) bool { return k == Int || k == Float }

func (v Value) numeric() float64 {
	if v.kind == Int {
		return float64(v.i)
	}
	return v.f
}

// Less implements the grammar's ordering operators. Only defined
// between two numeric values or two strings; for any other pairing the
// second return is false, and the predicate evaluator then treats the
// comparison as false.
func (v Value) Less(other Value) (bool, bool) {
	if isNumeric(v.kind) && isNumeric(other.kind) {
		return v.numeric() < other.numeric(), true
	}
	if v.kind == String && other.kind == String {
		return v.s < other.s, true
	}
	return false, false
}

// In implements the grammar's membership operator: v in other, where
// other must be a List (element equality) or a Map (key membership,
// v must be a String).
func (v Value) In(other Value) (bool, bool) {
	switch other.kind {
	case List:
		for _, item := range other.l {
			if v.Equal(item) {
				return true, true
			}
		}
		return false, true
	case Map:
		if v.kind != String {
			return false, false
		}
		_, ok := other.m[v.s]
		return ok, true
	}
	return false, false
}

// Fields returns the sorted field names of a Map value; for any other
// kind it returns an empty slice.
func (v Value) Fields() []string {
	names := make([]string, 0, len(v.m))
	for k := range v.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge performs the shallow-merge patch semantics required by
// update_by_id / update_by_query: fields of patch overwrite, fields only
// in the base record are preserved.
func (v Value) Merge(patch Value) Value {
	result := make(map[string]Value, len(v.m)+len(patch.m))
	for k, mv := range v.m {
		result[k] = mv
	}
	for k, mv := range patch.m {
		result[k] = mv
	}
	return NewMap(result)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Int:
		return json.Marshal(v.i)
	case Float:
		return json.Marshal(v.f)
	case String:
		return json.Marshal(v.s)
	case List:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case Map:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts the result of a generic encoding/json (or
// goccy/go-json) decode into a Value, tagging each JSON number as Int
// when it has no fractional part and Float otherwise.
func FromAny(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(x)
	case string:
		return NewString(x)
	case float64:
		if x == float64(int64(x)) {
			return NewInt(int64(x))
		}
		return NewFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return NewInt(i)
		}
		f, _ := x.Float64()
		return NewFloat(f)
	case []interface{}:
		l := make([]Value, len(x))
		for i, item := range x {
			l[i] = FromAny(item)
		}
		return NewList(l)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromAny(item)
		}
		return NewMap(m)
	case []Value:
		return NewList(x)
	case map[string]Value:
		return NewMap(x)
	default:
		return NewNull()
	}
}
