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
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/value"
)

// SupportedVersion is the only database file version this engine reads
// (spec §3 invariant 5).
const SupportedVersion = 2

// schema is the in-memory, explicit representation of a database file.
// The source mixes two classes of top-level key (version/keys vs.
// section data) in one flat mapping; this keeps them apart internally
// and only flattens them back out at the JSON boundary (spec §9).
type schema struct {
	version        int
	keysBySection  map[string]*keySet
	sectionsByName map[string]map[string]value.Value // section -> id -> record
}

func newSchema() *schema {
	return &schema{
		version:        SupportedVersion,
		keysBySection:  map[string]*keySet{},
		sectionsByName: map[string]map[string]value.Value{},
	}
}

func (s *schema) clone() *schema {
	out := newSchema()
	out.version = s.version
	for name, ks := range s.keysBySection {
		out.keysBySection[name] = ks.clone()
	}
	for name, records := range s.sectionsByName {
		copied := make(map[string]value.Value, len(records))
		for id, rec := range records {
			copied[id] = rec
		}
		out.sectionsByName[name] = copied
	}
	return out
}

func (s *schema) hasSection(name string) bool {
	_, ok := s.keysBySection[name]
	return ok
}

// MarshalJSON flattens the schema back into the documented on-disk form:
// {"version":2,"keys":{section:[...]}, section:{id:record}, ...}.
func (s *schema) MarshalJSON() ([]byte, error) {
	out := map[string]value.Value{}
	out["version"] = value.NewInt(int64(s.version))

	keysOut := map[string]value.Value{}
	for name, ks := range s.keysBySection {
		names := ks.List()
		list := make([]value.Value, len(names))
		for i, n := range names {
			list[i] = value.NewString(n)
		}
		keysOut[name] = value.NewList(list)
	}
	out["keys"] = value.NewMap(keysOut)

	for name, records := range s.sectionsByName {
		recOut := map[string]value.Value{}
		for id, rec := range records {
			recOut[id] = rec
		}
		out[name] = value.NewMap(recOut)
	}

	return json.Marshal(out)
}

// UnmarshalJSON parses the documented on-disk form and checks the
// invariants of spec §3 that can be verified from structure alone
// (section/keys pairing, version, duplicate-free sorted keys are
// enforced by construction since keySet is a set).
func (s *schema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "database file is not a JSON object")
	}

	versionRaw, ok := raw["version"]
	if !ok {
		return apperr.New(apperr.SchemaType, "database file missing \"version\"")
	}
	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "\"version\" is not an integer")
	}
	if version != SupportedVersion {
		return apperr.New(apperr.SchemaType, fmt.Sprintf("unsupported database version %d", version))
	}

	keysRaw, ok := raw["keys"]
	if !ok {
		return apperr.New(apperr.SchemaType, "database file missing \"keys\"")
	}
	var keysBySection map[string][]string
	if err := json.Unmarshal(keysRaw, &keysBySection); err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "\"keys\" is not a mapping of section to field list")
	}

	out := newSchema()
	out.version = version

	names := make([]string, 0, len(keysBySection))
	for name := range keysBySection {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out.keysBySection[name] = keySetFromSlice(keysBySection[name])

		sectionRaw, ok := raw[name]
		if !ok {
			return apperr.New(apperr.SchemaType, fmt.Sprintf("section %q listed in \"keys\" has no sibling record map", name))
		}
		var rawRecords map[string]value.Value
		if err := json.Unmarshal(sectionRaw, &rawRecords); err != nil {
			return apperr.Wrap(apperr.SchemaType, err, fmt.Sprintf("section %q is not a mapping of id to record", name))
		}
		out.sectionsByName[name] = rawRecords
	}

	*s = *out
	return nil
}
