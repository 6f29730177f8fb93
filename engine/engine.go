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

// Package engine is the document engine of spec §4.C: one instance per
// database file, holding its in-memory schema (sections, per-section
// key registry, record maps) behind a single mutex, with atomic
// replace-on-write persistence. Grounded on the teacher's
// storage/database.go + storage/table.go (one struct per database,
// one mutex per schema, save-on-mutate), generalized from columnar
// tables to id->record JSON sections.
package engine

import (
	"fmt"
	"sort"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/idgen"
	"github.com/launix-de/jsondbserver/query"
	"github.com/launix-de/jsondbserver/value"
)

var allowedDefaultKinds = map[value.Kind]bool{
	value.Null:   true,
	value.Bool:   true,
	value.Int:    true,
	value.String: true,
	value.List:   true,
	value.Map:    true,
}

// Engine holds one database's schema in memory plus its persistence
// handle. Every public method acquires mu for its full duration (spec
// §5: "the unit of locking is a whole database").
type Engine struct {
	mu         chan struct{} // binary semaphore; see lock()/unlock()
	storage    *fileStorage
	s          *schema
	autoUpdate bool
	idGen      idgen.Generator
}

func (e *Engine) lock()   { <-e.mu }
func (e *Engine) unlock() { e.mu <- struct{}{} }

// Open loads an existing database file (or starts from an empty schema
// if none exists yet) at path, with the given auto-update mode.
func Open(path string, autoUpdate bool) (*Engine, error) {
	storage := newFileStorage(path)
	s, err := storage.read()
	if err != nil {
		return nil, err
	}
	return newEngine(storage, s, autoUpdate), nil
}

// Create starts a brand-new, empty database file at path and commits
// it immediately, used by CREATE_DB.
func Create(path string, autoUpdate bool) (*Engine, error) {
	storage := newFileStorage(path)
	e := newEngine(storage, newSchema(), autoUpdate)
	if err := e.storage.write(e.s); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(storage *fileStorage, s *schema, autoUpdate bool) *Engine {
	sem := make(chan struct{}, 1)
	sem <- struct{}{}
	return &Engine{mu: sem, storage: storage, s: s, autoUpdate: autoUpdate, idGen: idgen.UUID18}
}

func (e *Engine) loadIfAuto() error {
	if !e.autoUpdate {
		return nil
	}
	s, err := e.storage.read()
	if err != nil {
		return err
	}
	e.s = s
	return nil
}

func (e *Engine) saveIfAuto() error {
	if !e.autoUpdate {
		return nil
	}
	return e.storage.write(e.s)
}

func (e *Engine) section(name string) (*keySet, map[string]value.Value, error) {
	ks, ok := e.s.keysBySection[name]
	if !ok {
		return nil, nil, apperr.New(apperr.SectionNotFound, fmt.Sprintf("section %q not found", name))
	}
	records, ok := e.s.sectionsByName[name]
	if !ok {
		return nil, nil, apperr.New(apperr.SchemaType, fmt.Sprintf("section %q has keys but no record map", name))
	}
	return ks, records, nil
}

// fieldDiff returns the symmetric difference between a record's field
// set and a section's key registry, in sorted order for a stable,
// reproducible UnknownKey message.
func fieldDiff(ks *keySet, record value.Value) []string {
	fields := record.Fields()
	fieldSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldSet[f] = true
	}
	wanted := ks.List()
	wantedSet := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		wantedSet[w] = true
	}
	diffSet := map[string]bool{}
	for _, w := range wanted {
		if !fieldSet[w] {
			diffSet[w] = true
		}
	}
	for _, f := range fields {
		if !wantedSet[f] {
			diffSet[f] = true
		}
	}
	diff := make([]string, 0, len(diffSet))
	for d := range diffSet {
		diff = append(diff, d)
	}
	sort.Strings(diff)
	return diff
}

func unknownKeyErr(diff []string) error {
	return apperr.New(apperr.UnknownKey, fmt.Sprintf("record fields do not match section schema: %v", diff))
}

// Add inserts record into section, adopting record's field set as the
// section's key registry if it has none yet (spec §4.C).
func (e *Engine) Add(sectionName string, record value.Value, ignoreMissingKey bool) (string, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return "", err
	}
	ks, records, err := e.section(sectionName)
	if err != nil {
		return "", err
	}

	if ks.Len() == 0 {
		ks = keySetFromSlice(record.Fields())
		e.s.keysBySection[sectionName] = ks
	} else if !ignoreMissingKey {
		if diff := fieldDiff(ks, record); len(diff) > 0 {
			return "", unknownKeyErr(diff)
		}
	}

	id := e.idGen()
	records[id] = record
	e.s.sectionsByName[sectionName] = records

	if err := e.saveIfAuto(); err != nil {
		return "", err
	}
	return id, nil
}

// AddManyResult is what AddMany returns: either the list of allocated
// ids (json_response == true) or a bare success marker.
type AddManyResult struct {
	IDs     []string
	Success bool
}

// AddMany validates every record before inserting any of them, so a
// single bad record leaves the section untouched (spec §4.C).
func (e *Engine) AddMany(sectionName string, records []value.Value, jsonResponse bool, ignoreMissingKey bool) (AddManyResult, error) {
	e.lock()
	defer e.unlock()

	if len(records) == 0 {
		return AddManyResult{IDs: []string{}, Success: true}, nil
	}

	if err := e.loadIfAuto(); err != nil {
		return AddManyResult{}, err
	}
	ks, sectionRecords, err := e.section(sectionName)
	if err != nil {
		return AddManyResult{}, err
	}

	effectiveKeys := ks
	if ks.Len() == 0 {
		effectiveKeys = keySetFromSlice(records[0].Fields())
	}
	if !ignoreMissingKey {
		for _, rec := range records {
			if diff := fieldDiff(effectiveKeys, rec); len(diff) > 0 {
				return AddManyResult{}, unknownKeyErr(diff)
			}
		}
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = e.idGen()
		sectionRecords[ids[i]] = rec
	}
	e.s.keysBySection[sectionName] = effectiveKeys
	e.s.sectionsByName[sectionName] = sectionRecords

	if err := e.saveIfAuto(); err != nil {
		return AddManyResult{}, err
	}

	if jsonResponse {
		return AddManyResult{IDs: ids}, nil
	}
	return AddManyResult{Success: true}, nil
}

// GetAll returns every section's record map, excluding the version and
// keys metadata (spec §4.C).
func (e *Engine) GetAll() (map[string]map[string]value.Value, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]value.Value, len(e.s.sectionsByName))
	for name, records := range e.s.sectionsByName {
		copied := make(map[string]value.Value, len(records))
		for id, rec := range records {
			copied[id] = rec
		}
		out[name] = copied
	}
	return out, nil
}

func (e *Engine) GetAllBySection(sectionName string) (map[string]value.Value, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return nil, err
	}
	_, records, err := e.section(sectionName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(records))
	for id, rec := range records {
		out[id] = rec
	}
	return out, nil
}

func (e *Engine) GetByID(sectionName, id string) (value.Value, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return value.Value{}, err
	}
	_, records, err := e.section(sectionName)
	if err != nil {
		return value.Value{}, err
	}
	rec, ok := records[id]
	if !ok {
		return value.Value{}, apperr.New(apperr.IdDoesNotExist, fmt.Sprintf("id %q does not exist", id))
	}
	return rec, nil
}

func (e *Engine) GetByQuery(sectionName string, pred query.Predicate) (map[string]value.Value, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return nil, err
	}
	_, records, err := e.section(sectionName)
	if err != nil {
		return nil, err
	}
	out := map[string]value.Value{}
	for id, rec := range records {
		if pred(rec) {
			out[id] = rec
		}
	}
	return out, nil
}

func (e *Engine) UpdateByID(sectionName, id string, patch value.Value) error {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	ks, records, err := e.section(sectionName)
	if err != nil {
		return err
	}
	if diff := patchFieldDiff(ks, patch); len(diff) > 0 {
		return unknownKeyErr(diff)
	}
	old, ok := records[id]
	if !ok {
		return apperr.New(apperr.IdDoesNotExist, fmt.Sprintf("id %q does not exist", id))
	}
	records[id] = old.Merge(patch)

	return e.saveIfAuto()
}

func (e *Engine) UpdateByQuery(sectionName string, pred query.Predicate, patch value.Value) ([]string, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return nil, err
	}
	ks, records, err := e.section(sectionName)
	if err != nil {
		return nil, err
	}
	if diff := patchFieldDiff(ks, patch); len(diff) > 0 {
		return nil, unknownKeyErr(diff)
	}

	var ids []string
	for id, rec := range records {
		if pred(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		records[id] = records[id].Merge(patch)
	}

	if err := e.saveIfAuto(); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// patchFieldDiff is update's narrower validation: every patch field
// must be a known key of the section; a patch field that is absent
// from the section's keys is an UnknownKey, but a patch need not name
// every key (spec §4.C: "Every key of patch must appear in keys[S]").
func patchFieldDiff(ks *keySet, patch value.Value) []string {
	var unknown []string
	for _, f := range patch.Fields() {
		if !ks.Has(f) {
			unknown = append(unknown, f)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (e *Engine) DeleteByID(sectionName, id string) error {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	_, records, err := e.section(sectionName)
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return apperr.New(apperr.IdDoesNotExist, fmt.Sprintf("id %q does not exist", id))
	}
	delete(records, id)

	return e.saveIfAuto()
}

func (e *Engine) DeleteByQuery(sectionName string, pred query.Predicate) ([]string, error) {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return nil, err
	}
	_, records, err := e.section(sectionName)
	if err != nil {
		return nil, err
	}
	var ids []string
	for id, rec := range records {
		if pred(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(records, id)
	}

	if err := e.saveIfAuto(); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (e *Engine) Purge(sectionName string) error {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	if _, _, err := e.section(sectionName); err != nil {
		return err
	}
	e.s.keysBySection[sectionName] = newKeySet()
	e.s.sectionsByName[sectionName] = map[string]value.Value{}

	return e.saveIfAuto()
}

// PurgeAll empties every section, the command-level PURGE_ALL operation
// of spec §4.F.
func (e *Engine) PurgeAll() error {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	for name := range e.s.keysBySection {
		e.s.keysBySection[name] = newKeySet()
		e.s.sectionsByName[name] = map[string]value.Value{}
	}

	return e.saveIfAuto()
}

func (e *Engine) AddNewKey(sectionName, key string, def value.Value) error {
	e.lock()
	defer e.unlock()

	if !allowedDefaultKinds[def.Kind()] {
		return apperr.New(apperr.TypeError, "add_new_key default must be a string, integer, boolean, list, mapping or null")
	}

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	ks, records, err := e.section(sectionName)
	if err != nil {
		return err
	}
	ks.Add(key)
	for id, rec := range records {
		records[id] = rec.Merge(value.NewMap(map[string]value.Value{key: def}))
	}

	return e.saveIfAuto()
}

func (e *Engine) AddSection(sectionName string) error {
	e.lock()
	defer e.unlock()

	if err := e.loadIfAuto(); err != nil {
		return err
	}
	if e.s.hasSection(sectionName) {
		return apperr.New(apperr.SectionAlreadyExists, fmt.Sprintf("section %q already exists", sectionName))
	}
	e.s.keysBySection[sectionName] = newKeySet()
	e.s.sectionsByName[sectionName] = map[string]value.Value{}

	return e.saveIfAuto()
}

// SetIDGenerator installs gen for subsequent Add/AddMany calls.
func (e *Engine) SetIDGenerator(gen idgen.Generator) {
	e.lock()
	defer e.unlock()
	e.idGen = gen
}

// ForceLoad discards the in-memory image and reloads from disk,
// regardless of auto-update mode.
func (e *Engine) ForceLoad() error {
	e.lock()
	defer e.unlock()
	s, err := e.storage.read()
	if err != nil {
		return err
	}
	e.s = s
	return nil
}

// Commit flushes the in-memory image to disk, regardless of
// auto-update mode. Every mutating session command ends with an
// implicit Commit (spec §4.F).
func (e *Engine) Commit() error {
	e.lock()
	defer e.unlock()
	return e.storage.write(e.s)
}

// Remove deletes the backing database file.
func (e *Engine) Remove() error {
	e.lock()
	defer e.unlock()
	return e.storage.remove()
}
