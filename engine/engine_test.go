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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/query"
	"github.com/launix-de/jsondbserver/value"
)

func tempEngine(t *testing.T, autoUpdate bool) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	e, err := Create(path, autoUpdate)
	require.NoError(t, err)
	return e
}

func person(name string, age int64) value.Value {
	return value.NewMap(map[string]value.Value{
		"name": value.NewString(name),
		"age":  value.NewInt(age),
	})
}

func TestAddSectionThenAddAdoptsKeys(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))

	id, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Equal(t, []string{"age", "name"}, e.s.keysBySection["people"].List())
}

func TestAddSectionTwiceIsAlreadyExists(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))

	err := e.AddSection("people")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.SectionAlreadyExists, ae.Kind)
}

func TestAddMismatchedFieldsIsUnknownKey(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	_, err = e.Add("people", value.NewMap(map[string]value.Value{"name": value.NewString("B")}), false)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.UnknownKey, ae.Kind)
}

func TestAddIgnoreMissingKeySkipsValidation(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	_, err = e.Add("people", value.NewMap(map[string]value.Value{"name": value.NewString("B")}), true)
	require.NoError(t, err)
}

func TestAddToMissingSectionIsSectionNotFound(t *testing.T) {
	e := tempEngine(t, false)
	_, err := e.Add("ghosts", person("A", 1), false)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.SectionNotFound, ae.Kind)
}

func TestGetByIDUnknownIsIdDoesNotExist(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.GetByID("people", "nope")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.IdDoesNotExist, ae.Kind)
}

func TestGetByQueryFiltersRecords(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)
	_, err = e.Add("people", person("B", 10), false)
	require.NoError(t, err)

	pred, err := query.Compile("age > 20")
	require.NoError(t, err)

	matches, err := e.GetByQuery("people", pred)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestUpdateByIDMergesPatch(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	id, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	err = e.UpdateByID("people", id, value.NewMap(map[string]value.Value{"age": value.NewInt(31)}))
	require.NoError(t, err)

	rec, err := e.GetByID("people", id)
	require.NoError(t, err)
	require.Equal(t, int64(31), rec.Map()["age"].Int())
	require.Equal(t, "A", rec.Map()["name"].String())
}

func TestUpdateByIDUnknownPatchFieldIsUnknownKey(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	id, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	err = e.UpdateByID("people", id, value.NewMap(map[string]value.Value{"height": value.NewInt(180)}))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.UnknownKey, ae.Kind)
}

func TestDeleteByIDRemovesRecord(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	id, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	require.NoError(t, e.DeleteByID("people", id))
	_, err = e.GetByID("people", id)
	require.Error(t, err)
}

func TestPurgeEmptiesSectionAndResetsKeys(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	require.NoError(t, e.Purge("people"))

	all, err := e.GetAllBySection("people")
	require.NoError(t, err)
	require.Empty(t, all)
	require.Equal(t, 0, e.s.keysBySection["people"].Len())
}

func TestAddNewKeyBackfillsDefault(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	id, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	require.NoError(t, e.AddNewKey("people", "active", value.NewBool(true)))

	rec, err := e.GetByID("people", id)
	require.NoError(t, err)
	require.True(t, rec.Map()["active"].Bool())
}

func TestAddNewKeyRejectsFloatDefault(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))

	err := e.AddNewKey("people", "score", value.NewFloat(1.5))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.TypeError, ae.Kind)
}

func TestAddManyAllOrNothing(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))
	_, err := e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	bad := []value.Value{
		person("B", 1),
		value.NewMap(map[string]value.Value{"name": value.NewString("C")}),
	}
	_, err = e.AddMany("people", bad, true, false)
	require.Error(t, err)

	all, err := e.GetAllBySection("people")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAddManyEmptyReturnsNothing(t *testing.T) {
	e := tempEngine(t, false)
	require.NoError(t, e.AddSection("people"))

	result, err := e.AddMany("people", nil, true, false)
	require.NoError(t, err)
	require.Empty(t, result.IDs)
}

func TestCommitAndReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	e, err := Create(path, false)
	require.NoError(t, err)
	require.NoError(t, e.AddSection("people"))
	_, err = e.Add("people", person("A", 30), false)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	all, err := reopened.GetAllBySection("people")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAutoUpdatePersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	e, err := Create(path, true)
	require.NoError(t, err)
	require.NoError(t, e.AddSection("people"))
	_, err = e.Add("people", person("A", 30), false)
	require.NoError(t, err)

	reopened, err := Open(path, false)
	require.NoError(t, err)
	all, err := reopened.GetAllBySection("people")
	require.NoError(t, err)
	require.Len(t, all, 1)
}
