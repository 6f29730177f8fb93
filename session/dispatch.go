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
package session

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/engine"
	"github.com/launix-de/jsondbserver/idgen"
	"github.com/launix-de/jsondbserver/protocol"
	"github.com/launix-de/jsondbserver/query"
	"github.com/launix-de/jsondbserver/value"
)

func (s *Session) handleAuth(raw []byte) (interface{}, error) {
	var payload protocol.AuthPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidUser, err, "malformed AUTH payload")
	}
	principal, err := s.catalog.AuthUser([]byte(payload.Credentials))
	if err != nil {
		return nil, err
	}
	s.principal = principal
	s.encrypt = payload.Encrypt
	s.state = Active
	return principal.Key, nil
}

// handleCommand dispatches every post-auth command. UPDATE_BY_ID calls
// the engine's update_by_id (the source's dispatch table wires this
// command to get_by_id instead; spec §9 names this a bug and requires
// the corrected wiring, applied directly here).
func (s *Session) handleCommand(cmd protocol.Command, raw []byte) (interface{}, error) {
	switch cmd {
	case protocol.CmdPing:
		return "pong", nil
	case protocol.CmdUseDB:
		return s.cmdUseDB(raw)
	case protocol.CmdUseSection:
		return s.cmdUseSection(raw)
	case protocol.CmdCreateDB:
		return s.cmdCreateDB(raw)
	case protocol.CmdAdd:
		return s.cmdAdd(raw)
	case protocol.CmdAddMany:
		return s.cmdAddMany(raw)
	case protocol.CmdAddNewKey:
		return s.cmdAddNewKey(raw)
	case protocol.CmdAddSection:
		return s.cmdAddSection(raw)
	case protocol.CmdGetAll:
		return s.cmdGetAll()
	case protocol.CmdGetAllBySection:
		return s.cmdGetAllBySection(raw)
	case protocol.CmdGetByID:
		return s.cmdGetByID(raw)
	case protocol.CmdGetByQuery:
		return s.cmdGetByQuery(raw)
	case protocol.CmdUpdateByID:
		return s.cmdUpdateByID(raw)
	case protocol.CmdUpdateByQuery:
		return s.cmdUpdateByQuery(raw)
	case protocol.CmdDeleteByID:
		return s.cmdDeleteByID(raw)
	case protocol.CmdDeleteByQuery:
		return s.cmdDeleteByQuery(raw)
	case protocol.CmdPurge:
		return s.cmdPurge(raw)
	case protocol.CmdPurgeAll:
		return s.cmdPurgeAll()
	case protocol.CmdSetIDGenerator:
		return s.cmdSetIDGenerator(raw)
	default:
		return nil, apperr.New(apperr.InvalidState, fmt.Sprintf("unknown command %q", cmd))
	}
}

// requireDB returns the currently selected engine, or InvalidState if
// none is selected (spec §4.F: "all operations require a selected
// database").
func (s *Session) requireDB() (*engine.Engine, error) {
	if s.db == nil {
		return nil, apperr.New(apperr.InvalidState, "no database selected")
	}
	return s.db, nil
}

// requireSection resolves the section argument, falling back to the
// session's soft-selected section when sec is empty.
func (s *Session) requireSection(sec string) (string, error) {
	if sec != "" {
		return sec, nil
	}
	if s.section == "" {
		return "", apperr.New(apperr.InvalidState, "no section selected")
	}
	return s.section, nil
}

func toValue(raw interface{}) value.Value { return value.FromAny(raw) }

func (s *Session) cmdUseDB(raw []byte) (interface{}, error) {
	var payload protocol.UseDBPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed USE_DB payload")
	}
	if !s.catalog.Exists(payload.DBName) {
		return nil, apperr.New(apperr.DatabaseNotFound, fmt.Sprintf("database %q not found", payload.DBName))
	}
	if !s.catalog.Authorize(s.principal, payload.DBName) {
		return nil, apperr.New(apperr.InvalidUser, fmt.Sprintf("user %q cannot access database %q", s.principal.User, payload.DBName))
	}

	eng := s.registry.Get(payload.DBName)
	if eng == nil {
		var err error
		eng, err = engine.Open(s.catalog.DatabasePath(payload.DBName), false)
		if err != nil {
			return nil, err
		}
		s.registry.Set(payload.DBName, eng)
	}
	s.db = eng
	s.dbName = payload.DBName
	s.section = payload.Section
	return "", nil
}

func (s *Session) cmdUseSection(raw []byte) (interface{}, error) {
	var payload protocol.UseSectionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed USE_SECTION payload")
	}
	if _, err := s.requireDB(); err != nil {
		return nil, err
	}
	s.section = payload.Section
	return "", nil
}

func (s *Session) cmdCreateDB(raw []byte) (interface{}, error) {
	var payload protocol.CreateDBPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed CREATE_DB payload")
	}
	if s.catalog.Exists(payload.DBName) {
		if !payload.Force {
			return nil, apperr.New(apperr.DatabaseAlreadyExists, fmt.Sprintf("database %q already exists", payload.DBName))
		}
	} else if err := s.catalog.AddDB(payload.DBName, s.principal.User); err != nil {
		return nil, err
	}

	eng, err := engine.Create(s.catalog.DatabasePath(payload.DBName), false)
	if err != nil {
		return nil, err
	}
	s.registry.Set(payload.DBName, eng)

	if payload.Use {
		s.db = eng
		s.dbName = payload.DBName
		s.section = ""
	}
	return "", nil
}

func (s *Session) cmdAdd(raw []byte) (interface{}, error) {
	var payload protocol.AddPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed ADD payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	id, err := eng.Add(section, toValue(payload.Data), payload.IgnoreMissingKey)
	if err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return id, nil
}

func (s *Session) cmdAddMany(raw []byte) (interface{}, error) {
	var payload protocol.AddManyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed ADD_MANY payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	records := make([]value.Value, len(payload.Data))
	for i, rec := range payload.Data {
		records[i] = toValue(rec)
	}
	result, err := eng.AddMany(section, records, payload.JSONResponse, payload.IgnoreMissingKey)
	if err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	if payload.JSONResponse {
		return result.IDs, nil
	}
	return result.Success, nil
}

func (s *Session) cmdAddNewKey(raw []byte) (interface{}, error) {
	var payload protocol.AddNewKeyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed ADD_NEW_KEY payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	if err := eng.AddNewKey(section, payload.Key, toValue(payload.Default)); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return "", nil
}

func (s *Session) cmdAddSection(raw []byte) (interface{}, error) {
	var payload protocol.AddSectionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed ADD_SECTION payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	if err := eng.AddSection(payload.Section); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	if payload.Use {
		s.section = payload.Section
	}
	return "", nil
}

func (s *Session) cmdGetAll() (interface{}, error) {
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	return eng.GetAll()
}

func (s *Session) cmdGetAllBySection(raw []byte) (interface{}, error) {
	var payload protocol.GetAllBySectionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed GET_ALL_BY_SECTION payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	return eng.GetAllBySection(section)
}

func (s *Session) cmdGetByID(raw []byte) (interface{}, error) {
	var payload protocol.GetByIDPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed GET_BY_ID payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	return eng.GetByID(section, payload.ID)
}

func (s *Session) cmdGetByQuery(raw []byte) (interface{}, error) {
	var payload protocol.GetByQueryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed GET_BY_QUERY payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	pred, err := query.Compile(payload.Query)
	if err != nil {
		return nil, err
	}
	matches, err := eng.GetByQuery(section, pred)
	if err != nil {
		return nil, err
	}
	if payload.OrderBy == "" {
		return matches, nil
	}
	return orderRecords(matches, payload.OrderBy), nil
}

// OrderedRecord pairs a record with its id, used to report get_by_query
// results in a stable, client-requested order (spec's order_by hint);
// a plain map has no order, so ordered results are shaped as a list.
type OrderedRecord struct {
	ID     string      `json:"id"`
	Record value.Value `json:"record"`
}

// orderRecords stable-sorts matches by field, ascending; records where
// field is absent sort after every record that has it. Two values that
// are not orderable against each other (Less's second return is false)
// compare as equal.
func orderRecords(matches map[string]value.Value, field string) []OrderedRecord {
	ordered := make([]OrderedRecord, 0, len(matches))
	for id, record := range matches {
		ordered = append(ordered, OrderedRecord{ID: id, Record: record})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, aok := ordered[i].Record.Map()[field]
		b, bok := ordered[j].Record.Map()[field]
		if !aok || !bok {
			return aok && !bok
		}
		less, ok := a.Less(b)
		return ok && less
	})
	return ordered
}

// cmdUpdateByID is the fixed dispatch of spec §9: it calls
// engine.UpdateByID, not GetByID.
func (s *Session) cmdUpdateByID(raw []byte) (interface{}, error) {
	var payload protocol.UpdateByIDPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed UPDATE_BY_ID payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	if err := eng.UpdateByID(section, payload.ID, toValue(payload.Data)); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return "", nil
}

func (s *Session) cmdUpdateByQuery(raw []byte) (interface{}, error) {
	var payload protocol.UpdateByQueryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed UPDATE_BY_QUERY payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	pred, err := query.Compile(payload.Query)
	if err != nil {
		return nil, err
	}
	ids, err := eng.UpdateByQuery(section, pred, toValue(payload.Data))
	if err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Session) cmdDeleteByID(raw []byte) (interface{}, error) {
	var payload protocol.DeleteByIDPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed DELETE_BY_ID payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	if err := eng.DeleteByID(section, payload.ID); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return "", nil
}

func (s *Session) cmdDeleteByQuery(raw []byte) (interface{}, error) {
	var payload protocol.DeleteByQueryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed DELETE_BY_QUERY payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	pred, err := query.Compile(payload.Query)
	if err != nil {
		return nil, err
	}
	ids, err := eng.DeleteByQuery(section, pred)
	if err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Session) cmdPurge(raw []byte) (interface{}, error) {
	var payload protocol.PurgePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed PURGE payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	section, err := s.requireSection(payload.Section)
	if err != nil {
		return nil, err
	}
	if err := eng.Purge(section); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return "", nil
}

func (s *Session) cmdPurgeAll() (interface{}, error) {
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	if err := eng.PurgeAll(); err != nil {
		return nil, err
	}
	if err := eng.Commit(); err != nil {
		return nil, err
	}
	return "", nil
}

func (s *Session) cmdSetIDGenerator(raw []byte) (interface{}, error) {
	var payload protocol.SetIDGeneratorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidState, err, "malformed SET_ID_GENERATOR payload")
	}
	eng, err := s.requireDB()
	if err != nil {
		return nil, err
	}
	gen, err := idgen.ByName(payload.Fn)
	if err != nil {
		return nil, err
	}
	eng.SetIDGenerator(gen)
	return "", nil
}
