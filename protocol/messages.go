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

// Package protocol holds the wire-level JSON shapes of spec §4.F: the
// request/response envelope and the per-command payload structs of the
// dispatch table.
package protocol

import (
	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/apperr"
)

// Command names the fixed vocabulary a session may dispatch.
type Command string

const (
	CmdAuth             Command = "AUTH"
	CmdUseDB            Command = "USE_DB"
	CmdUseSection       Command = "USE_SECTION"
	CmdCreateDB         Command = "CREATE_DB"
	CmdAdd              Command = "ADD"
	CmdAddMany          Command = "ADD_MANY"
	CmdAddNewKey        Command = "ADD_NEW_KEY"
	CmdAddSection       Command = "ADD_SECTION"
	CmdGetAll           Command = "GET_ALL"
	CmdGetAllBySection  Command = "GET_ALL_BY_SECTION"
	CmdGetByID          Command = "GET_BY_ID"
	CmdGetByQuery       Command = "GET_BY_QUERY"
	CmdUpdateByID       Command = "UPDATE_BY_ID"
	CmdUpdateByQuery    Command = "UPDATE_BY_QUERY"
	CmdDeleteByID       Command = "DELETE_BY_ID"
	CmdDeleteByQuery    Command = "DELETE_BY_QUERY"
	CmdPurge            Command = "PURGE"
	CmdPurgeAll         Command = "PURGE_ALL"
	CmdSetIDGenerator   Command = "SET_ID_GENERATOR"
	CmdPing             Command = "PING"
)

// Request is the envelope every frame after the pre-auth AUTH frame
// carries: {cmd, auth, payload}.
type Request struct {
	Cmd     Command         `json:"cmd"`
	Auth    string          `json:"auth"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the envelope every reply carries: {error, data}. A
// successful response always has Error == apperr.NoError (spec §7).
type Response struct {
	Error apperr.Kind `json:"error"`
	Data  interface{} `json:"data,omitempty"`
}

// OK builds a successful response carrying data.
func OK(data interface{}) Response {
	return Response{Error: apperr.NoError, Data: data}
}

// Fail builds an error response from err, taking its Kind via
// apperr.KindOf and surfacing the human-readable message as Data so a
// client can display it.
func Fail(err error) Response {
	return Response{Error: apperr.KindOf(err), Data: err.Error()}
}

// AuthPayload is AUTH's payload: Credentials is the base64-url,
// obscure()-encoded {u,p}-with-tag-byte blob of spec §4.B/§6, carried
// as a JSON string (it is already text, so it is not re-wrapped in a
// []byte/base64 JSON field).
type AuthPayload struct {
	Credentials string `json:"credentials"`
	Encrypt     bool   `json:"encrypt"`
}

type UseDBPayload struct {
	DBName  string `json:"dbname"`
	Section string `json:"section,omitempty"`
}

type UseSectionPayload struct {
	Section string `json:"section"`
}

type CreateDBPayload struct {
	DBName string `json:"dbname"`
	Force  bool   `json:"force"`
	Use    bool   `json:"use"`
}

type AddPayload struct {
	Section          string      `json:"section"`
	Data             interface{} `json:"data"`
	IgnoreMissingKey bool        `json:"ignore_missing_key"`
}

type AddManyPayload struct {
	Section          string        `json:"section"`
	Data             []interface{} `json:"data"`
	JSONResponse     bool          `json:"json_response"`
	IgnoreMissingKey bool          `json:"ignore_missing_key"`
}

type AddNewKeyPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Default interface{} `json:"default"`
}

type AddSectionPayload struct {
	Section string `json:"section"`
	Use     bool   `json:"use"`
}

type GetAllBySectionPayload struct {
	Section string `json:"section"`
}

type GetByIDPayload struct {
	Section string `json:"section"`
	ID      string `json:"id"`
}

type GetByQueryPayload struct {
	Section string `json:"section"`
	Query   string `json:"query"`
	// OrderBy names a field of the matched records to stable-sort the
	// result by; empty means unspecified, map iteration order.
	OrderBy string `json:"order_by,omitempty"`
}

type UpdateByIDPayload struct {
	Section string      `json:"section"`
	ID      string      `json:"id"`
	Data    interface{} `json:"data"`
}

type UpdateByQueryPayload struct {
	Section string      `json:"section"`
	Query   string      `json:"query"`
	Data    interface{} `json:"data"`
}

type DeleteByIDPayload struct {
	Section string `json:"section"`
	ID      string `json:"id"`
}

type DeleteByQueryPayload struct {
	Section string `json:"section"`
	Query   string `json:"query"`
}

type PurgePayload struct {
	Section string `json:"section"`
}

type SetIDGeneratorPayload struct {
	Fn string `json:"fn"`
}
