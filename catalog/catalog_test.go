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
package catalog

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/codec"
)

func writeConfig(t *testing.T, data fileFormat) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, encoded, 0o600))
	return path
}

func userEntry(t *testing.T, user, password string) UserEntry {
	t.Helper()
	passwd := string(codec.Obscure([]byte(user + password + user)))
	return UserEntry{User: user, Passwd: passwd, Access: []string{"d1"}}
}

func obscuredCreds(t *testing.T, user, password string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"u": user, "p": password})
	require.NoError(t, err)
	tagged := append([]byte{0x00}, raw...)
	return codec.Obscure(tagged)
}

func TestLoadMissingConfigIsMissingConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.MissingConfig, ae.Kind)
}

func TestAuthUserSuccess(t *testing.T) {
	path := writeConfig(t, fileFormat{
		Host: "127.0.0.1", Port: 9000, Path: "db",
		Databases: []DatabaseEntry{{Name: "d1", Filename: "d1.json"}},
		Users:     []UserEntry{userEntry(t, "u1", "pw")},
	})
	c, err := Load(path)
	require.NoError(t, err)

	principal, err := c.AuthUser(obscuredCreds(t, "u1", "pw"))
	require.NoError(t, err)
	require.Equal(t, "u1", principal.User)
	require.Equal(t, []string{"d1"}, principal.Access)
	require.NotEmpty(t, principal.Key)
}

func TestAuthUserWrongPasswordIsInvalidUser(t *testing.T) {
	path := writeConfig(t, fileFormat{
		Host: "127.0.0.1", Port: 9000, Path: "db",
		Users: []UserEntry{userEntry(t, "u1", "pw")},
	})
	c, err := Load(path)
	require.NoError(t, err)

	_, err = c.AuthUser(obscuredCreds(t, "u1", "wrong"))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.InvalidUser, ae.Kind)
}

func TestAddDBThenDelDB(t *testing.T) {
	path := writeConfig(t, fileFormat{
		Host: "127.0.0.1", Port: 9000, Path: ".",
		Users: []UserEntry{userEntry(t, "u1", "pw")},
	})
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, c.AddDB("d2", "u1"))
	require.True(t, c.Exists("d2"))
	require.True(t, c.Authorize(&Principal{User: "u1"}, "d2"))

	require.NoError(t, c.DelDB("d2"))
	require.False(t, c.Exists("d2"))
	require.False(t, c.Authorize(&Principal{User: "u1"}, "d2"))
}

func TestAddDBDuplicateIsDatabaseAlreadyExists(t *testing.T) {
	path := writeConfig(t, fileFormat{
		Host: "127.0.0.1", Port: 9000, Path: ".",
		Databases: []DatabaseEntry{{Name: "d1", Filename: "d1.json"}},
	})
	c, err := Load(path)
	require.NoError(t, err)

	err = c.AddDB("d1", "u1")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.DatabaseAlreadyExists, ae.Kind)
}

func TestDelDBUnknownIsDatabaseNotFound(t *testing.T) {
	path := writeConfig(t, fileFormat{Host: "127.0.0.1", Port: 9000, Path: "."})
	c, err := Load(path)
	require.NoError(t, err)

	err = c.DelDB("ghost")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.DatabaseNotFound, ae.Kind)
}

func TestExistsLooksAtDatabasesNotUsers(t *testing.T) {
	path := writeConfig(t, fileFormat{
		Host: "127.0.0.1", Port: 9000, Path: ".",
		Databases: []DatabaseEntry{{Name: "d1", Filename: "d1.json"}},
	})
	c, err := Load(path)
	require.NoError(t, err)

	require.True(t, c.Exists("d1"))
	require.False(t, c.Exists("u1"))
}
