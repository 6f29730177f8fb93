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
	"net"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/jsondbserver/catalog"
	"github.com/launix-de/jsondbserver/codec"
	"github.com/launix-de/jsondbserver/frame"
	"github.com/launix-de/jsondbserver/protocol"
	"github.com/launix-de/jsondbserver/registry"
)

type testClient struct {
	t       *testing.T
	conn    net.Conn
	encrypt bool
	passwd  string
	authKey string
}

func (c *testClient) sendObscured(v interface{}) {
	c.t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(c.t, err)
	require.NoError(c.t, frame.Write(c.conn, codec.Obscure(encoded)))
}

func (c *testClient) send(req protocol.Request) {
	c.t.Helper()
	encoded, err := json.Marshal(req)
	require.NoError(c.t, err)

	var outer []byte
	if c.encrypt {
		var err error
		outer, err = codec.PasswordEncrypt(encoded, c.passwd)
		require.NoError(c.t, err)
	} else {
		outer = codec.Obscure(encoded)
	}
	require.NoError(c.t, frame.Write(c.conn, outer))
}

func (c *testClient) recv() protocol.Response {
	c.t.Helper()
	raw, err := frame.Read(c.conn, 0)
	require.NoError(c.t, err)

	var decoded []byte
	if c.encrypt {
		decoded, err = codec.PasswordDecrypt(raw, c.passwd)
	} else {
		decoded, err = codec.Unobscure(raw)
	}
	require.NoError(c.t, err)

	var resp protocol.Response
	require.NoError(c.t, json.Unmarshal(decoded, &resp))
	return resp
}

func setupCatalog(t *testing.T) (*catalog.Catalog, string, string) {
	t.Helper()
	dir := t.TempDir()
	dbDir := filepath.Join(dir, "dbs")
	require.NoError(t, os.MkdirAll(dbDir, 0o755))

	passwd := string(codec.Obscure([]byte("u1" + "pw" + "u1")))
	cfg := map[string]interface{}{
		"host": "127.0.0.1",
		"port": 9000,
		"path": dbDir,
		"databases": []map[string]string{
			{"name": "d1", "filename": "d1.json"},
		},
		"users": []map[string]interface{}{
			{"user": "u1", "passwd": passwd, "access": []string{"d1"}},
		},
	}
	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, encoded, 0o600))

	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return cat, dbDir, "u1"
}

func authCredentials(user, password string) string {
	raw, _ := json.Marshal(map[string]string{"u": user, "p": password})
	tagged := append([]byte{0x00}, raw...)
	return string(codec.Obscure(tagged))
}

func startSession(t *testing.T, cat *catalog.Catalog) (net.Conn, *registry.Registry) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	reg := registry.New()
	s := New(serverConn, cat, reg, 0, zerolog.Nop())
	go s.Run()
	return clientConn, reg
}

func TestAuthThenAddThenGetByID(t *testing.T) {
	cat, dbDir, _ := setupCatalog(t)
	require.NoError(t, os.WriteFile(filepath.Join(dbDir, "d1.json"), []byte(`{"version":2,"keys":{}}`), 0o600))

	conn, _ := startSession(t, cat)
	defer conn.Close()

	client := &testClient{t: t, conn: conn}
	client.sendObscured(protocol.Request{
		Cmd: protocol.CmdAuth,
		Payload: mustRaw(t, protocol.AuthPayload{
			Credentials: authCredentials("u1", "pw"),
			Encrypt:     false,
		}),
	})
	resp := client.recv()
	require.Equal(t, "NoError", string(resp.Error))
	key, ok := resp.Data.(string)
	require.True(t, ok)
	require.NotEmpty(t, key)
	client.authKey = key

	client.send(protocol.Request{
		Cmd:     protocol.CmdUseDB,
		Auth:    key,
		Payload: mustRaw(t, protocol.UseDBPayload{DBName: "d1"}),
	})
	resp = client.recv()
	require.Equal(t, "NoError", string(resp.Error))

	client.send(protocol.Request{
		Cmd:     protocol.CmdAddSection,
		Auth:    key,
		Payload: mustRaw(t, protocol.AddSectionPayload{Section: "people", Use: true}),
	})
	resp = client.recv()
	require.Equal(t, "NoError", string(resp.Error))

	client.send(protocol.Request{
		Cmd:  protocol.CmdAdd,
		Auth: key,
		Payload: mustRaw(t, protocol.AddPayload{
			Section: "people",
			Data:    map[string]interface{}{"name": "A", "age": 30},
		}),
	})
	resp = client.recv()
	require.Equal(t, "NoError", string(resp.Error))
	id, ok := resp.Data.(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	client.send(protocol.Request{
		Cmd:     protocol.CmdGetByID,
		Auth:    key,
		Payload: mustRaw(t, protocol.GetByIDPayload{Section: "people", ID: id}),
	})
	resp = client.recv()
	require.Equal(t, "NoError", string(resp.Error))
}

func TestAuthWrongPasswordStaysUnauthenticated(t *testing.T) {
	cat, _, _ := setupCatalog(t)
	conn, _ := startSession(t, cat)
	defer conn.Close()

	client := &testClient{t: t, conn: conn}
	client.sendObscured(protocol.Request{
		Cmd: protocol.CmdAuth,
		Payload: mustRaw(t, protocol.AuthPayload{
			Credentials: authCredentials("u1", "wrong"),
		}),
	})
	resp := client.recv()
	require.Equal(t, "InvalidUserError", string(resp.Error))

	client.sendObscured(protocol.Request{
		Cmd: protocol.CmdAuth,
		Payload: mustRaw(t, protocol.AuthPayload{
			Credentials: authCredentials("u1", "pw"),
		}),
	})
	resp = client.recv()
	require.Equal(t, "NoError", string(resp.Error))
}

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	return json.RawMessage(encoded)
}
