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

// Package catalog is the process-wide config file of spec §4.B: listen
// endpoint, database directory, the list of known databases and their
// files, and the user/ACL table. Grounded on the teacher's
// storage/settings.go (one process-wide settings struct, one mutex,
// onexit-flushed on shutdown), generalized from a single settings blob
// to the source's add_db/del_db/auth_user/ACL surface.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/codec"
	"github.com/launix-de/jsondbserver/idgen"
)

// DatabaseEntry is one row of the catalog's "databases" list.
type DatabaseEntry struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// UserEntry is one row of the catalog's "users" list. Passwd is always
// the obscured form of user++p++user (spec §4.A/§4.B), never the raw
// password.
type UserEntry struct {
	User   string   `json:"user"`
	Passwd string   `json:"passwd"`
	Access []string `json:"access"`
}

type fileFormat struct {
	Host      string          `json:"host"`
	Port      int             `json:"port"`
	Path      string          `json:"path"`
	Databases []DatabaseEntry `json:"databases"`
	Users     []UserEntry     `json:"users"`
}

// Catalog is the process-wide, internally synchronized config (spec
// §4.B): one instance shared by every session and by the server's
// accept loop.
type Catalog struct {
	mu   sync.Mutex
	path string
	data fileFormat
}

// Load reads the catalog file at path. A missing file is a
// MissingConfig error, since the server cannot start without one.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.MissingConfig, fmt.Sprintf("config file %q does not exist", path))
		}
		return nil, apperr.Wrap(apperr.MissingConfig, err, "failed to read config file")
	}
	var data fileFormat
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperr.Wrap(apperr.MissingConfig, err, "config file is not valid JSON")
	}
	return &Catalog{path: path, data: data}, nil
}

func (c *Catalog) save() error {
	encoded, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "failed to serialize catalog")
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to write config file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to flush config file")
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to replace config file")
	}
	return nil
}

// Host and Port expose the listen endpoint to the server at startup.
func (c *Catalog) Host() string { return c.data.Host }
func (c *Catalog) Port() int    { return c.data.Port }

// DatabasePath resolves the on-disk path of database name, relative to
// the process working directory.
func (c *Catalog) DatabasePath(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, db := range c.data.Databases {
		if db.Name == name {
			return filepath.Join(c.data.Path, db.Filename)
		}
	}
	return filepath.Join(c.data.Path, name+".json")
}

// Databases returns a snapshot of the known database names.
func (c *Catalog) Databases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.data.Databases))
	for i, db := range c.data.Databases {
		out[i] = db.Name
	}
	sort.Strings(out)
	return out
}

// Exists reports whether dbname is a known database. The source
// iterates the wrong collection for this check (spec §9: "exists(dbname)
// must look in self._config['databases'] and compare db['name']"); this
// implementation uses the corrected semantics directly.
func (c *Catalog) Exists(dbname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOfDB(dbname) >= 0
}

func (c *Catalog) indexOfDB(dbname string) int {
	for i, db := range c.data.Databases {
		if db.Name == dbname {
			return i
		}
	}
	return -1
}

func (c *Catalog) indexOfUser(user string) int {
	for i, u := range c.data.Users {
		if u.User == user {
			return i
		}
	}
	return -1
}

// AddDB registers a new database name, owned by user, and persists the
// catalog. Argument order is canonicalized to (dbname, user) per spec
// §9 (the source's add_db argument order varies across versions).
func (c *Catalog) AddDB(dbname, user string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOfDB(dbname) >= 0 {
		return apperr.New(apperr.DatabaseAlreadyExists, fmt.Sprintf("database %q already exists", dbname))
	}
	c.data.Databases = append(c.data.Databases, DatabaseEntry{Name: dbname, Filename: dbname + ".json"})

	if ui := c.indexOfUser(user); ui >= 0 {
		c.data.Users[ui].Access = append(c.data.Users[ui].Access, dbname)
	}

	return c.save()
}

// DelDB removes dbname from the catalog, deletes its backing file and
// revokes it from every user's access list.
func (c *Catalog) DelDB(dbname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOfDB(dbname)
	if idx < 0 {
		return apperr.New(apperr.DatabaseNotFound, fmt.Sprintf("database %q not found", dbname))
	}
	filename := c.data.Databases[idx].Filename
	c.data.Databases = append(c.data.Databases[:idx], c.data.Databases[idx+1:]...)

	for i := range c.data.Users {
		c.data.Users[i].Access = removeString(c.data.Users[i].Access, dbname)
	}

	if err := os.Remove(filepath.Join(c.data.Path, filename)); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.SchemaType, err, "failed to remove database file")
	}

	return c.save()
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, item := range list {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}

// Authorize reports whether principal is allowed to use database
// dbname, enforcing the users[].access ACL of spec §3.
func (c *Catalog) Authorize(principal *Principal, dbname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ui := c.indexOfUser(principal.User)
	if ui < 0 {
		return false
	}
	for _, db := range c.data.Users[ui].Access {
		if db == dbname {
			return true
		}
	}
	return false
}

// credentials is the decoded shape of an AUTH payload's obscured
// blob: {"u": user, "p": password}.
type credentials struct {
	User     string `json:"u"`
	Password string `json:"p"`
}

// Principal is what a successful AuthUser call hands the session: the
// authenticated user's name, access list, raw password (needed to key
// post-auth encryption) and a freshly minted session key.
type Principal struct {
	User    string
	Access  []string
	Passwd  string
	Key     string
}

// AuthUser implements spec §4.B's auth_user: credentialsBlob is the
// AUTH payload's "credentials" field as received on the wire — an
// obscured blob whose first decoded byte is an unused protocol tag
// (spec §6, preserved for forward compatibility). It decodes the
// remainder to {u, p}, recomputes obscure(u+p+u), and looks for the
// user whose stored Passwd matches.
func (c *Catalog) AuthUser(credentialsBlob []byte) (*Principal, error) {
	decoded, err := codec.Unobscure(credentialsBlob)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 1 {
		return nil, apperr.New(apperr.InvalidUser, "empty credentials")
	}
	raw := decoded[1:]
	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, apperr.Wrap(apperr.InvalidUser, err, "malformed credentials")
	}

	want := string(codec.Obscure([]byte(creds.User + creds.Password + creds.User)))

	c.mu.Lock()
	idx := c.indexOfUser(creds.User)
	var match *UserEntry
	if idx >= 0 && c.data.Users[idx].Passwd == want {
		u := c.data.Users[idx]
		match = &u
	}
	c.mu.Unlock()

	if match == nil {
		return nil, apperr.New(apperr.InvalidUser, "no user matches the supplied credentials")
	}

	sessionKey := string(codec.Obscure([]byte(idgen.UUID4() + match.User)))
	return &Principal{
		User:   match.User,
		Access: append([]string(nil), match.Access...),
		Passwd: creds.Password,
		Key:    sessionKey,
	}, nil
}
