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
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/apperr"
)

// fileStorage persists one database's schema as a single JSON file,
// the same "one schema.json per database directory" shape the teacher
// uses (storage/persistence-files.go), generalized here to spec §4.B's
// replace-on-write contract: write the new full JSON to a temp file in
// the same directory, then atomically rename it over the old file, so
// a crash mid-write never leaves a half-written database file.
type fileStorage struct {
	path string
}

func newFileStorage(path string) *fileStorage {
	return &fileStorage{path: path}
}

func (f *fileStorage) read() (*schema, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newSchema(), nil
		}
		return nil, apperr.Wrap(apperr.SchemaType, err, "failed to read database file")
	}
	s := newSchema()
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *fileStorage) write(s *schema) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "failed to create database directory")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "failed to serialize database")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.SchemaType, err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to write database file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to flush database file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.SchemaType, err, "failed to replace database file")
	}
	return nil
}

func (f *fileStorage) remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.SchemaType, err, "failed to remove database file")
	}
	return nil
}
