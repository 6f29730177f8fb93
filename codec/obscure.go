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

// Package codec implements the two invertible, byte-oriented
// transformations of spec §4.A: Obscure (compress+b64, not
// confidential, only compact) and password encryption (a Fernet-style
// AEAD keyed by PBKDF2).
package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"io"

	"github.com/launix-de/jsondbserver/apperr"
)

// Obscure deflates input at the best compression level and base64-url
// encodes the result. It is not confidential; it exists to keep
// pre-authentication payloads and the stored password token compact.
func Obscure(input []byte) []byte {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		// BestCompression is always a valid level; this cannot happen.
		panic(err)
	}
	if _, err := w.Write(input); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	out := make([]byte, base64.URLEncoding.EncodedLen(buf.Len()))
	base64.URLEncoding.Encode(out, buf.Bytes())
	return out
}

// Unobscure reverses Obscure. A malformed base64 frame or a corrupted
// zlib stream is reported as AuthIntegrityError, since the only place
// Unobscure is used on attacker-controlled input is the pre-auth frame.
func Unobscure(input []byte) ([]byte, error) {
	deflated := make([]byte, base64.URLEncoding.DecodedLen(len(input)))
	n, err := base64.URLEncoding.Decode(deflated, input)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "malformed obscure frame")
	}
	r, err := zlib.NewReader(bytes.NewReader(deflated[:n]))
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "malformed obscure frame")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "malformed obscure frame")
	}
	return out, nil
}
