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

// Package session implements the per-connection state machine of spec
// §4.F: pre-auth -> authenticated, framing the outer codec transform
// around a JSON {cmd, auth, payload} envelope and dispatching to the
// engine/catalog layers. Grounded on the teacher's connection handler
// in server-node-golang (one goroutine per connection, a small request
// loop, zerolog per request), generalized to the source's command
// vocabulary and auth handshake.
package session

import (
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/catalog"
	json "github.com/goccy/go-json"

	"github.com/launix-de/jsondbserver/codec"
	"github.com/launix-de/jsondbserver/engine"
	"github.com/launix-de/jsondbserver/frame"
	"github.com/launix-de/jsondbserver/protocol"
	"github.com/launix-de/jsondbserver/registry"
)

// State names the three positions of spec §4.F's state machine.
type State int

const (
	Unauthenticated State = iota
	Active
	Closed
)

// Session holds the mutable state of one client connection.
type Session struct {
	conn         net.Conn
	catalog      *catalog.Catalog
	registry     *registry.Registry
	maxFrameSize int64
	log          zerolog.Logger

	state     State
	principal *catalog.Principal
	encrypt   bool

	dbName   string
	db       *engine.Engine
	section  string
}

// New wraps conn in a fresh, unauthenticated Session.
func New(conn net.Conn, cat *catalog.Catalog, reg *registry.Registry, maxFrameSize int64, log zerolog.Logger) *Session {
	return &Session{
		conn:         conn,
		catalog:      cat,
		registry:     reg,
		maxFrameSize: maxFrameSize,
		log:          log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		state:        Unauthenticated,
	}
}

// Run drives the connection until a framing failure, I/O error, or the
// peer closing the socket. It always closes conn before returning.
func (s *Session) Run() error {
	defer s.conn.Close()

	for s.state != Closed {
		raw, err := frame.Read(s.conn, s.maxFrameSize)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			s.log.Debug().Err(err).Msg("frame read failed, closing connection")
			return err
		}

		decoded, err := s.decodeFrame(raw)
		if err != nil {
			s.log.Debug().Err(err).Msg("failed to decode frame, closing connection")
			return err
		}

		var req protocol.Request
		if err := json.Unmarshal(decoded, &req); err != nil {
			s.log.Debug().Err(err).Msg("malformed request JSON, closing connection")
			return err
		}

		resp := s.dispatch(req)

		encodedResp, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		outFrame, err := s.encodeFrame(encodedResp)
		if err != nil {
			return err
		}
		if err := frame.Write(s.conn, outFrame); err != nil {
			return err
		}
	}
	return nil
}

// decodeFrame reverses the outer codec transform for the current state
// (spec §4.F): always obscure before auth, password-encryption after
// auth iff the session negotiated encrypt=true.
func (s *Session) decodeFrame(raw []byte) ([]byte, error) {
	if s.state == Unauthenticated || !s.encrypt {
		return codec.Unobscure(raw)
	}
	return codec.PasswordDecrypt(raw, s.principal.Passwd)
}

func (s *Session) encodeFrame(payload []byte) ([]byte, error) {
	if s.state == Unauthenticated || !s.encrypt {
		return codec.Obscure(payload), nil
	}
	return codec.PasswordEncrypt(payload, s.principal.Passwd)
}

// dispatch routes one parsed request to its handler. Every error a
// handler returns is wrapped into a {error, data} response (spec §7);
// only framing-level failures (handled in Run, before this point) close
// the connection.
func (s *Session) dispatch(req protocol.Request) protocol.Response {
	log := s.log.With().Str("cmd", string(req.Cmd)).Logger()

	if s.state == Unauthenticated {
		if req.Cmd != protocol.CmdAuth {
			log.Warn().Msg("command received before authentication")
			return protocol.Fail(apperr.New(apperr.InvalidState, "session is not authenticated"))
		}
		data, err := s.handleAuth(req.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("authentication failed")
			return protocol.Fail(err)
		}
		log.Info().Str("user", s.principal.User).Msg("authenticated")
		return protocol.OK(data)
	}

	if req.Auth != s.principal.Key {
		log.Warn().Msg("session key mismatch")
		return protocol.Fail(apperr.New(apperr.InvalidState, "invalid session key"))
	}

	data, err := s.handleCommand(req.Cmd, req.Payload)
	if err != nil {
		log.Debug().Err(err).Msg("command failed")
		return protocol.Fail(err)
	}
	return protocol.OK(data)
}
