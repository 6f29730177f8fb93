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

// Package server is the accept loop of spec §4.G: binds the catalog's
// listen endpoint, spawns one session per connection, and shares one
// catalog and one engine registry across every connection. Grounded on
// the teacher's storage/settings.go use of dc0d/onexit for flushing
// state on shutdown, generalized here to commit every open engine; the
// per-connection lifecycle is coordinated with golang.org/x/sync/errgroup
// the way a worker-pool-per-accept loop is built elsewhere in the pack.
package server

import (
	"context"
	"net"
	"strconv"

	"github.com/dc0d/onexit"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/jsondbserver/catalog"
	"github.com/launix-de/jsondbserver/registry"
	"github.com/launix-de/jsondbserver/session"
)

// Server binds the catalog's listen endpoint and serves sessions
// against a shared catalog and engine registry until its context is
// canceled.
type Server struct {
	cat          *catalog.Catalog
	reg          *registry.Registry
	maxFrameSize int64
	log          zerolog.Logger
}

// New builds a Server over cat, with a fresh, empty engine registry.
func New(cat *catalog.Catalog, maxFrameSize int64, log zerolog.Logger) *Server {
	return &Server{cat: cat, reg: registry.New(), maxFrameSize: maxFrameSize, log: log}
}

// Serve binds (host, port) and accepts connections until ctx is
// canceled, at which point it stops accepting, waits for every active
// session to finish, and commits every open engine (spec §4.G).
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cat.Host(), strconv.Itoa(s.cat.Port()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", addr).Msg("listening")

	onexit.Register(func() {
		s.flushEngines()
	})

	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				group.Wait()
				s.flushEngines()
				return nil
			default:
				return err
			}
		}
		group.Go(func() error {
			sess := session.New(conn, s.cat, s.reg, s.maxFrameSize, s.log)
			if err := sess.Run(); err != nil {
				s.log.Debug().Err(err).Msg("session ended")
			}
			return nil
		})
	}
}

func (s *Server) flushEngines() {
	for name, eng := range s.reg.All() {
		if err := eng.Commit(); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("failed to flush database on shutdown")
		}
	}
}

