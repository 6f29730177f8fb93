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

// Package apperr holds the error taxonomy shared by the engine, the
// catalog and the session handler (spec §7). Every error carries a
// Kind, which is the only thing that ever reaches the wire, and wraps
// an underlying cause with github.com/pkg/errors so the operator-facing
// log line keeps a stack trace.
package apperr

import (
	"github.com/pkg/errors"
)

type Kind string

const (
	NoError Kind = "NoError"

	MissingConfig Kind = "MissingConfigError"
	InvalidUser   Kind = "InvalidUserError"
	AuthIntegrity Kind = "AuthIntegrityError"

	DatabaseNotFound      Kind = "DatabaseNotFoundError"
	DatabaseAlreadyExists Kind = "DatabaseAlreadyExistsError"

	SectionNotFound      Kind = "SectionNotFoundError"
	SectionAlreadyExists Kind = "SectionAlreadyExistsError"

	IdDoesNotExist Kind = "IdDoesNotExistError"
	UnknownKey     Kind = "UnknownKeyError"
	SchemaType     Kind = "SchemaTypeError"

	MalformedQuery       Kind = "MalformedQueryError"
	MalformedIdGenerator Kind = "MalformedIdGeneratorError"
	TypeError            Kind = "TypeError"

	InvalidState Kind = "InvalidStateError"
)

// Error is the concrete error type carried through the engine and
// catalog layers. Message is human-readable; Kind is the only field the
// wire protocol serializes.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a fresh Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.New(message)}
}

// Wrap attaches a Kind to an existing cause, keeping it reachable
// through Unwrap for logs while the wire response only ever reports Kind
// and Message (spec §7: "never out-of-band").
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// As extracts an *Error from err, the way the session handler turns any
// dispatched-command error into a wire Kind.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf reports the Kind of err, or a generic TypeError if err does not
// carry one — used as a last line of defense in the session handler so
// an unexpected error never panics the connection.
func KindOf(err error) Kind {
	if err == nil {
		return NoError
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return TypeError
}
