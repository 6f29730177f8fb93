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
package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launix-de/jsondbserver/apperr"
)

func TestObscureRoundTrip(t *testing.T) {
	for _, input := range [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte(`{"u":"alice","p":"secret"}`),
		make([]byte, 1<<16),
	} {
		got, err := Unobscure(Obscure(input))
		require.NoError(t, err)
		require.Equal(t, input, got)
	}
}

func TestUnobscureMalformed(t *testing.T) {
	_, err := Unobscure([]byte("not valid obscure data!!"))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.AuthIntegrity, ae.Kind)
}

func TestPasswordEncryptRoundTrip(t *testing.T) {
	msg := []byte("hello world")
	wire, err := PasswordEncrypt(msg, "correct horse battery staple")
	require.NoError(t, err)

	got, err := PasswordDecrypt(wire, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestPasswordDecryptWrongPassword(t *testing.T) {
	wire, err := PasswordEncrypt([]byte("hello"), "pw1")
	require.NoError(t, err)

	_, err = PasswordDecrypt(wire, "pw2")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.AuthIntegrity, ae.Kind)
}

func TestPasswordEncryptAcceptsNonDefaultIterations(t *testing.T) {
	wire, err := PasswordEncryptWithIterations([]byte("hi"), "pw", 5_000)
	require.NoError(t, err)

	got, err := PasswordDecrypt(wire, "pw")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), got)
}

func TestPasswordDecryptShortInput(t *testing.T) {
	_, err := PasswordDecrypt([]byte("AA"), "pw")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.AuthIntegrity, ae.Kind)
}
