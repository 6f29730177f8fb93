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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/launix-de/jsondbserver/apperr"
)

// DefaultIterations is used whenever a caller does not specify its own
// PBKDF2 work factor.
const DefaultIterations = 100_000

const (
	saltSize      = 16
	ivSize        = 16
	hmacSize      = sha256.Size
	fernetVersion = 0x80
)

// PasswordEncrypt implements spec §4.A's password encryption: a
// Fernet-style AES-128-CBC+HMAC-SHA256 AEAD token keyed by
// PBKDF2-HMAC-SHA256(password, salt, iterations, 32 bytes), framed as
// b64url(salt(16B) || iterations(4B BE) || raw_encrypted).
func PasswordEncrypt(plaintext []byte, password string) ([]byte, error) {
	return passwordEncryptWithIterations(plaintext, password, DefaultIterations)
}

// PasswordEncryptWithIterations is PasswordEncrypt with an explicit
// PBKDF2 work factor, used by tests and by operators who want a
// stronger-than-default setting.
func PasswordEncryptWithIterations(plaintext []byte, password string, iterations int) ([]byte, error) {
	return passwordEncryptWithIterations(plaintext, password, iterations)
}

func passwordEncryptWithIterations(plaintext []byte, password string, iterations int) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "failed to generate salt")
	}

	signingKey, encryptionKey := deriveKeys(password, salt, iterations)

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "failed to generate iv")
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "failed to init cipher")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(time.Now().Unix()))

	signed := make([]byte, 0, 1+8+ivSize+len(ciphertext))
	signed = append(signed, fernetVersion)
	signed = append(signed, tsBuf[:]...)
	signed = append(signed, iv...)
	signed = append(signed, ciphertext...)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(signed)
	token := append(signed, mac.Sum(nil)...)

	var iterBuf [4]byte
	binary.BigEndian.PutUint32(iterBuf[:], uint32(iterations))

	frame := make([]byte, 0, saltSize+4+len(token))
	frame = append(frame, salt...)
	frame = append(frame, iterBuf[:]...)
	frame = append(frame, token...)

	out := make([]byte, base64.URLEncoding.EncodedLen(len(frame)))
	base64.URLEncoding.Encode(out, frame)
	return out, nil
}

// PasswordDecrypt reverses PasswordEncrypt. Any failure — short input,
// corrupted framing, or an HMAC mismatch (wrong password) — is reported
// uniformly as AuthIntegrityError (spec §4.A). The iteration count is
// read from the frame itself, so a caller need not know it in advance.
func PasswordDecrypt(wire []byte, password string) ([]byte, error) {
	frame := make([]byte, base64.URLEncoding.DecodedLen(len(wire)))
	n, err := base64.URLEncoding.Decode(frame, wire)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "malformed encrypted frame")
	}
	frame = frame[:n]

	minLen := saltSize + 4 + 1 + 8 + ivSize + hmacSize
	if len(frame) < minLen {
		return nil, apperr.New(apperr.AuthIntegrity, "encrypted frame too short")
	}

	salt := frame[:saltSize]
	iterations := int(binary.BigEndian.Uint32(frame[saltSize : saltSize+4]))
	token := frame[saltSize+4:]

	signingKey, encryptionKey := deriveKeys(password, salt, iterations)

	signed := token[:len(token)-hmacSize]
	gotMAC := token[len(token)-hmacSize:]

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(signed)
	wantMAC := mac.Sum(nil)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, apperr.New(apperr.AuthIntegrity, "authentication failed")
	}

	if signed[0] != fernetVersion {
		return nil, apperr.New(apperr.AuthIntegrity, "unsupported token version")
	}
	iv := signed[1+8 : 1+8+ivSize]
	ciphertext := signed[1+8+ivSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, apperr.New(apperr.AuthIntegrity, "malformed ciphertext")
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "failed to init cipher")
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthIntegrity, err, "malformed padding")
	}
	return plaintext, nil
}

// deriveKeys turns a password into the signing/encryption key pair a
// Fernet token is built from: a 32-byte PBKDF2 key split into two
// 16-byte halves, the same layout python's cryptography.fernet.Fernet
// uses for its urlsafe-base64 key material.
func deriveKeys(password string, salt []byte, iterations int) (signingKey, encryptionKey []byte) {
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	return key[:16], key[16:32]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.AuthIntegrity, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, apperr.New(apperr.AuthIntegrity, "invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, apperr.New(apperr.AuthIntegrity, "invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
