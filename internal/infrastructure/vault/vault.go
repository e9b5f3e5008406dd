// Package vault encrypts portal passwords at rest.
//
// Tokens have the form "hex(iv):hex(ciphertext)" where the ciphertext is
// AES-256-CBC with PKCS#7 padding and the key is sha256(passphrase).
// Changing the passphrase makes every stored token undecryptable.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const ivLength = aes.BlockSize

// FormatError means the token is not two hex parts joined by ':'.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "vault: malformed token: " + e.Reason
}

// LengthError means the IV part does not decode to 16 bytes.
type LengthError struct {
	Got int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("vault: initialization vector must be %d bytes, got %d", ivLength, e.Got)
}

// KeyMismatchError means the cipher rejected the ciphertext: wrong
// passphrase or corrupted data.
type KeyMismatchError struct{}

func (e *KeyMismatchError) Error() string {
	return "vault: ciphertext rejected (wrong key or corrupted data)"
}

var ErrEmptyPassphrase = errors.New("vault: passphrase is required")

type Vault struct {
	block cipher.Block
	rand  io.Reader
}

func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Vault{block: block, rand: rand.Reader}, nil
}

// Encrypt seals secret under a fresh random IV.
func (v *Vault) Encrypt(secret string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(v.rand, iv); err != nil {
		return "", fmt.Errorf("vault: generate iv: %w", err)
	}

	plain := pad([]byte(secret))
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(v.block, iv).CryptBlocks(out, plain)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (v *Vault) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return "", &FormatError{Reason: fmt.Sprintf("expected 2 parts, got %d", len(parts))}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &FormatError{Reason: "initialization vector is not hex"}
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &FormatError{Reason: "ciphertext is not hex"}
	}
	if len(iv) != ivLength {
		return "", &LengthError{Got: len(iv)}
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", &KeyMismatchError{}
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(v.block, iv).CryptBlocks(out, ct)

	plain, ok := unpad(out)
	if !ok {
		return "", &KeyMismatchError{}
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
