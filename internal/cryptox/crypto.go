// Package cryptox holds the symmetric primitives behind the credential store:
// session key generation, per-purpose subkey derivation and AES-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of session and derived keys (AES-256).
const KeySize = 32

const nonceSize = 12

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// NewKey returns a fresh random AES-256 key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey expands master into a KeySize subkey bound to info using
// HKDF-SHA256. Different info strings yield independent keys.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("empty master key")
	}
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptEntry serializes the given entry to JSON and encrypts it using AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each encryption. The ciphertext and nonce are
// returned separately.
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {

	// serializing JSON
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}

	// nonce
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptEntry decrypts the given ciphertext using AES-GCM and unmarshals
// the resulting JSON into v.
//
// The key and nonce must be the ones used by EncryptEntry. Authentication
// failure (wrong key, tampered data) is returned as an error.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

// SealString encrypts value and returns base64(nonce || ciphertext), a form
// that fits a text column or any string-valued store.
func SealString(value string, key []byte) (string, error) {
	ciphertext, nonce, err := EncryptEntry(value, key)
	if err != nil {
		return "", err
	}
	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenString reverses SealString.
func OpenString(sealed string, key []byte) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(blob) <= nonceSize {
		return "", ErrMalformedCiphertext
	}

	var value string
	if err := DecryptEntry(blob[nonceSize:], blob[:nonceSize], key, &value); err != nil {
		return "", err
	}
	return value, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
