////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package creds

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Data lengths.
const (
	// keyLen is the length of the key derived from the passphrase.
	keyLen = chacha20poly1305.KeySize

	// saltLen is the length of the salt. Recommended to be 16 bytes here:
	// https://datatracker.ietf.org/doc/html/draft-irtf-cfrg-argon2-04#section-3.1
	saltLen = 16
)

// Error messages.
const (
	readVaultErr      = "could not read vault file: %+v"
	vaultUnmarshalErr = "failed to unmarshal vault file: %+v"
	decryptTokenErr   = "could not decrypt stored token (wrong passphrase?): %+v"
	readNonceLenErr   = "read %d bytes, too short to decrypt"
	makeSaltErr       = "failed to generate salt: %+v"
	saltNumBytesErr   = "expected %d bytes for salt, found %d bytes"
)

// Vault stores the hub bearer token encrypted at rest so that the CLI never
// keeps it on disk in plaintext. The token is sealed with XChaCha20-Poly1305
// under a key derived from a user passphrase via Argon2id.
type Vault struct {
	path string
}

// vaultFile is the on-disk representation of the encrypted token.
type vaultFile struct {
	Salt   []byte      `json:"salt"`
	Params argonParams `json:"params"`
	Data   []byte      `json:"data"`
}

// argonParams contains the cost parameters used by Argon2.
type argonParams struct {
	Time    uint32 // Number of passes over the memory
	Memory  uint32 // Amount of memory used in KiB
	Threads uint8  // Number of threads used
}

// defaultParams returns the recommended general purposes parameters.
func defaultParams() argonParams {
	return argonParams{
		Time:    1,
		Memory:  64 * 1024, // ~64 MB
		Threads: 4,
	}
}

// NewVault returns a Vault backed by the file at the given path.
func NewVault(path string) *Vault {
	return &Vault{path: path}
}

// Store encrypts the token under the passphrase and writes it to the vault
// file, replacing any previous contents.
func (v *Vault) Store(token, passphrase string) error {
	salt, err := makeSalt(rand.Reader)
	if err != nil {
		return err
	}

	params := defaultParams()
	key := deriveKey(passphrase, salt, params)

	vf := vaultFile{
		Salt:   salt,
		Params: params,
		Data:   encryptToken([]byte(token), key, rand.Reader),
	}
	data, err := json.Marshal(&vf)
	if err != nil {
		return errors.Errorf("failed to marshal vault file: %+v", err)
	}

	return os.WriteFile(v.path, data, 0600)
}

// Load reads the vault file and decrypts the stored token with the
// passphrase.
func (v *Vault) Load(passphrase string) (string, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return "", errors.Errorf(readVaultErr, err)
	}

	var vf vaultFile
	if err = json.Unmarshal(data, &vf); err != nil {
		return "", errors.Errorf(vaultUnmarshalErr, err)
	}

	key := deriveKey(passphrase, vf.Salt, vf.Params)

	token, err := decryptToken(vf.Data, key)
	if err != nil {
		return "", errors.Errorf(decryptTokenErr, err)
	}

	return string(token), nil
}

// Provider returns a Provider that decrypts the vault on every call, so a
// token rewritten by a refresh flow is picked up on the next connection
// attempt.
func (v *Vault) Provider(passphrase string) Provider {
	return func() (string, error) {
		return v.Load(passphrase)
	}
}

// encryptToken encrypts the token using XChaCha20-Poly1305 with the nonce
// prepended to the ciphertext.
func encryptToken(data, key []byte, csprng io.Reader) []byte {
	chaCipher := initChaCha20Poly1305(key)
	nonce := make([]byte, chaCipher.NonceSize())
	if _, err := io.ReadFull(csprng, nonce); err != nil {
		jww.FATAL.Panicf("Could not generate nonce %+v", err)
	}
	return chaCipher.Seal(nonce, nonce, data, nil)
}

// decryptToken decrypts the nonce-prefixed ciphertext produced by
// encryptToken.
func decryptToken(data, key []byte) ([]byte, error) {
	chaCipher := initChaCha20Poly1305(key)
	nonceLen := chaCipher.NonceSize()
	if (len(data) - nonceLen) <= 0 {
		return nil, errors.Errorf(readNonceLenErr, len(data))
	}
	nonce, ciphertext := data[:nonceLen], data[nonceLen:]
	plaintext, err := chaCipher.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// initChaCha20Poly1305 returns a XChaCha20-Poly1305 cipher.AEAD that uses the
// given key hashed into a 256-bit key.
func initChaCha20Poly1305(key []byte) cipher.AEAD {
	keyHash := blake2b.Sum256(key)
	chaCipher, err := chacha20poly1305.NewX(keyHash[:])
	if err != nil {
		jww.FATAL.Panicf("Could not init XChaCha20Poly1305 mode: %+v", err)
	}
	return chaCipher
}

// deriveKey derives a key from a user supplied passphrase and a salt via the
// Argon2 algorithm.
func deriveKey(passphrase string, salt []byte, params argonParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt,
		params.Time, params.Memory, params.Threads, keyLen)
}

// makeSalt generates a salt used for key generation.
func makeSalt(csprng io.Reader) ([]byte, error) {
	salt := make([]byte, saltLen)
	n, err := csprng.Read(salt)
	if err != nil {
		return nil, errors.Errorf(makeSaltErr, err)
	} else if n != saltLen {
		return nil, errors.Errorf(saltNumBytesErr, saltLen, n)
	}
	return salt, nil
}
