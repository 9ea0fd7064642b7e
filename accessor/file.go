// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package accessor

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/crosscloudid/tokencache/cache"
	"github.com/crosscloudid/tokencache/errors"
)

// File layout: magic | salt | nonce | ciphertext. The salt feeds the KDF and
// is regenerated on every export, so the key differs between writes of the
// same passphrase.
var fileMagic = []byte("TKC1")

const (
	saltSize = 16

	// scrypt parameters. N is interactive-login strength; raising it slows
	// every Replace, which runs on the hot path of silent acquisition.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// EncryptedFile persists the serialized cache in a file encrypted with
// XChaCha20-Poly1305 under a key derived from Passphrase with scrypt. It is
// meant for headless hosts where no keyring is available.
type EncryptedFile struct {
	Path       string
	Passphrase []byte
}

var _ cache.ExportReplaceCtx = EncryptedFile{}

func (f EncryptedFile) deriveKey(salt []byte) ([]byte, error) {
	key, err := scrypt.Key(f.Passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.StoreError{Kind: errors.StoreIO, Op: "derive key", Err: err}
	}
	return key, nil
}

// ReplaceCtx loads and decrypts the cache file. A missing file is not an
// error; the cache simply starts empty. A file that cannot be parsed or
// authenticated is reported as corrupt rather than silently ignored, so
// callers can decide whether to discard it.
func (f EncryptedFile) ReplaceCtx(ctx context.Context, cache cache.Unmarshaler, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.StoreError{Kind: errors.StoreIO, Op: "read cache file", Err: err}
	}

	minLen := len(fileMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(blob) < minLen || !bytes.Equal(blob[:len(fileMagic)], fileMagic) {
		return errors.StoreError{Kind: errors.StoreCorrupt, Op: "read cache file", Err: fmt.Errorf("not a cache file or truncated header")}
	}
	salt := blob[len(fileMagic) : len(fileMagic)+saltSize]
	nonce := blob[len(fileMagic)+saltSize : minLen]
	ciphertext := blob[minLen:]

	aeadKey, err := f.deriveKey(salt)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "open cipher", Err: err}
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.StoreError{Kind: errors.StoreCorrupt, Op: "decrypt cache file", Err: err}
	}
	return cache.Unmarshal(plaintext)
}

// ExportCtx encrypts and writes the cache file. The write goes through a
// temporary file in the same directory followed by a rename, so a concurrent
// reader never sees a half-written cache.
func (f EncryptedFile) ExportCtx(ctx context.Context, cache cache.Marshaler, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	plaintext, err := cache.Marshal()
	if err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "generate salt", Err: err}
	}
	aeadKey, err := f.deriveKey(salt)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "open cipher", Err: err}
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "generate nonce", Err: err}
	}

	blob := make([]byte, 0, len(fileMagic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, fileMagic...)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".tokencache-*")
	if err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "create temp cache file", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.StoreError{Kind: errors.StoreIO, Op: "write cache file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.StoreError{Kind: errors.StoreIO, Op: "close cache file", Err: err}
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return errors.StoreError{Kind: errors.StoreIO, Op: "rename cache file", Err: err}
	}
	return nil
}

// Replace implements cache.ExportReplace.
func (f EncryptedFile) Replace(cache cache.Unmarshaler, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_ = f.ReplaceCtx(ctx, cache, key)
}

// Export implements cache.ExportReplace.
func (f EncryptedFile) Export(cache cache.Marshaler, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_ = f.ExportCtx(ctx, cache, key)
}
