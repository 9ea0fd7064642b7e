// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package accessor provides ready-made cache.ExportReplace implementations
// for persisting the token cache outside the process: the platform keyring
// and an encrypted file. Both are best-effort on the legacy Replace/Export
// surface and report errors on the context-aware one.
package accessor

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/crosscloudid/tokencache/cache"
	"github.com/crosscloudid/tokencache/errors"
)

// defaultTimeout bounds Replace and Export calls made through the legacy
// interface, which has no context parameter.
const defaultTimeout = 5 * time.Second

// Keyring persists the serialized cache in the operating system keyring
// (Keychain on macOS, wincred on Windows, the Secret Service on Linux).
// Keyring secrets are strings, so the opaque cache bytes are stored
// base64-encoded.
type Keyring struct {
	// Service and User name the keyring entry. Two clients using the same
	// pair share a cache.
	Service string
	User    string
}

var _ cache.ExportReplaceCtx = Keyring{}

// ReplaceCtx loads the cache from the keyring. A missing entry is not an
// error: the first run of an application has nothing stored yet and starts
// with an empty cache.
func (k Keyring) ReplaceCtx(ctx context.Context, cache cache.Unmarshaler, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	secret, err := keyring.Get(k.Service, k.User)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return errors.StoreError{Kind: errors.StoreIO, Op: "keyring get", Err: err}
	}
	data, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return errors.StoreError{Kind: errors.StoreCorrupt, Op: "keyring decode", Err: err}
	}
	if err := cache.Unmarshal(data); err != nil {
		return err
	}
	return nil
}

// ExportCtx writes the cache to the keyring.
func (k Keyring) ExportCtx(ctx context.Context, cache cache.Marshaler, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := cache.Marshal()
	if err != nil {
		return err
	}
	if err := keyring.Set(k.Service, k.User, base64.StdEncoding.EncodeToString(data)); err != nil {
		return errors.StoreError{Kind: errors.StoreIO, Op: "keyring set", Err: err}
	}
	return nil
}

// Replace implements cache.ExportReplace.
func (k Keyring) Replace(cache cache.Unmarshaler, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_ = k.ReplaceCtx(ctx, cache, key)
}

// Export implements cache.ExportReplace.
func (k Keyring) Export(cache cache.Marshaler, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_ = k.ExportCtx(ctx, cache, key)
}

// Delete removes the keyring entry. Deleting an entry that does not exist
// succeeds.
func (k Keyring) Delete() error {
	if err := keyring.Delete(k.Service, k.User); err != nil && err != keyring.ErrNotFound {
		return errors.StoreError{Kind: errors.StoreIO, Op: "keyring delete", Err: err}
	}
	return nil
}
