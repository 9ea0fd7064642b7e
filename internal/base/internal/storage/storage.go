// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package storage holds all cached credential information: access, refresh
// and ID tokens plus the account records they belong to. It can be augmented
// with third-party extensions to provide persistent storage: reads and writes
// in upper packages call Marshal() to take the entire in-memory representation
// and write it to storage, and Unmarshal() to replace the in-memory state with
// what was persisted. The serialized form is the contract shared with the
// other language implementations of this cache.
package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/logger"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/crosscloudid/tokencache/internal/shared"
)

// TokenResponse is the set of cache entries found for one silent request.
// Absent entries are zero values: not finding a credential is an expected
// outcome here, not an error.
type TokenResponse struct {
	RefreshToken accesstokens.RefreshToken
	IDToken      IDToken
	AccessToken  AccessToken
	Account      shared.Account
}

// Manager is an in-memory cache of credentials, account records and app
// metadata, indexed on typed composite keys. Readers may run concurrently
// with each other; every mutation (including Unmarshal) is exclusive with
// everything else. Upserts overwrite: the last write wins, no field merging.
type Manager struct {
	mu            sync.RWMutex
	accessTokens  map[Key]AccessToken
	refreshTokens map[Key]accesstokens.RefreshToken
	idTokens      map[Key]IDToken
	accounts      map[Key]shared.Account
	appMetaData   map[Key]AppMetaData

	log logger.LoggerInterface
}

// New is the constructor for Manager.
func New(log logger.LoggerInterface) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{log: log}
	m.reset()
	return m
}

// reset replaces all maps with empty ones. Callers must hold mu.
func (m *Manager) reset() {
	m.accessTokens = map[Key]AccessToken{}
	m.refreshTokens = map[Key]accesstokens.RefreshToken{}
	m.idTokens = map[Key]IDToken{}
	m.accounts = map[Key]shared.Account{}
	m.appMetaData = map[Key]AppMetaData{}
}

func checkAlias(alias string, aliases []string) bool {
	for _, v := range aliases {
		if alias == v {
			return true
		}
	}
	return false
}

// isMatchingScopes reports whether every requested scope appears in the
// cached entry's target. The cached target may be a superset.
func isMatchingScopes(scopesOne []string, scopesTwo string) bool {
	cached := strings.Split(scopesTwo, scopeSeparator)
	matched := 0
	for _, scope := range scopesOne {
		for _, otherScope := range cached {
			if strings.EqualFold(scope, otherScope) {
				matched++
				break
			}
		}
	}
	return matched == len(scopesOne)
}

// Read reads the cache entries relevant to one silent request: the access
// token for exactly the requested (environment, realm, client, scopes), the
// best refresh token for the home account within the requested cloud
// environment, and the matching ID token and account record. The whole read
// is one consistent snapshot.
func (m *Manager) Read(ctx context.Context, authParameters authority.AuthParams) (TokenResponse, error) {
	homeAccountID := authParameters.HomeAccountID
	realm := authParameters.AuthorityInfo.Tenant
	clientID := authParameters.ClientID
	scopes := NormalizeScopes(authParameters.Scopes)
	envAliases := authority.AliasesFor(authParameters.AuthorityInfo.Host)

	m.mu.RLock()
	defer m.mu.RUnlock()

	accessToken := m.readAccessToken(homeAccountID, envAliases, realm, clientID, scopes)
	idToken := m.readIDToken(homeAccountID, envAliases, realm, clientID)

	familyID := m.readAppMetaData(envAliases, clientID).FamilyID
	refreshToken := m.readRefreshToken(homeAccountID, envAliases, familyID, clientID)

	account := m.readAccount(homeAccountID, envAliases, realm)

	return TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Account:      account,
	}, nil
}

// Write writes a token response to the cache and returns the account record
// the tokens are stored with. All entries produced by one response (refresh,
// access, ID token, account record, app metadata) are inserted under a single
// critical section, so a concurrent reader never observes a partial write.
func (m *Manager) Write(ctx context.Context, authParameters authority.AuthParams, tokenResponse accesstokens.TokenResponse) (shared.Account, error) {
	homeAccountID := tokenResponse.ClientInfo.HomeAccountID()
	environment := authParameters.AuthorityInfo.Host
	realm := authParameters.AuthorityInfo.Tenant
	clientID := authParameters.ClientID
	cachedAt := time.Now()

	var (
		refreshToken accesstokens.RefreshToken
		accessToken  AccessToken
		idToken      IDToken
		account      shared.Account
	)

	if tokenResponse.HasRefreshToken() {
		refreshToken = accesstokens.NewRefreshToken(homeAccountID, environment, clientID, tokenResponse.RefreshToken, tokenResponse.FamilyID)
	}

	if tokenResponse.HasAccessToken() {
		accessToken = NewAccessToken(
			homeAccountID,
			environment,
			realm,
			clientID,
			cachedAt,
			tokenResponse.ExpiresOn,
			tokenResponse.ExtExpiresOn,
			tokenResponse.GrantedScopes,
			tokenResponse.AccessToken,
		)
		// A token we would never serve is not worth caching. The rest of the
		// response is still written; the drop is logged, never silent.
		if err := accessToken.Validate(); err != nil {
			m.log.Log(ctx, logger.Warn, "dropping unusable access token from cache write",
				"home_account_id", homeAccountID, "environment", environment, "error", err.Error())
			accessToken = AccessToken{}
		}
	}

	idTokenJwt := tokenResponse.IDToken
	if !idTokenJwt.IsZero() {
		idToken = NewIDToken(homeAccountID, environment, realm, clientID, idTokenJwt.RawToken)
		account = shared.NewAccount(
			homeAccountID,
			environment,
			realm,
			idTokenJwt.LocalAccountID(),
			authParameters.AuthorityInfo.AuthorityType,
			idTokenJwt.PreferredUsername,
		)
		account.GivenName = idTokenJwt.GivenName
		account.FamilyName = idTokenJwt.FamilyName
		account.Name = idTokenJwt.Name
		account.RawClientInfo = tokenResponse.RawClientInfo
	}

	appMetaData := NewAppMetaData(tokenResponse.FamilyID, clientID, environment)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !refreshToken.IsZero() {
		m.refreshTokens[refreshTokenKey(refreshToken)] = refreshToken
	}
	if !accessToken.IsZero() {
		m.accessTokens[accessToken.Key()] = accessToken
	}
	if !idToken.IsZero() {
		m.idTokens[idToken.Key()] = idToken
	}
	if !account.IsZero() {
		m.accounts[accountKey(account)] = account
	}
	m.appMetaData[appMetaData.Key()] = appMetaData

	return account, nil
}

func (m *Manager) readAccessToken(homeID string, envAliases []string, realm, clientID string, scopes []string) AccessToken {
	for _, at := range m.accessTokens {
		if at.HomeAccountID == homeID && at.Realm == realm && at.ClientID == clientID {
			if checkAlias(at.Environment, envAliases) && isMatchingScopes(scopes, at.Scopes) {
				return at
			}
		}
	}
	return AccessToken{}
}

func matchFamilyRefreshToken(rt accesstokens.RefreshToken, homeID string, envAliases []string) bool {
	return rt.HomeAccountID == homeID && checkAlias(rt.Environment, envAliases) && rt.FamilyID != ""
}

func matchClientIDRefreshToken(rt accesstokens.RefreshToken, homeID string, envAliases []string, clientID string) bool {
	return rt.HomeAccountID == homeID && checkAlias(rt.Environment, envAliases) && rt.ClientID == clientID
}

// readRefreshToken finds the best refresh token for a home account within
// one cloud environment. If the app is known to be part of a token family
// the family token is preferred, otherwise its own token is tried first and
// a family token second. envAliases always describes a single cloud
// environment, which is what keeps refresh tokens from crossing clouds.
func (m *Manager) readRefreshToken(homeID string, envAliases []string, familyID, clientID string) accesstokens.RefreshToken {
	byFamily := func(rt accesstokens.RefreshToken) bool {
		return matchFamilyRefreshToken(rt, homeID, envAliases)
	}
	byClient := func(rt accesstokens.RefreshToken) bool {
		return matchClientIDRefreshToken(rt, homeID, envAliases, clientID)
	}

	matchers := []func(rt accesstokens.RefreshToken) bool{byClient, byFamily}
	if familyID != "" {
		matchers = []func(rt accesstokens.RefreshToken) bool{byFamily, byClient}
	}

	for _, matcher := range matchers {
		for _, rt := range m.refreshTokens {
			if matcher(rt) {
				return rt
			}
		}
	}
	return accesstokens.RefreshToken{}
}

func (m *Manager) readIDToken(homeID string, envAliases []string, realm, clientID string) IDToken {
	for _, idt := range m.idTokens {
		if idt.HomeAccountID == homeID && idt.Realm == realm && idt.ClientID == clientID {
			if checkAlias(idt.Environment, envAliases) {
				return idt
			}
		}
	}
	return IDToken{}
}

func (m *Manager) readAccount(homeAccountID string, envAliases []string, realm string) shared.Account {
	for _, acc := range m.accounts {
		if acc.HomeAccountID == homeAccountID && checkAlias(acc.Environment, envAliases) && acc.Realm == realm {
			return acc
		}
	}
	return shared.Account{}
}

func (m *Manager) readAppMetaData(envAliases []string, clientID string) AppMetaData {
	for _, app := range m.appMetaData {
		if checkAlias(app.Environment, envAliases) && app.ClientID == clientID {
			return app
		}
	}
	return AppMetaData{}
}

// AllAccounts returns every account record in the cache, across all cloud
// environments and realms.
func (m *Manager) AllAccounts() ([]shared.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]shared.Account, 0, len(m.accounts))
	for _, v := range m.accounts {
		accounts = append(accounts, v)
	}
	return accounts, nil
}

// RemoveRefreshToken deletes one refresh token. Removing a token that is
// already gone is not an error.
func (m *Manager) RemoveRefreshToken(rt accesstokens.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refreshTokens, refreshTokenKey(rt))
	return nil
}

// RemoveAccount removes every credential and account record belonging to a
// home account, across every cloud environment and realm, and reports how
// many entries were removed. The operation is two-phase: matching keys are
// collected under a read lock, then deleted under the write lock. Removing a
// home account with no entries succeeds and removes nothing.
func (m *Manager) RemoveAccount(ctx context.Context, homeAccountID string) (int, error) {
	type victim struct {
		kind string
		key  Key
	}

	m.mu.RLock()
	var victims []victim
	for k, at := range m.accessTokens {
		if at.HomeAccountID == homeAccountID {
			victims = append(victims, victim{CredentialTypeAccessToken, k})
		}
	}
	for k, rt := range m.refreshTokens {
		if rt.HomeAccountID == homeAccountID {
			victims = append(victims, victim{CredentialTypeRefreshToken, k})
		}
	}
	for k, idt := range m.idTokens {
		if idt.HomeAccountID == homeAccountID {
			victims = append(victims, victim{CredentialTypeIDToken, k})
		}
	}
	for k, acc := range m.accounts {
		if acc.HomeAccountID == homeAccountID {
			victims = append(victims, victim{credentialTypeAccount, k})
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, v := range victims {
		switch v.kind {
		case CredentialTypeAccessToken:
			if _, ok := m.accessTokens[v.key]; ok {
				delete(m.accessTokens, v.key)
				removed++
			}
		case CredentialTypeRefreshToken:
			if _, ok := m.refreshTokens[v.key]; ok {
				delete(m.refreshTokens, v.key)
				removed++
			}
		case CredentialTypeIDToken:
			if _, ok := m.idTokens[v.key]; ok {
				delete(m.idTokens, v.key)
				removed++
			}
		case credentialTypeAccount:
			if _, ok := m.accounts[v.key]; ok {
				delete(m.accounts, v.key)
				removed++
			}
		}
	}
	if removed > 0 {
		m.log.Log(ctx, logger.Debug, "removed account from cache", "home_account_id", homeAccountID, "entries", removed)
	}
	return removed, nil
}

// contract renders the in-memory state into the serialization contract.
// Callers must hold mu for reading.
func (m *Manager) contract() *Contract {
	c := NewContract()
	for _, at := range m.accessTokens {
		c.AccessTokens[at.contractKey()] = at
	}
	for _, rt := range m.refreshTokens {
		c.RefreshTokens[rt.Key()] = rt
	}
	for _, idt := range m.idTokens {
		c.IDTokens[idt.contractKey()] = idt
	}
	for _, acc := range m.accounts {
		c.Accounts[acc.Key()] = acc
	}
	for _, app := range m.appMetaData {
		c.AppMetaData[app.contractKey()] = app
	}
	return c
}

// Marshal implements cache.Marshaler.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := json.Marshal(m.contract())
	if err != nil {
		return nil, errors.StoreError{Kind: errors.StoreCorrupt, Op: "marshal", Err: err}
	}
	return b, nil
}

// Unmarshal implements cache.Unmarshaler, replacing the in-memory state with
// the persisted contract. Typed keys are rebuilt from the entry fields; the
// contract's string keys are never parsed, so an ambiguous string key can at
// worst drop a duplicate, never mix two accounts.
func (m *Manager) Unmarshal(b []byte) error {
	contract := NewContract()
	if err := json.Unmarshal(b, contract); err != nil {
		return errors.StoreError{Kind: errors.StoreCorrupt, Op: "unmarshal", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	for _, at := range contract.AccessTokens {
		m.accessTokens[at.Key()] = at
	}
	for _, rt := range contract.RefreshTokens {
		m.refreshTokens[refreshTokenKey(rt)] = rt
	}
	for _, idt := range contract.IDTokens {
		m.idTokens[idt.Key()] = idt
	}
	for _, acc := range contract.Accounts {
		m.accounts[accountKey(acc)] = acc
	}
	for _, app := range contract.AppMetaData {
		m.appMetaData[app.Key()] = app
	}
	return nil
}
