// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	internalTime "github.com/crosscloudid/tokencache/internal/json/types/time"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/shared"
)

// Credential type names as they appear in the serialization contract.
const (
	CredentialTypeAccessToken  = "AccessToken"
	CredentialTypeRefreshToken = "RefreshToken"
	CredentialTypeIDToken      = "IdToken"

	credentialTypeAccount     = "Account"
	credentialTypeAppMetaData = "AppMetaData"
)

const scopeSeparator = " "

// Key is the typed composite key the in-memory cache is indexed on. Lookups
// and deletes compare struct fields, so one home account id can never
// prefix-match another the way concatenated string keys allow. Keys are
// rendered to the contract's string form only when marshaling.
type Key struct {
	HomeAccountID  string
	Environment    string
	CredentialType string
	ClientID       string
	Realm          string
	Target         string
}

// NormalizeScopes lower-cases, de-duplicates and sorts a scope set. Two
// requests for the same scopes always produce the same credential target.
func NormalizeScopes(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AccessToken is the representation of an access token for encoding to
// storage. Access tokens are tenant-scoped: Realm is always the issuing
// tenant and a token is never served for any other realm.
type AccessToken struct {
	HomeAccountID     string            `json:"home_account_id,omitempty"`
	Environment       string            `json:"environment,omitempty"`
	Realm             string            `json:"realm,omitempty"`
	CredentialType    string            `json:"credential_type,omitempty"`
	ClientID          string            `json:"client_id,omitempty"`
	Secret            string            `json:"secret,omitempty"`
	Scopes            string            `json:"target,omitempty"`
	ExpiresOn         internalTime.Unix `json:"expires_on,omitempty"`
	ExtendedExpiresOn internalTime.Unix `json:"extended_expires_on,omitempty"`
	CachedAt          internalTime.Unix `json:"cached_at,omitempty"`
}

// NewAccessToken is the constructor for AccessToken. Timestamps are truncated
// to whole seconds: the contract stores unix epochs, so anything finer would
// not survive a marshal and unmarshal.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes []string, token string) AccessToken {
	return AccessToken{
		HomeAccountID:     homeID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    CredentialTypeAccessToken,
		ClientID:          clientID,
		Secret:            token,
		Scopes:            strings.Join(NormalizeScopes(scopes), scopeSeparator),
		CachedAt:          internalTime.Unix{T: cachedAt.UTC().Truncate(time.Second)},
		ExpiresOn:         internalTime.Unix{T: expiresOn.UTC().Truncate(time.Second)},
		ExtendedExpiresOn: internalTime.Unix{T: extendedExpiresOn.UTC().Truncate(time.Second)},
	}
}

// Key outputs the typed key this entry is stored under.
func (a AccessToken) Key() Key {
	return Key{
		HomeAccountID:  a.HomeAccountID,
		Environment:    a.Environment,
		CredentialType: a.CredentialType,
		ClientID:       a.ClientID,
		Realm:          a.Realm,
		Target:         a.Scopes,
	}
}

// IsZero determines if AccessToken is the zero value.
func (a AccessToken) IsZero() bool {
	return a == AccessToken{}
}

// contractKey renders the cross-language string key for serialization.
func (a AccessToken) contractKey() string {
	return strings.Join(
		[]string{a.HomeAccountID, a.Environment, a.CredentialType, a.ClientID, a.Realm, a.Scopes},
		shared.CacheKeySeparator,
	)
}

// Validate validates that this AccessToken can be used.
func (a AccessToken) Validate() error {
	if a.CachedAt.T.After(time.Now()) {
		return errors.New("access token isn't valid, it was cached at a future time")
	}
	if a.ExpiresOn.T.Before(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("access token is expired")
	}
	if a.CachedAt.T.IsZero() {
		return fmt.Errorf("access token does not have CachedAt set")
	}
	return nil
}

// IDToken is the representation of an ID token for encoding to storage.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	Realm          string `json:"realm,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) IDToken {
	return IDToken{
		HomeAccountID:  homeID,
		Environment:    env,
		Realm:          realm,
		CredentialType: CredentialTypeIDToken,
		ClientID:       clientID,
		Secret:         idToken,
	}
}

// Key outputs the typed key this entry is stored under.
func (id IDToken) Key() Key {
	return Key{
		HomeAccountID:  id.HomeAccountID,
		Environment:    id.Environment,
		CredentialType: id.CredentialType,
		ClientID:       id.ClientID,
		Realm:          id.Realm,
	}
}

// IsZero determines if IDToken is the zero value.
func (id IDToken) IsZero() bool {
	return id == IDToken{}
}

func (id IDToken) contractKey() string {
	return strings.Join(
		[]string{id.HomeAccountID, id.Environment, id.CredentialType, id.ClientID, id.Realm},
		shared.CacheKeySeparator,
	)
}

// refreshTokenKey builds the typed key for a refresh token. There is no
// realm component: a refresh token is valid for every tenant inside its
// cloud environment. Family tokens key on the family id so sibling apps
// share the entry.
func refreshTokenKey(rt accesstokens.RefreshToken) Key {
	fourth := rt.FamilyID
	if fourth == "" {
		fourth = rt.ClientID
	}
	return Key{
		HomeAccountID:  rt.HomeAccountID,
		Environment:    rt.Environment,
		CredentialType: rt.CredentialType,
		ClientID:       fourth,
	}
}

// accountKey builds the typed key for an account record.
func accountKey(acc shared.Account) Key {
	return Key{
		HomeAccountID:  acc.HomeAccountID,
		Environment:    acc.Environment,
		CredentialType: credentialTypeAccount,
		Realm:          acc.Realm,
	}
}

// AppMetaData is the representation of application metadata for encoding to
// storage. It records whether a client participates in a token family for
// one environment.
type AppMetaData struct {
	FamilyID    string `json:"family_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// NewAppMetaData is the constructor for AppMetaData.
func NewAppMetaData(familyID, clientID, environment string) AppMetaData {
	return AppMetaData{
		FamilyID:    familyID,
		ClientID:    clientID,
		Environment: environment,
	}
}

// Key outputs the typed key this entry is stored under.
func (a AppMetaData) Key() Key {
	return Key{
		Environment:    a.Environment,
		CredentialType: credentialTypeAppMetaData,
		ClientID:       a.ClientID,
	}
}

func (a AppMetaData) contractKey() string {
	return strings.Join(
		[]string{credentialTypeAppMetaData, a.Environment, a.ClientID},
		shared.CacheKeySeparator,
	)
}

// Contract is the JSON structure that is written to any storage medium when
// serializing the cache. The layout is shared with the other language
// implementations of this cache and cannot change.
type Contract struct {
	AccessTokens  map[string]AccessToken               `json:"AccessToken"`
	RefreshTokens map[string]accesstokens.RefreshToken `json:"RefreshToken"`
	IDTokens      map[string]IDToken                   `json:"IdToken"`
	Accounts      map[string]shared.Account            `json:"Account"`
	AppMetaData   map[string]AppMetaData               `json:"AppMetadata"`
}

// NewContract is the constructor for Contract.
func NewContract() *Contract {
	return &Contract{
		AccessTokens:  map[string]AccessToken{},
		RefreshTokens: map[string]accesstokens.RefreshToken{},
		IDTokens:      map[string]IDToken{},
		Accounts:      map[string]shared.Account{},
		AppMetaData:   map[string]AppMetaData{},
	}
}
