// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package shared holds the account record type and home-account identity
// helpers that both the storage layer and the public surface need.
package shared

import (
	"net/http"
	"strings"
)

const (
	// CacheKeySeparator is used when rendering cache keys into the
	// cross-language serialization contract.
	CacheKeySeparator = "-"

	// homeAccountIDSeparator splits a home account id into its uid and utid
	// (home tenant) halves.
	homeAccountIDSeparator = "."
)

// Account is one per-(environment, realm) account record as it exists in the
// cache. A user signed into three tenants has three of these sharing one
// HomeAccountID; the multitenant package collapses them into a single
// logical account.
type Account struct {
	HomeAccountID     string `json:"home_account_id,omitempty"`
	Environment       string `json:"environment,omitempty"`
	Realm             string `json:"realm,omitempty"`
	LocalAccountID    string `json:"local_account_id,omitempty"`
	AuthorityType     string `json:"authority_type,omitempty"`
	PreferredUsername string `json:"username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	Name              string `json:"name,omitempty"`
	AlternativeID     string `json:"alternative_account_id,omitempty"`
	RawClientInfo     string `json:"client_info,omitempty"`
}

// NewAccount creates an account record.
func NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username string) Account {
	return Account{
		HomeAccountID:     homeAccountID,
		Environment:       env,
		Realm:             realm,
		LocalAccountID:    localAccountID,
		AuthorityType:     authorityType,
		PreferredUsername: username,
	}
}

// Key renders the contract key for storing this account record. It is used
// only at the serialization boundary; in-memory lookups match on struct
// fields, never on this string.
func (acc Account) Key() string {
	return strings.Join([]string{acc.HomeAccountID, acc.Environment, acc.Realm}, CacheKeySeparator)
}

// IsZero checks whether the account is the zero value.
func (acc Account) IsZero() bool {
	return acc == Account{}
}

// HomeTenant extracts the home tenant id (utid) from a home account id of
// the form "<uid>.<utid>". ok is false when the id is malformed.
func HomeTenant(homeAccountID string) (utid string, ok bool) {
	i := strings.LastIndex(homeAccountID, homeAccountIDSeparator)
	if i <= 0 || i == len(homeAccountID)-1 {
		return "", false
	}
	return homeAccountID[i+1:], true
}

// DefaultClient is our default shared HTTP client.
var DefaultClient = &http.Client{}
