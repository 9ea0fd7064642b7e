// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package multitenant collapses the per-(environment, realm) account records
// in the cache into logical accounts. One physical user signed into several
// tenants, possibly across sovereign clouds, has many records sharing a home
// account id; callers want to see one account with a profile per tenant.
package multitenant

import (
	"context"
	"sort"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/logger"
	"github.com/crosscloudid/tokencache/internal/shared"
)

// ProfileKey identifies one tenant profile: a realm inside one cloud
// environment.
type ProfileKey struct {
	Environment string
	Realm       string
}

// TenantProfile carries the per-tenant claims of a logical account for one
// (environment, realm).
type TenantProfile struct {
	Environment       string
	Realm             string
	LocalAccountID    string
	PreferredUsername string
	GivenName         string
	FamilyName        string
	Name              string
}

// RootResolution says how the root record of a logical account was chosen.
type RootResolution int

const (
	// RootFound means a record from the user's home tenant existed and
	// supplied the top-level claims.
	RootFound RootResolution = iota
	// RootMissingFallback means the user is only signed into guest tenants.
	// A fallback profile was selected deterministically and the top-level
	// claims are absent. This is a normal state, not an error.
	RootMissingFallback
)

// Account is the logical, aggregated view of one home account's sign-ins
// across tenants and clouds. It is computed on every read and never
// persisted.
type Account struct {
	HomeAccountID string

	// Top-level claims, taken from the home-tenant record. All empty when
	// Root is RootMissingFallback; callers must not assume they are set.
	LocalAccountID    string
	PreferredUsername string
	GivenName         string
	FamilyName        string
	Name              string

	Root RootResolution
	// RootProfile is the profile the root record came from: the home tenant
	// when Root is RootFound, the fallback policy's pick otherwise.
	RootProfile ProfileKey

	// Profiles holds one entry per distinct (environment, realm) the home
	// account is signed into.
	Profiles map[ProfileKey]TenantProfile
}

// IsZero checks whether the account is the zero value.
func (a Account) IsZero() bool {
	return a.HomeAccountID == "" && a.Profiles == nil
}

// RootPolicy selects the fallback root record when a home account has no
// home-tenant record. Implementations must be deterministic. The records
// slice is never empty.
type RootPolicy func(records []shared.Account) shared.Account

// LexicographicRootPolicy picks the record with the smallest
// (environment, realm) pair. It is the default fallback tie-break.
func LexicographicRootPolicy(records []shared.Account) shared.Account {
	best := records[0]
	for _, r := range records[1:] {
		if r.Environment < best.Environment ||
			(r.Environment == best.Environment && r.Realm < best.Realm) {
			best = r
		}
	}
	return best
}

// Aggregator builds logical accounts from raw account records.
type Aggregator struct {
	policy RootPolicy
	log    logger.LoggerInterface
}

// New is the constructor for Aggregator. A nil policy uses
// LexicographicRootPolicy.
func New(policy RootPolicy, log logger.LoggerInterface) Aggregator {
	if policy == nil {
		policy = LexicographicRootPolicy
	}
	if log == nil {
		log = logger.Nop()
	}
	return Aggregator{policy: policy, log: log}
}

// Aggregate groups records by home account id and returns one logical
// account per group, ordered by home account id. Records with a malformed
// home account id violate a cache invariant: they are logged and excluded,
// and never fail the listing. The pass is linear in the number of records.
func (a Aggregator) Aggregate(ctx context.Context, records []shared.Account) []Account {
	groups := make(map[string][]shared.Account)
	order := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := shared.HomeTenant(rec.HomeAccountID); !ok {
			a.log.Log(ctx, logger.Warn, "excluding cache entry from aggregation",
				"error", errors.InvariantError{Entry: rec.Key(), Reason: "malformed home account id"}.Error())
			continue
		}
		if _, ok := groups[rec.HomeAccountID]; !ok {
			order = append(order, rec.HomeAccountID)
		}
		groups[rec.HomeAccountID] = append(groups[rec.HomeAccountID], rec)
	}
	sort.Strings(order)

	accounts := make([]Account, 0, len(order))
	for _, homeID := range order {
		accounts = append(accounts, a.build(homeID, groups[homeID]))
	}
	return accounts
}

// Account returns the logical account for one home account id.
// errors.ErrNotFound is returned when no record with that id exists.
func (a Aggregator) Account(ctx context.Context, records []shared.Account, homeAccountID string) (Account, error) {
	for _, acct := range a.Aggregate(ctx, records) {
		if acct.HomeAccountID == homeAccountID {
			return acct, nil
		}
	}
	return Account{}, errors.ErrNotFound
}

// build assembles one logical account from the records of one group. records
// is never empty and every record carries a well-formed home account id.
func (a Aggregator) build(homeAccountID string, records []shared.Account) Account {
	utid, _ := shared.HomeTenant(homeAccountID)

	profiles := make(map[ProfileKey]TenantProfile, len(records))
	for _, rec := range records {
		key := ProfileKey{Environment: rec.Environment, Realm: rec.Realm}
		if _, ok := profiles[key]; ok {
			// Duplicate sign-ins into the same tenant collapse to one profile.
			continue
		}
		profiles[key] = TenantProfile{
			Environment:       rec.Environment,
			Realm:             rec.Realm,
			LocalAccountID:    rec.LocalAccountID,
			PreferredUsername: rec.PreferredUsername,
			GivenName:         rec.GivenName,
			FamilyName:        rec.FamilyName,
			Name:              rec.Name,
		}
	}

	acct := Account{
		HomeAccountID: homeAccountID,
		Profiles:      profiles,
	}

	var root shared.Account
	found := false
	for _, rec := range records {
		if rec.Realm != utid {
			continue
		}
		// Aliased environments can hold the home-tenant record twice; take
		// the lexicographically smallest so the result is deterministic.
		if !found || rec.Environment < root.Environment {
			root = rec
			found = true
		}
	}

	if found {
		acct.Root = RootFound
		acct.RootProfile = ProfileKey{Environment: root.Environment, Realm: root.Realm}
		acct.LocalAccountID = root.LocalAccountID
		acct.PreferredUsername = root.PreferredUsername
		acct.GivenName = root.GivenName
		acct.FamilyName = root.FamilyName
		acct.Name = root.Name
		return acct
	}

	fallback := a.policy(records)
	acct.Root = RootMissingFallback
	acct.RootProfile = ProfileKey{Environment: fallback.Environment, Realm: fallback.Realm}
	return acct
}
