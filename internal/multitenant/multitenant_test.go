// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package multitenant

import (
	"context"
	"testing"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/shared"
	"github.com/stretchr/testify/require"
)

func record(hid, env, realm, lid, username string) shared.Account {
	acc := shared.NewAccount(hid, env, realm, lid, "MSSTS", username)
	return acc
}

func TestAggregateRootFound(t *testing.T) {
	// One user signed into their home tenant plus a guest tenant in another
	// cloud. One logical account, two profiles, root claims from home.
	records := []shared.Account{
		record("uid.home", "login.microsoftonline.com", "home", "lid-home", "user@home.example"),
		record("uid.home", "login.microsoftonline.us", "guest", "lid-guest", "user@guest.example"),
	}

	agg := New(nil, nil)
	accounts := agg.Aggregate(context.Background(), records)
	require.Len(t, accounts, 1)

	acct := accounts[0]
	require.Equal(t, "uid.home", acct.HomeAccountID)
	require.Equal(t, RootFound, acct.Root)
	require.Equal(t, ProfileKey{Environment: "login.microsoftonline.com", Realm: "home"}, acct.RootProfile)
	require.Equal(t, "user@home.example", acct.PreferredUsername)
	require.Equal(t, "lid-home", acct.LocalAccountID)
	require.Len(t, acct.Profiles, 2)
	require.Contains(t, acct.Profiles, ProfileKey{Environment: "login.microsoftonline.us", Realm: "guest"})
}

func TestAggregateGuestOnlyFallback(t *testing.T) {
	// The user never signed into the home tenant. The fallback profile is
	// picked deterministically and the top-level claims stay empty; a guest
	// record's claims must never be promoted to root claims.
	records := []shared.Account{
		record("uid.home", "login.microsoftonline.com", "guest-b", "lid-b", "b@example.com"),
		record("uid.home", "login.microsoftonline.com", "guest-a", "lid-a", "a@example.com"),
	}

	agg := New(nil, nil)
	acct, err := agg.Account(context.Background(), records, "uid.home")
	require.NoError(t, err)

	require.Equal(t, RootMissingFallback, acct.Root)
	require.Equal(t, ProfileKey{Environment: "login.microsoftonline.com", Realm: "guest-a"}, acct.RootProfile)
	require.Empty(t, acct.PreferredUsername)
	require.Empty(t, acct.LocalAccountID)
	require.Empty(t, acct.Name)
	require.Len(t, acct.Profiles, 2)
}

func TestAggregateCustomRootPolicy(t *testing.T) {
	records := []shared.Account{
		record("uid.home", "login.microsoftonline.com", "guest-a", "lid-a", "a@example.com"),
		record("uid.home", "login.microsoftonline.us", "guest-z", "lid-z", "z@example.com"),
	}

	// Prefer the US government cloud regardless of ordering.
	policy := func(records []shared.Account) shared.Account {
		for _, r := range records {
			if r.Environment == "login.microsoftonline.us" {
				return r
			}
		}
		return records[0]
	}

	acct, err := New(policy, nil).Account(context.Background(), records, "uid.home")
	require.NoError(t, err)
	require.Equal(t, ProfileKey{Environment: "login.microsoftonline.us", Realm: "guest-z"}, acct.RootProfile)
}

func TestAggregateMalformedRecordsExcluded(t *testing.T) {
	records := []shared.Account{
		record("uid.home", "login.microsoftonline.com", "home", "lid", "user@example.com"),
		record("no-separator", "login.microsoftonline.com", "home", "lid", "broken@example.com"),
		record("", "login.microsoftonline.com", "home", "lid", "empty@example.com"),
	}

	accounts := New(nil, nil).Aggregate(context.Background(), records)
	require.Len(t, accounts, 1)
	require.Equal(t, "uid.home", accounts[0].HomeAccountID)
}

func TestAggregateDuplicateProfilesCollapse(t *testing.T) {
	records := []shared.Account{
		record("uid.home", "login.microsoftonline.com", "home", "lid", "first@example.com"),
		record("uid.home", "login.microsoftonline.com", "home", "lid", "second@example.com"),
	}

	acct, err := New(nil, nil).Account(context.Background(), records, "uid.home")
	require.NoError(t, err)
	require.Len(t, acct.Profiles, 1)
	// First record wins for the profile.
	require.Equal(t, "first@example.com", acct.Profiles[ProfileKey{Environment: "login.microsoftonline.com", Realm: "home"}].PreferredUsername)
}

func TestAggregateOrderedByHomeAccountID(t *testing.T) {
	records := []shared.Account{
		record("uid.zzz", "login.microsoftonline.com", "zzz", "lid", "z@example.com"),
		record("uid.aaa", "login.microsoftonline.com", "aaa", "lid", "a@example.com"),
	}

	accounts := New(nil, nil).Aggregate(context.Background(), records)
	require.Len(t, accounts, 2)
	require.Equal(t, "uid.aaa", accounts[0].HomeAccountID)
	require.Equal(t, "uid.zzz", accounts[1].HomeAccountID)
}

func TestAccountNotFound(t *testing.T) {
	_, err := New(nil, nil).Account(context.Background(), nil, "uid.missing")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAggregateAliasedHomeTenantDeterministic(t *testing.T) {
	// The home-tenant record exists under two aliases of the same cloud. The
	// root pick must be deterministic.
	records := []shared.Account{
		record("uid.home", "login.windows.net", "home", "lid", "win@example.com"),
		record("uid.home", "login.microsoftonline.com", "home", "lid", "ms@example.com"),
	}

	for i := 0; i < 5; i++ {
		acct, err := New(nil, nil).Account(context.Background(), records, "uid.home")
		require.NoError(t, err)
		require.Equal(t, RootFound, acct.Root)
		require.Equal(t, "login.microsoftonline.com", acct.RootProfile.Environment)
		require.Equal(t, "ms@example.com", acct.PreferredUsername)
	}
}
