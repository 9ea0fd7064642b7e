// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package public

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// noNetworkClient fails any request: tests using it prove an operation never
// left the process.
func noNetworkClient(t *testing.T) *http.Client {
	t.Helper()
	return &http.Client{
		Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			t.Errorf("unexpected network call to %s", r.URL)
			return nil, errors.New("no network in this test")
		}),
	}
}

// rawIDToken builds a structurally valid unsigned JWT. Silent acquisition
// decodes the stored raw token to rebuild the ID token claims, so fixtures
// must carry one that parses.
func rawIDToken() string {
	enc := base64.RawURLEncoding
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	claims, _ := json.Marshal(map[string]string{
		"preferred_username": "user@example.com",
		"oid":                "objectID",
		"tid":                "utid",
	})
	return enc.EncodeToString(header) + "." + enc.EncodeToString(claims) + "."
}

func testTokenResponse() TokenResponse {
	return TokenResponse{
		AccessToken:   "interactive access token",
		RefreshToken:  "interactive refresh token",
		GrantedScopes: []string{"user.read"},
		ExpiresOn:     time.Now().Add(time.Hour),
		ExtExpiresOn:  time.Now().Add(time.Hour),
		ClientInfo:    accesstokens.ClientInfo{UID: "uid", UTID: "utid"},
		IDToken: accesstokens.IDToken{
			PreferredUsername: "user@example.com",
			Oid:               "objectID",
			TenantID:          "utid",
			RawToken:          rawIDToken(),
		},
	}
}

func TestNewValidatesAuthority(t *testing.T) {
	_, err := New("client-id", WithAuthority("http://login.microsoftonline.com/common"))
	require.Error(t, err)

	_, err = New("client-id", WithAuthority("https://evil.example.com/common"))
	require.Error(t, err)

	_, err = New("client-id")
	require.NoError(t, err)
}

func TestStoreTokenResponseThenSilent(t *testing.T) {
	client, err := New("client-id",
		WithAuthority("https://login.microsoftonline.com/utid"),
		WithHTTPClient(noNetworkClient(t)),
	)
	require.NoError(t, err)

	ctx := context.Background()

	// The application ran its interactive flow elsewhere and hands the
	// response over for caching.
	result, err := client.StoreTokenResponse(ctx, testTokenResponse(), []string{"user.read"}, "")
	require.NoError(t, err)
	require.Equal(t, "interactive access token", result.AccessToken)
	require.Equal(t, "uid.utid", result.Account.HomeAccountID)

	accounts, err := client.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	// Silent acquisition resolves from the cache with zero network traffic.
	got, err := client.AcquireTokenSilent(ctx, []string{"user.read"}, WithSilentAccount(accounts[0]))
	require.NoError(t, err)
	require.Equal(t, "interactive access token", got.AccessToken)
	require.Equal(t, "user@example.com", got.IDToken.PreferredUsername)
}

func TestAcquireTokenSilentNoAccount(t *testing.T) {
	client, err := New("client-id", WithHTTPClient(noNetworkClient(t)))
	require.NoError(t, err)

	_, err = client.AcquireTokenSilent(context.Background(), []string{"user.read"})
	require.True(t, errors.IsInteractionRequired(err), "got %v, want interaction required", err)
}

func TestRemoveAccount(t *testing.T) {
	client, err := New("client-id",
		WithAuthority("https://login.microsoftonline.com/utid"),
		WithHTTPClient(noNetworkClient(t)),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.StoreTokenResponse(ctx, testTokenResponse(), []string{"user.read"}, "")
	require.NoError(t, err)

	removed, err := client.RemoveAccount(ctx, "uid.utid")
	require.NoError(t, err)
	require.NotZero(t, removed)

	accounts, err := client.Accounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	_, err = client.Account(ctx, "uid.utid")
	require.ErrorIs(t, err, errors.ErrNotFound)

	// Removing an account that is gone removes nothing and is not an error.
	removed, err = client.RemoveAccount(ctx, "uid.utid")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestStoreTokenResponseCustomAuthority(t *testing.T) {
	client, err := New("client-id", WithHTTPClient(noNetworkClient(t)))
	require.NoError(t, err)

	ctx := context.Background()

	// Tokens from a sovereign-cloud interactive flow land under that cloud.
	_, err = client.StoreTokenResponse(ctx, testTokenResponse(), []string{"user.read"}, "https://login.microsoftonline.us/utid")
	require.NoError(t, err)

	accounts, err := client.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	// A silent request against the default worldwide authority cannot use
	// credentials cached for the US government cloud.
	_, err = client.AcquireTokenSilent(ctx, []string{"user.read"}, WithSilentAccount(accounts[0]))
	require.True(t, errors.IsInteractionRequired(err), "got %v, want interaction required", err)

	// Targeting the right cloud resolves from the cache.
	got, err := client.AcquireTokenSilent(ctx, []string{"user.read"},
		WithSilentAccount(accounts[0]),
		WithTenantAuthority("https://login.microsoftonline.us/utid"),
	)
	require.NoError(t, err)
	require.Equal(t, "interactive access token", got.AccessToken)
}
