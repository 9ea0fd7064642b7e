// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package base contains the client core shared by the public surface: the
// silent token resolver, the account listing built on the aggregator, and
// the cache persistence hooks. Base holds the attributes every public call
// needs and methods that act as shared calls.
package base

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crosscloudid/tokencache/cache"
	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/base/internal/storage"
	"github.com/crosscloudid/tokencache/internal/logger"
	"github.com/crosscloudid/tokencache/internal/multitenant"
	"github.com/crosscloudid/tokencache/internal/oauth"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/crosscloudid/tokencache/internal/shared"
)

const (
	// AuthorityPublicCloud is the default authority host.
	AuthorityPublicCloud = "https://login.microsoftonline.com/common"
	scopeSeparator       = " "
)

// manager provides the internal cache. It is defined to allow faking the
// cache in tests. In all production use it is a *storage.Manager.
type manager interface {
	Read(ctx context.Context, authParameters authority.AuthParams) (storage.TokenResponse, error)
	Write(ctx context.Context, authParameters authority.AuthParams, tokenResponse accesstokens.TokenResponse) (shared.Account, error)
	AllAccounts() ([]shared.Account, error)
	RemoveAccount(ctx context.Context, homeAccountID string) (int, error)
	RemoveRefreshToken(rt accesstokens.RefreshToken) error
}

type noopCacheAccessor struct{}

func (n noopCacheAccessor) Replace(cache cache.Unmarshaler, key string) {}
func (n noopCacheAccessor) Export(cache cache.Marshaler, key string)    {}

// AcquireTokenSilentParameters contains the parameters to acquire a token
// silently (from cache or by a refresh exchange).
type AcquireTokenSilentParameters struct {
	Scopes  []string
	Account multitenant.Account
	// Authority optionally retargets the request at another cloud
	// environment and/or realm. Empty means the client's default authority.
	Authority string
}

// AuthResult contains the results of one token acquisition operation.
type AuthResult struct {
	Account        shared.Account
	IDToken        accesstokens.IDToken
	AccessToken    string
	ExpiresOn      time.Time
	GrantedScopes  []string
	DeclinedScopes []string
}

// AuthResultFromStorage creates an AuthResult from entries found in the cache.
func AuthResultFromStorage(storageTokenResponse storage.TokenResponse) (AuthResult, error) {
	if err := storageTokenResponse.AccessToken.Validate(); err != nil {
		return AuthResult{}, fmt.Errorf("problem with access token in StorageTokenResponse: %w", err)
	}

	account := storageTokenResponse.Account
	accessToken := storageTokenResponse.AccessToken.Secret
	grantedScopes := strings.Split(storageTokenResponse.AccessToken.Scopes, scopeSeparator)

	var idToken accesstokens.IDToken
	if !storageTokenResponse.IDToken.IsZero() {
		var err error
		idToken, err = accesstokens.NewIDToken(storageTokenResponse.IDToken.Secret)
		if err != nil {
			return AuthResult{}, fmt.Errorf("problem decoding JWT token: %w", err)
		}
	}
	return AuthResult{
		Account:       account,
		IDToken:       idToken,
		AccessToken:   accessToken,
		ExpiresOn:     storageTokenResponse.AccessToken.ExpiresOn.T,
		GrantedScopes: grantedScopes,
	}, nil
}

// NewAuthResult creates an AuthResult from a token endpoint response.
func NewAuthResult(tokenResponse accesstokens.TokenResponse, account shared.Account) (AuthResult, error) {
	if len(tokenResponse.DeclinedScopes) > 0 {
		return AuthResult{}, fmt.Errorf("token response failed because declined scopes are present: %s", strings.Join(tokenResponse.DeclinedScopes, ","))
	}
	return AuthResult{
		Account:       account,
		IDToken:       tokenResponse.IDToken,
		AccessToken:   tokenResponse.AccessToken,
		ExpiresOn:     tokenResponse.ExpiresOn,
		GrantedScopes: tokenResponse.GrantedScopes,
	}, nil
}

// resolution is the outcome of matching a silent request against the cache.
// "Not found" outcomes are expected states here, not errors.
type resolution int

const (
	// resolutionCacheHit: a valid access token for exactly the requested
	// authority and scopes. The only zero-I/O path.
	resolutionCacheHit resolution = iota
	// resolutionRefresh: no usable access token, but a refresh token valid
	// for the requested cloud environment.
	resolutionRefresh
	// resolutionInteractionRequired: nothing in the cache can satisfy the
	// request.
	resolutionInteractionRequired
)

// resolve classifies what the cache read found.
func resolve(tr storage.TokenResponse) resolution {
	if !tr.AccessToken.IsZero() && tr.AccessToken.Validate() == nil {
		return resolutionCacheHit
	}
	if !tr.RefreshToken.IsZero() {
		return resolutionRefresh
	}
	return resolutionInteractionRequired
}

// Client is a base client that provides access to common methods and
// primitives used by the public client.
type Client struct {
	Token   *oauth.Client
	manager manager // *storage.Manager or fakeManager in tests

	AuthParams    authority.AuthParams // DO NOT EVER MAKE THIS A POINTER! Methods rely on copies.
	cacheAccessor cache.ExportReplace
	aggregator    multitenant.Aggregator
	rootPolicy    multitenant.RootPolicy
	log           logger.LoggerInterface
}

// Option is an optional argument to the New constructor.
type Option func(c *Client)

// WithCacheAccessor allows setting an external cache for persisting
// authentication tokens.
func WithCacheAccessor(ca cache.ExportReplace) Option {
	return func(c *Client) {
		if ca != nil {
			c.cacheAccessor = ca
		}
	}
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l logger.LoggerInterface) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRootPolicy sets the fallback tie-break used when aggregating accounts
// that never signed into their home tenant.
func WithRootPolicy(p multitenant.RootPolicy) Option {
	return func(c *Client) {
		c.rootPolicy = p
	}
}

// New is the constructor for Client.
func New(clientID string, authorityURI string, token *oauth.Client, options ...Option) (Client, error) {
	authInfo, err := authority.NewInfoFromAuthorityURI(authorityURI, true)
	if err != nil {
		return Client{}, err
	}
	authParams := authority.NewAuthParams(clientID, authInfo)
	client := Client{ // Note: this must stay a value type; callers depend on AuthParams copies.
		Token:         token,
		AuthParams:    authParams,
		cacheAccessor: noopCacheAccessor{},
		log:           logger.Nop(),
	}
	for _, o := range options {
		o(&client)
	}
	if client.manager == nil {
		client.manager = storage.New(client.log)
	}
	client.aggregator = multitenant.New(client.rootPolicy, client.log)
	return client, nil
}

// AcquireTokenSilent acquires a token for the requested authority and scopes
// from the cache, or with a refresh token exchange when only a refresh token
// is available. When neither can satisfy the request the returned error is an
// errors.InteractionRequiredError and the caller must run an interactive
// flow; this method never triggers UI itself.
func (b Client) AcquireTokenSilent(ctx context.Context, silent AcquireTokenSilentParameters) (AuthResult, error) {
	authParams := b.AuthParams // This is a copy, as we don't have a pointer receiver and authParams is not a pointer.
	if silent.Authority != "" {
		info, err := authority.NewInfoFromAuthorityURI(silent.Authority, b.AuthParams.AuthorityInfo.ValidateAuthority)
		if err != nil {
			return AuthResult{}, err
		}
		authParams = authParams.WithTarget(info)
	}
	authParams.Scopes = storage.NormalizeScopes(silent.Scopes)
	authParams.AuthorizationType = authority.ATRefreshToken
	authParams.HomeAccountID = silent.Account.HomeAccountID

	if s, ok := b.manager.(cache.Serializer); ok {
		b.cacheAccessor.Replace(s, silent.Account.HomeAccountID)
		defer b.cacheAccessor.Export(s, silent.Account.HomeAccountID)
	}

	storageTokenResponse, err := b.manager.Read(ctx, authParams)
	if err != nil {
		return AuthResult{}, err
	}

	switch resolve(storageTokenResponse) {
	case resolutionCacheHit:
		return AuthResultFromStorage(storageTokenResponse)

	case resolutionRefresh:
		// The exchange is a network call and deliberately happens with no
		// store lock held; Read returned a snapshot.
		token, err := b.Token.Refresh(ctx, authParams, storageTokenResponse.RefreshToken)
		if err != nil {
			if errors.IsInvalidGrant(err) {
				if rerr := b.manager.RemoveRefreshToken(storageTokenResponse.RefreshToken); rerr != nil {
					b.log.Log(ctx, logger.Err, "could not evict rejected refresh token", "error", rerr.Error())
				}
				b.log.Log(ctx, logger.Info, "refresh token rejected by token endpoint, evicted from cache",
					"home_account_id", authParams.HomeAccountID, "environment", authParams.AuthorityInfo.Host)
				return AuthResult{}, errors.InteractionRequiredError{
					Reason: "cached refresh token was rejected by the token endpoint",
					Err:    err,
				}
			}
			return AuthResult{}, err
		}
		return b.AuthResultFromToken(ctx, authParams, token, true)
	}

	return AuthResult{}, errors.InteractionRequiredError{
		Reason: fmt.Sprintf("no cached credential can satisfy a request for authority %q", authParams.AuthorityInfo.CanonicalAuthorityURI),
	}
}

// AuthResultFromToken stores a token response in the cache (when cacheWrite
// is set) and converts it into an AuthResult. This is the sole path that
// creates cache entries.
func (b Client) AuthResultFromToken(ctx context.Context, authParams authority.AuthParams, token accesstokens.TokenResponse, cacheWrite bool) (AuthResult, error) {
	if !cacheWrite {
		return NewAuthResult(token, shared.Account{})
	}

	if s, ok := b.manager.(cache.Serializer); ok {
		b.cacheAccessor.Replace(s, token.ClientInfo.HomeAccountID())
		defer b.cacheAccessor.Export(s, token.ClientInfo.HomeAccountID())
	}

	account, err := b.manager.Write(ctx, authParams, token)
	if err != nil {
		return AuthResult{}, err
	}
	return NewAuthResult(token, account)
}

// Accounts returns the logical accounts in the cache, one per home account,
// each carrying a profile per signed-in (environment, realm).
func (b Client) Accounts(ctx context.Context) ([]multitenant.Account, error) {
	if s, ok := b.manager.(cache.Serializer); ok {
		b.cacheAccessor.Replace(s, "")
		defer b.cacheAccessor.Export(s, "")
	}

	records, err := b.manager.AllAccounts()
	if err != nil {
		return nil, err
	}
	return b.aggregator.Aggregate(ctx, records), nil
}

// Account returns the logical account with the given home account id, or
// errors.ErrNotFound.
func (b Client) Account(ctx context.Context, homeAccountID string) (multitenant.Account, error) {
	if s, ok := b.manager.(cache.Serializer); ok {
		b.cacheAccessor.Replace(s, homeAccountID)
		defer b.cacheAccessor.Export(s, homeAccountID)
	}

	records, err := b.manager.AllAccounts()
	if err != nil {
		return multitenant.Account{}, err
	}
	return b.aggregator.Account(ctx, records, homeAccountID)
}

// RemoveAccount removes every credential and account record belonging to the
// home account, across every cloud environment and realm, and reports how
// many entries were removed. Removing an unknown account succeeds with zero
// removed.
func (b Client) RemoveAccount(ctx context.Context, homeAccountID string) (int, error) {
	if s, ok := b.manager.(cache.Serializer); ok {
		b.cacheAccessor.Replace(s, homeAccountID)
		defer b.cacheAccessor.Export(s, homeAccountID)
	}

	return b.manager.RemoveAccount(ctx, homeAccountID)
}
