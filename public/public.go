// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

/*
Package public provides a client for applications that sign in users and keep
their tokens in a local cache: the cache-first silent acquisition flow, the
aggregated account listing, and account removal.

The client never runs an interactive sign-in itself. When nothing in the
cache can satisfy a request, AcquireTokenSilent returns an error satisfying
errors.IsInteractionRequired and the application decides how to prompt the
user; the resulting token response is handed back through
StoreTokenResponse.
*/
package public

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/crosscloudid/tokencache/cache"
	"github.com/crosscloudid/tokencache/internal/base"
	"github.com/crosscloudid/tokencache/internal/logger"
	"github.com/crosscloudid/tokencache/internal/multitenant"
	"github.com/crosscloudid/tokencache/internal/oauth"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/crosscloudid/tokencache/internal/shared"
)

// AuthResult contains the results of one token acquisition operation.
// For example AcquireTokenSilent() or StoreTokenResponse().
type AuthResult = base.AuthResult

// Account is the aggregated view of one signed-in user across every tenant
// and cloud environment present in the cache.
type Account = multitenant.Account

// TenantProfile carries the per-tenant claims of an Account.
type TenantProfile = multitenant.TenantProfile

// ProfileKey identifies one tenant profile of an Account: a tenant inside
// one cloud environment.
type ProfileKey = multitenant.ProfileKey

// RootResolution says how an Account's root profile was chosen.
type RootResolution = multitenant.RootResolution

const (
	// RootFound means the account's top-level claims come from its home
	// tenant record.
	RootFound = multitenant.RootFound
	// RootMissingFallback means the user is only signed into guest tenants;
	// the root profile is a deterministic fallback and the top-level claims
	// are empty.
	RootMissingFallback = multitenant.RootMissingFallback
)

// AccountRecord is one raw per-(environment, tenant) account entry as stored
// in the cache, before aggregation into an Account.
type AccountRecord = shared.Account

// RootPolicy picks the fallback root profile for an Account whose user never
// signed into their home tenant. Implementations must be deterministic; the
// records slice is never empty.
type RootPolicy = multitenant.RootPolicy

// TokenResponse is a successful response from the token endpoint, obtained
// by the application through its own interactive flow and ingested with
// StoreTokenResponse.
type TokenResponse = accesstokens.TokenResponse

// Options configures the Client's behavior.
type Options struct {
	// Authority is the URL of the token authority, for example
	// "https://login.microsoftonline.com/<your tenant>".
	Authority string

	// Accessor persists the cache outside the process. See the accessor
	// package for keyring and encrypted-file implementations.
	Accessor cache.ExportReplace

	// HTTPClient performs the refresh-grant calls. nil uses the default
	// shared client.
	HTTPClient *http.Client

	// Logger receives cache diagnostics. nil discards them.
	Logger *slog.Logger

	// RootPolicy breaks the tie when listing an account that never signed
	// into its home tenant. nil picks the lexicographically smallest
	// (environment, realm) profile.
	RootPolicy RootPolicy
}

func (p *Options) validate() error {
	u, err := url.Parse(p.Authority)
	if err != nil {
		return fmt.Errorf("the Authority(%s) does not parse as a valid URL", p.Authority)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("the Authority(%s) does not appear to use https", p.Authority)
	}
	return nil
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithAuthority allows for a custom authority to be set. This must be a valid
// https url.
func WithAuthority(authority string) Option {
	return func(o *Options) {
		o.Authority = authority
	}
}

// WithCache provides an accessor that will read and write authentication data
// to an externally managed cache.
func WithCache(accessor cache.ExportReplace) Option {
	return func(o *Options) {
		o.Accessor = accessor
	}
}

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// WithLogger routes cache diagnostics to the given logger. The default
// discards them.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRootPolicy sets the fallback used when aggregating guest-only accounts.
func WithRootPolicy(p RootPolicy) Option {
	return func(o *Options) {
		o.RootPolicy = p
	}
}

// Client is the authentication client for public applications as defined in
// the package doc. A new Client should be created PER SERVICE USER.
type Client struct {
	base base.Client
}

// New is the constructor for Client.
func New(clientID string, options ...Option) (Client, error) {
	opts := Options{
		Authority: base.AuthorityPublicCloud,
	}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return Client{}, err
	}

	baseOpts := []base.Option{}
	if opts.Accessor != nil {
		baseOpts = append(baseOpts, base.WithCacheAccessor(opts.Accessor))
	}
	if opts.Logger != nil {
		baseOpts = append(baseOpts, base.WithLogger(logger.New(opts.Logger)))
	}
	if opts.RootPolicy != nil {
		baseOpts = append(baseOpts, base.WithRootPolicy(opts.RootPolicy))
	}

	b, err := base.New(clientID, opts.Authority, oauth.New(opts.HTTPClient), baseOpts...)
	if err != nil {
		return Client{}, err
	}
	return Client{base: b}, nil
}

// acquireTokenSilentOptions are all the optional settings to an
// AcquireTokenSilent() call.
type acquireTokenSilentOptions struct {
	account   Account
	authority string
}

// AcquireSilentOption is implemented by options for AcquireTokenSilent.
type AcquireSilentOption func(o *acquireTokenSilentOptions)

// WithSilentAccount uses the passed account during an AcquireTokenSilent()
// call.
func WithSilentAccount(account Account) AcquireSilentOption {
	return func(o *acquireTokenSilentOptions) {
		o.account = account
	}
}

// WithTenantAuthority overrides the client's authority for one call, for
// example to target a guest tenant or a sovereign cloud the account is also
// signed into. Tokens acquired this way are cached under the requested
// authority, never the default one.
func WithTenantAuthority(authority string) AcquireSilentOption {
	return func(o *acquireTokenSilentOptions) {
		o.authority = authority
	}
}

// AcquireTokenSilent acquires a token from either the cache or using a
// refresh token. The returned error satisfies errors.IsInteractionRequired
// when the application must run an interactive flow instead; that includes
// the case where the cached refresh token was rejected by the token
// endpoint.
func (pca Client) AcquireTokenSilent(ctx context.Context, scopes []string, opts ...AcquireSilentOption) (AuthResult, error) {
	o := acquireTokenSilentOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	silentParameters := base.AcquireTokenSilentParameters{
		Scopes:    scopes,
		Account:   o.account,
		Authority: o.authority,
	}
	return pca.base.AcquireTokenSilent(ctx, silentParameters)
}

// StoreTokenResponse ingests a token response the application obtained
// through its own interactive flow, writing every returned credential to the
// cache in one atomic step. The optional authority must be the one the
// interactive request was issued against; empty means the client's default.
func (pca Client) StoreTokenResponse(ctx context.Context, token TokenResponse, scopes []string, authorityURI string) (AuthResult, error) {
	authParams := pca.base.AuthParams
	if authorityURI != "" {
		info, err := authority.NewInfoFromAuthorityURI(authorityURI, pca.base.AuthParams.AuthorityInfo.ValidateAuthority)
		if err != nil {
			return AuthResult{}, err
		}
		authParams = authParams.WithTarget(info)
	}
	authParams.Scopes = scopes
	authParams.AuthorizationType = authority.ATAuthCode
	authParams.HomeAccountID = token.ClientInfo.HomeAccountID()
	return pca.base.AuthResultFromToken(ctx, authParams, token, true)
}

// Accounts gets all the accounts in the token cache, one logical account per
// user with a profile per signed-in tenant. If there are no accounts in the
// cache the returned slice is empty.
func (pca Client) Accounts(ctx context.Context) ([]Account, error) {
	return pca.base.Accounts(ctx)
}

// Account gets the account in the cache with the given home account id, or
// an error satisfying errors.Is(err, errors.ErrNotFound).
func (pca Client) Account(ctx context.Context, homeAccountID string) (Account, error) {
	return pca.base.Account(ctx, homeAccountID)
}

// RemoveAccount signs the account out and forgets it from token cache,
// removing every credential the account owns across all tenants and clouds.
// It reports the number of cache entries removed; removing an account that
// is not in the cache removes nothing and is not an error.
func (pca Client) RemoveAccount(ctx context.Context, homeAccountID string) (int, error) {
	return pca.base.RemoveAccount(ctx, homeAccountID)
}
