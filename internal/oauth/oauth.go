// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package oauth is the facade over the token-endpoint operations the silent
// resolver delegates to. It exists so upper layers (and their tests) depend
// on a small surface instead of the HTTP plumbing.
package oauth

import (
	"context"
	"net/http"

	"github.com/crosscloudid/tokencache/internal/oauth/ops"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
)

// accessTokener allows faking the token endpoint in tests. It is implemented
// in production by ops/accesstokens.Client.
type accessTokener interface {
	FromRefreshToken(ctx context.Context, authParams authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error)
}

// Client provides tokens for the refresh grant.
type Client struct {
	AccessTokens accessTokener
}

// New is the constructor for Client. A nil httpClient uses the default
// shared client.
func New(httpClient *http.Client) *Client {
	rest := ops.New(httpClient)
	return &Client{AccessTokens: rest.AccessTokens}
}

// Refresh exchanges a refresh token against the authority in authParams.
// The exchange targets exactly the endpoints in authParams; callers are
// responsible for never handing this a refresh token from another cloud
// environment.
func (t *Client) Refresh(ctx context.Context, authParams authority.AuthParams, refreshToken accesstokens.RefreshToken) (accesstokens.TokenResponse, error) {
	authParams.AuthorizationType = authority.ATRefreshToken
	return t.AccessTokens.FromRefreshToken(ctx, authParams, refreshToken.Secret)
}
