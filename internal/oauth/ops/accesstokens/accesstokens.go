// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package accesstokens exposes a client for getting tokens from a token
// endpoint. The only grant this module exchanges itself is refresh_token;
// interactive grants happen outside and their responses are handed to the
// cache already decoded.
package accesstokens

import (
	"context"
	"net/url"
	"strings"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/internal/grant"
)

const (
	grantType     = "grant_type"
	clientID      = "client_id"
	clientInfo    = "client_info"
	clientInfoVal = "1"
)

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error
}

// Client represents the REST calls to token endpoints.
type Client struct {
	// Comm provides the HTTP transport.
	Comm urlFormCaller
}

// FromRefreshToken uses a refresh token to get a new set of tokens from the
// authority in authParams.
func (c Client) FromRefreshToken(ctx context.Context, authParams authority.AuthParams, refreshToken string) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.RefreshToken)
	qv.Set(clientID, authParams.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	qv.Set("refresh_token", refreshToken)
	addScopeQueryParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

func (c Client) doTokenResp(ctx context.Context, authParams authority.AuthParams, qv url.Values) (TokenResponse, error) {
	resp := TokenResponseJSONPayload{}
	if err := c.Comm.URLFormCall(ctx, authParams.Endpoints.TokenEndpoint, qv, &resp); err != nil {
		return TokenResponse{}, classifyTransportErr(err)
	}
	return NewTokenResponse(authParams, resp)
}

// classifyTransportErr maps transport failures onto the token error taxonomy.
// A reply we reached but couldn't use is a server error; anything else is a
// network error.
func classifyTransportErr(err error) error {
	var ce errors.CallErr
	if errors.As(err, &ce) && ce.Resp != nil {
		return errors.TokenError{Kind: errors.Server, Err: err}
	}
	return errors.TokenError{Kind: errors.Network, Err: err}
}

// openid required to get an id token
// offline_access required to get a refresh token
// profile required to get the client_info field back
var detectDefaultScopes = map[string]bool{
	"openid":         true,
	"offline_access": true,
	"profile":        true,
}

var defaultScopes = []string{"openid", "offline_access", "profile"}

func addScopeQueryParam(queryParams url.Values, authParameters authority.AuthParams) {
	scopes := make([]string, 0, len(authParameters.Scopes)+len(defaultScopes))
	for _, scope := range authParameters.Scopes {
		s := strings.TrimSpace(scope)
		if s == "" || detectDefaultScopes[s] {
			continue
		}
		scopes = append(scopes, s)
	}
	scopes = append(scopes, defaultScopes...)

	queryParams.Set("scope", strings.Join(scopes, " "))
}
