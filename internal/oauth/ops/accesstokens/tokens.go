// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package accesstokens

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/crosscloudid/tokencache/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// ClientInfo is the decoded client_info parameter from a token response. Its
// two halves make up the home account id.
type ClientInfo struct {
	UID  string `json:"uid"`
	UTID string `json:"utid"`
}

// HomeAccountID creates the home account ID.
func (c ClientInfo) HomeAccountID() string {
	if c.UID == "" || c.UTID == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s", c.UID, c.UTID)
}

// IDToken consists of all the information used to identify a user.
type IDToken struct {
	PreferredUsername string
	GivenName         string
	FamilyName        string
	Name              string
	Oid               string
	TenantID          string
	Subject           string
	UPN               string
	Email             string
	AlternativeID     string
	Issuer            string
	Audience          string
	ExpirationTime    int64
	IssuedAt          int64
	NotBefore         int64
	RawToken          string
}

type idTokenClaims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Name              string `json:"name"`
	Oid               string `json:"oid"`
	TenantID          string `json:"tid"`
	UPN               string `json:"upn"`
	Email             string `json:"email"`
	AlternativeID     string `json:"alternative_id"`
}

var idTokenParser = jwt.NewParser()

// NewIDToken creates an IDToken instance from a raw JWT. The signature is not
// verified here: validation belongs to the flow that first obtained the
// token, the cache only extracts claims.
func NewIDToken(raw string) (IDToken, error) {
	claims := &idTokenClaims{}
	if _, _, err := idTokenParser.ParseUnverified(raw, claims); err != nil {
		return IDToken{}, fmt.Errorf("id token returned from server is invalid: %w", err)
	}
	t := IDToken{
		PreferredUsername: claims.PreferredUsername,
		GivenName:         claims.GivenName,
		FamilyName:        claims.FamilyName,
		Name:              claims.Name,
		Oid:               claims.Oid,
		TenantID:          claims.TenantID,
		Subject:           claims.Subject,
		UPN:               claims.UPN,
		Email:             claims.Email,
		AlternativeID:     claims.AlternativeID,
		Issuer:            claims.Issuer,
		RawToken:          raw,
	}
	if len(claims.Audience) > 0 {
		t.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		t.ExpirationTime = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		t.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		t.NotBefore = claims.NotBefore.Unix()
	}
	return t, nil
}

// IsZero indicates if the IDToken is the zero value.
func (i IDToken) IsZero() bool {
	return i == IDToken{}
}

// LocalAccountID extracts an account's local account ID from an ID token.
func (i IDToken) LocalAccountID() string {
	if i.Oid != "" {
		return i.Oid
	}
	return i.Subject
}

// TokenResponseJSONPayload is the raw JSON from the token endpoint.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExtExpiresIn int64  `json:"ext_expires_in"`
	Foci         string `json:"foci"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	ClientInfo   string `json:"client_info"`
}

// TokenResponse is the information that is returned from a token endpoint
// during a token acquisition flow.
type TokenResponse struct {
	authority.OAuthResponseBase

	AccessToken    string
	RefreshToken   string
	IDToken        IDToken
	FamilyID       string
	GrantedScopes  []string
	DeclinedScopes []string
	ExpiresOn      time.Time
	ExtExpiresOn   time.Time
	RawClientInfo  string
	ClientInfo     ClientInfo
}

// HasAccessToken checks if the TokenResponse has an access token.
func (tr TokenResponse) HasAccessToken() bool {
	return len(tr.AccessToken) > 0
}

// HasRefreshToken checks if the TokenResponse has a refresh token.
func (tr TokenResponse) HasRefreshToken() bool {
	return len(tr.RefreshToken) > 0
}

// NewTokenResponse creates a TokenResponse from the payload the token
// endpoint returned. An OAuth error payload becomes an errors.TokenError,
// with invalid_grant distinguished so callers can evict the dead credential.
func NewTokenResponse(authParameters authority.AuthParams, payload TokenResponseJSONPayload) (TokenResponse, error) {
	if payload.Error != "" {
		kind := errors.Server
		if payload.Error == "invalid_grant" {
			kind = errors.InvalidGrant
		}
		return TokenResponse{}, errors.TokenError{
			Kind:        kind,
			OAuthError:  payload.Error,
			Description: payload.ErrorDescription,
		}
	}

	if payload.AccessToken == "" {
		// Access token is required in a token response.
		return TokenResponse{}, errors.New("response is missing access_token")
	}

	rawClientInfo := payload.ClientInfo
	clientInfo := ClientInfo{}
	// Client info may be empty in some flows.
	if len(rawClientInfo) > 0 {
		rawClientInfoDecoded, err := decodeBase64(rawClientInfo)
		if err != nil {
			return TokenResponse{}, err
		}
		if err := json.Unmarshal(rawClientInfoDecoded, &clientInfo); err != nil {
			return TokenResponse{}, err
		}
	}

	var (
		grantedScopes  []string
		declinedScopes []string
	)
	if len(payload.Scope) == 0 {
		// Per OAuth spec (rfc6749 section-3.3), if no scopes are returned the
		// response is treated as if all requested scopes were granted.
		grantedScopes = authParameters.Scopes
	} else {
		grantedScopes = strings.Split(strings.ToLower(payload.Scope), " ")
		declinedScopes = findDeclinedScopes(authParameters.Scopes, grantedScopes)
	}

	// ID tokens aren't always returned, which is not a reportable error
	// condition, so the parse error is ignored.
	idToken, _ := NewIDToken(payload.IDToken)

	return TokenResponse{
		OAuthResponseBase: payload.OAuthResponseBase,
		AccessToken:       payload.AccessToken,
		RefreshToken:      payload.RefreshToken,
		IDToken:           idToken,
		FamilyID:          payload.Foci,
		ExpiresOn:         time.Now().Add(time.Second * time.Duration(payload.ExpiresIn)),
		ExtExpiresOn:      time.Now().Add(time.Second * time.Duration(payload.ExtExpiresIn)),
		GrantedScopes:     grantedScopes,
		DeclinedScopes:    declinedScopes,
		RawClientInfo:     rawClientInfo,
		ClientInfo:        clientInfo,
	}, nil
}

func findDeclinedScopes(requestedScopes []string, grantedScopes []string) []string {
	declined := []string{}
	grantedMap := map[string]bool{}
	for _, s := range grantedScopes {
		grantedMap[s] = true
	}
	for _, r := range requestedScopes {
		if !grantedMap[r] {
			declined = append(declined, r)
		}
	}
	return declined
}

// decodeBase64 decodes a base64 string (client_info style, possibly missing
// padding) into the JSON bytes it carries.
func decodeBase64(data string) ([]byte, error) {
	if i := len(data) % 4; i != 0 {
		data += strings.Repeat("=", 4-i)
	}
	return base64.StdEncoding.DecodeString(data)
}

// RefreshToken is the representation of a refresh token for encoding to
// storage. A refresh token is environment-scoped: its key has no realm
// component because one refresh token serves every tenant inside its cloud
// environment. It never crosses into another cloud.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	FamilyID       string `json:"family_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
	Target         string `json:"target,omitempty"`
}

// NewRefreshToken is the constructor for RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) RefreshToken {
	return RefreshToken{
		HomeAccountID:  homeID,
		Environment:    env,
		CredentialType: "RefreshToken",
		ClientID:       clientID,
		FamilyID:       familyID,
		Secret:         refreshToken,
	}
}

// Key renders the contract key for this entry. Family refresh tokens key on
// the family id instead of the client id, so sibling apps share one entry.
func (rt RefreshToken) Key() string {
	fourth := rt.FamilyID
	if fourth == "" {
		fourth = rt.ClientID
	}
	return strings.Join(
		[]string{rt.HomeAccountID, rt.Environment, rt.CredentialType, fourth},
		shared.CacheKeySeparator,
	)
}

// IsZero indicates whether this is the zero value.
func (rt RefreshToken) IsZero() bool {
	return rt == RefreshToken{}
}

func (rt RefreshToken) GetSecret() string {
	return rt.Secret
}
