// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package authority models an authority: a sovereign cloud environment (the
// host) plus the realm (tenant) inside it that issues tokens. Every cache key
// and every token request is scoped by one of these.
package authority

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	authorizationEndpointTemplate = "https://%v/%v/oauth2/v2.0/authorize"
	tokenEndpointTemplate         = "https://%v/%v/oauth2/v2.0/token"

	// AuthorityTypeAAD is the only authority type currently supported.
	AuthorityTypeAAD = "MSSTS"
)

// environmentAliases lists, per sovereign cloud, every host name that refers
// to the same environment. Credentials cached under one alias are valid for
// all of them; they are never valid in another cloud. The table is static
// because the network instance-discovery client is outside this module.
var environmentAliases = [][]string{
	{"login.microsoftonline.com", "login.windows.net", "login.microsoft.com", "sts.windows.net"}, // worldwide
	{"login.microsoftonline.us", "login.usgovcloudapi.net", "login-us.microsoftonline.com"},      // US government
	{"login.chinacloudapi.cn", "login.partner.microsoftonline.cn"},                               // China
	{"login.microsoftonline.de"}, // Germany
}

// TrustedHost checks if a host belongs to a known cloud environment.
func TrustedHost(host string) bool {
	for _, group := range environmentAliases {
		for _, h := range group {
			if h == host {
				return true
			}
		}
	}
	return false
}

// AliasesFor returns every host name referring to the same cloud environment
// as host, including host itself. Hosts outside the alias table alias only
// themselves.
func AliasesFor(host string) []string {
	for _, group := range environmentAliases {
		for _, h := range group {
			if h == host {
				return group
			}
		}
	}
	return []string{host}
}

// SameEnvironment reports whether two hosts belong to the same cloud
// environment.
func SameEnvironment(a, b string) bool {
	for _, alias := range AliasesFor(a) {
		if alias == b {
			return true
		}
	}
	return false
}

// OAuthResponseBase is embedded in every response from an OAuth endpoint.
type OAuthResponseBase struct {
	Error            string `json:"error"`
	SubError         string `json:"suberror"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	Claims           string `json:"claims"`
}

// Info consists of information about the authority.
type Info struct {
	Host                  string
	CanonicalAuthorityURI string
	AuthorityType         string
	Tenant                string
	ValidateAuthority     bool
}

func firstPathSegment(u *url.URL) (string, error) {
	pathParts := strings.Split(u.EscapedPath(), "/")
	if len(pathParts) >= 2 && pathParts[1] != "" {
		return pathParts[1], nil
	}
	return "", errors.New("authority URI has no tenant segment")
}

// NewInfoFromAuthorityURI creates an Info instance from an authority URL of
// the form https://<host>/<tenant>.
func NewInfoFromAuthorityURI(authorityURI string, validateAuthority bool) (Info, error) {
	authorityURI = strings.ToLower(strings.TrimSpace(authorityURI))
	u, err := url.Parse(authorityURI)
	if err != nil {
		return Info{}, fmt.Errorf("couldn't parse authority URL %q: %w", authorityURI, err)
	}
	if u.Scheme != "https" {
		return Info{}, fmt.Errorf("authority(%s) did not start with https://", authorityURI)
	}
	tenant, err := firstPathSegment(u)
	if err != nil {
		return Info{}, err
	}
	host := u.Hostname()
	if validateAuthority && !TrustedHost(host) {
		return Info{}, fmt.Errorf("authority host %q is not a known cloud environment", host)
	}
	return Info{
		Host:                  host,
		CanonicalAuthorityURI: fmt.Sprintf("https://%v/%v/", host, tenant),
		AuthorityType:         AuthorityTypeAAD,
		Tenant:                tenant,
		ValidateAuthority:     validateAuthority,
	}, nil
}

// Endpoints consists of the endpoints for one authority.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	Host                  string
}

// Endpoints returns the endpoints for this authority. Endpoint discovery over
// the network is owned by the caller's discovery client; these are the
// well-known templates.
func (i Info) Endpoints() Endpoints {
	return Endpoints{
		AuthorizationEndpoint: fmt.Sprintf(authorizationEndpointTemplate, i.Host, i.Tenant),
		TokenEndpoint:         fmt.Sprintf(tokenEndpointTemplate, i.Host, i.Tenant),
		Host:                  i.Host,
	}
}

// AuthorizationType represents the type of token flow.
type AuthorizationType int

// These are all the types of token flows.
const (
	ATUnknown AuthorizationType = iota
	ATRefreshToken
	ATAuthCode
	ATInteractive
)

// AuthParams represents the parameters used for authorization for token
// acquisition.
type AuthParams struct {
	AuthorityInfo Info
	CorrelationID string
	Endpoints     Endpoints
	ClientID      string
	HomeAccountID string
	Scopes        []string

	AuthorizationType AuthorizationType
}

// NewAuthParams creates an AuthParams.
func NewAuthParams(clientID string, authorityInfo Info) AuthParams {
	return AuthParams{
		ClientID:      clientID,
		AuthorityInfo: authorityInfo,
		CorrelationID: uuid.New().String(),
		Endpoints:     authorityInfo.Endpoints(),
	}
}

// WithTarget returns a copy of the AuthParams retargeted at another
// authority, keeping the client identity and correlation id.
func (p AuthParams) WithTarget(info Info) AuthParams {
	p.AuthorityInfo = info
	p.Endpoints = info.Endpoints()
	return p
}
