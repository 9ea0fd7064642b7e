// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package ops provides the REST clients for the backend services this module
// talks to. It owns the HTTP plumbing in its internal packages; callers
// construct clients only through New.
package ops

import (
	"net/http"

	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/internal/comm"
)

// REST provides the set of clients for talking to token endpoints.
type REST struct {
	AccessTokens accesstokens.Client
}

// New is the constructor for REST. A nil httpClient uses the default shared
// client.
func New(httpClient *http.Client) *REST {
	return &REST{AccessTokens: accesstokens.Client{Comm: comm.New(httpClient)}}
}
