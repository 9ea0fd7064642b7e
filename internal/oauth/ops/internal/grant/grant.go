// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package grant holds the grant_type values used against token endpoints.
package grant

const (
	AuthCode     = "authorization_code"
	RefreshToken = "refresh_token"
)
