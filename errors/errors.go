// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package errors defines the error taxonomy shared by the cache, the token
// clients and the public surface. Most of these types exist so that callers
// can distinguish "go run an interactive flow" from real failures without
// string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// Is is equivalent to errors.Is().
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is equivalent to errors.As().
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ErrNotFound is returned when a requested account or credential does not
// exist in the cache. Logical absence, not a storage failure.
var ErrNotFound = errors.New("not found")

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req  *http.Request
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Verbose prints a verbose error message with the request and response.
func (e CallErr) Verbose() string {
	return fmt.Sprintf("%s:\n\tRequest:\n%s\n\tResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}

// StoreErrorKind classifies a StoreError.
type StoreErrorKind int

const (
	// StoreIO indicates the underlying storage medium failed.
	StoreIO StoreErrorKind = iota
	// StoreCorrupt indicates the data read from the storage medium could not
	// be decoded into the cache contract.
	StoreCorrupt
)

func (k StoreErrorKind) String() string {
	if k == StoreCorrupt {
		return "corrupt"
	}
	return "io"
}

// StoreError is a failure of the credential store's underlying medium.
// Logical absence of an entry is never a StoreError; see ErrNotFound.
type StoreError struct {
	Kind StoreErrorKind
	// Op is the store operation that failed, for example "unmarshal".
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("credential store %s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// TokenErrorKind classifies a TokenError.
type TokenErrorKind int

const (
	// InvalidGrant means the token endpoint rejected the grant itself, e.g.
	// a revoked or expired refresh token. The credential is unusable and
	// should be evicted.
	InvalidGrant TokenErrorKind = iota
	// Network means the token endpoint could not be reached.
	Network
	// Server means the token endpoint returned an error other than
	// invalid_grant.
	Server
)

func (k TokenErrorKind) String() string {
	switch k {
	case InvalidGrant:
		return "invalid_grant"
	case Network:
		return "network"
	}
	return "server"
}

// TokenError is an error returned from or while contacting a token endpoint.
type TokenError struct {
	Kind TokenErrorKind
	// OAuthError is the raw "error" field from the endpoint response, if any.
	OAuthError string
	// Description is the raw "error_description" field, if any.
	Description string
	Err         error
}

func (e TokenError) Error() string {
	if e.OAuthError != "" {
		return fmt.Sprintf("token endpoint returned %s: %s", e.OAuthError, e.Description)
	}
	return fmt.Sprintf("token endpoint %s error: %v", e.Kind, e.Err)
}

func (e TokenError) Unwrap() error {
	return e.Err
}

// IsInvalidGrant reports whether err indicates the presented grant (usually a
// refresh token) was rejected by the token endpoint.
func IsInvalidGrant(err error) bool {
	var te TokenError
	return errors.As(err, &te) && te.Kind == InvalidGrant
}

// InteractionRequiredError reports that silent token acquisition cannot
// proceed and the caller must run an interactive flow. It is a defined
// outcome rather than a failure: the cache held no usable credential for the
// requested authority, or the refresh token it held was rejected.
type InteractionRequiredError struct {
	// Reason describes why silent acquisition stopped.
	Reason string
	Err    error
}

func (e InteractionRequiredError) Error() string {
	return "interaction required: " + e.Reason
}

func (e InteractionRequiredError) Unwrap() error {
	return e.Err
}

// IsInteractionRequired reports whether err requires the caller to fall back
// to an interactive flow.
func IsInteractionRequired(err error) bool {
	var ir InteractionRequiredError
	return errors.As(err, &ir)
}

// InvariantError records a cache entry that violates a cache invariant, such
// as a malformed home account id. These are logged and the entry is excluded
// from results; they never fail a whole listing.
type InvariantError struct {
	// Entry identifies the offending cache entry.
	Entry  string
	Reason string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("cache invariant violation on %q: %s", e.Entry, e.Reason)
}
