// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package comm provides the HTTP plumbing for talking to OAuth endpoints.
// Endpoints speak url-encoded forms in and JSON out.
package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/crosscloudid/tokencache/errors"
	"github.com/crosscloudid/tokencache/internal/shared"
	"github.com/google/uuid"
)

// Client provides JSON over url-form calls to OAuth endpoints.
type Client struct {
	HTTPClient *http.Client
}

// New is the constructor for Client. A nil httpClient uses the default shared
// client.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = shared.DefaultClient
	}
	return &Client{HTTPClient: httpClient}
}

// URLFormCall posts qv as an url-encoded form to endpoint and decodes the
// JSON reply into resp. On a non-2xx status the body is still decoded into
// resp when possible, so that callers can inspect the OAuth error payload;
// only an undecodable non-2xx reply becomes a CallErr.
func (c *Client) URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error {
	if len(qv) == 0 {
		return fmt.Errorf("URLFormCall() requires qv to have non-zero length")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse endpoint %q: %w", endpoint, err)
	}

	enc := qv.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(enc))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	addStdHeaders(req.Header)

	reply, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.CallErr{Req: req, Err: fmt.Errorf("server response error: %w", err)}
	}
	defer reply.Body.Close()

	data, err := io.ReadAll(reply.Body)
	if err != nil {
		return errors.CallErr{Req: req, Resp: reply, Err: fmt.Errorf("could not read the body of an HTTP Response: %w", err)}
	}

	decodeErr := json.Unmarshal(data, resp)
	if reply.StatusCode < 200 || reply.StatusCode > 299 {
		if decodeErr != nil {
			return errors.CallErr{
				Req:  req,
				Resp: reply,
				Err:  fmt.Errorf("reply status code was %d", reply.StatusCode),
			}
		}
		// The OAuth error payload decoded; let the caller map it.
		return nil
	}
	if decodeErr != nil {
		return errors.CallErr{Req: req, Resp: reply, Err: fmt.Errorf("json decode error: %w", decodeErr)}
	}
	return nil
}

func addStdHeaders(headers http.Header) {
	headers.Set("client-request-id", uuid.New().String())
	headers.Set("return-client-request-id", "false")
}
