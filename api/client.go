////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package api is the client for the school-administration REST backend. Only
// the conversation and contact surfaces are wrapped here; the CRUD services
// are external collaborators with their own clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/edudesk/chatkit/creds"
)

// Client wraps the REST backend. Every request carries a bearer token read
// fresh from the credential provider.
type Client struct {
	baseURL string
	hc      *http.Client
	token   creds.Provider
}

// envelope is the response wrapper used by every backend endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error is a failure reported by the backend itself, as opposed to a
// transport failure.
type Error struct {
	Status  int
	Message string
}

// Error adheres to the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// NewClient creates a REST client for the backend at baseURL.
func NewClient(baseURL string, token creds.Provider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 15 * time.Second},
		token:   token,
	}
}

// get performs a GET against the backend, unwraps the response envelope, and
// unmarshals the data payload into out.
func (c *Client) get(
	ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", path)
	}

	token, err := c.token()
	if err != nil {
		return errors.WithMessage(err, "could not read credential")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	jww.TRACE.Printf("[API] GET %s", u)
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", path)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read response from %s", path)
	}

	var env envelope
	if err = json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &Error{Status: resp.StatusCode,
				Message: http.StatusText(resp.StatusCode)}
		}
		return errors.Errorf(
			"malformed response from %s: %+v", path, err)
	}
	if !env.Success {
		return &Error{Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err = json.Unmarshal(env.Data, out); err != nil {
			return errors.Errorf(
				"failed to unmarshal data from %s: %+v", path, err)
		}
	}
	return nil
}
