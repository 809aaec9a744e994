// Package api is the client for the auth HTTP API. It maps status codes
// to the sentinel errors in internal/common.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
)

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default *http.Client, e.g. with an
// httptest server's client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) HTTPClient() *http.Client { return c.http }

type errorBody struct {
	Error string `json:"error"`
}

type userBody struct {
	User credentials.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (credentials.User, error) {
	var out userBody
	err := c.call(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out, mapLoginStatus)
	return out.User, err
}

// Login exchanges an identity and secret for a new pair.
func (c *Client) Login(ctx context.Context, email, password string) (credentials.Pair, error) {
	var p credentials.Pair
	err := c.call(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &p, mapLoginStatus)
	return p, err
}

// Refresh redeems a refresh token. Any 401 is common.ErrInvalidCredential;
// the server does not say why.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error) {
	var p credentials.Pair
	err := c.call(ctx, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &p, mapRefreshStatus)
	return p, err
}

// Logout revokes refreshToken, or every session of the caller when it is
// empty.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = map[string]string{"refresh_token": refreshToken}
	}
	return c.call(ctx, http.MethodPost, "/api/auth/logout", accessToken, body, nil, mapStatus)
}

func (c *Client) call(ctx context.Context, method, path, accessToken string, in, out any, mapErr func(int, string) error) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return mapErr(resp.StatusCode, eb.Error)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: error decoding response: %w", common.ErrTransport, err)
	}
	return nil
}

func mapLoginStatus(code int, msg string) error {
	switch code {
	case http.StatusUnauthorized:
		return common.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return common.ErrRateLimited
	case http.StatusConflict:
		return common.ErrAlreadyExists
	case http.StatusBadRequest:
		return common.ErrValidation
	}
	return mapStatus(code, msg)
}

func mapRefreshStatus(code int, msg string) error {
	if code == http.StatusUnauthorized {
		return common.ErrInvalidCredential
	}
	return mapStatus(code, msg)
}

func mapStatus(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case code == http.StatusForbidden:
		return common.ErrForbidden
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", common.ErrTransport, code)
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("unexpected status %d: %s", code, msg)
}
