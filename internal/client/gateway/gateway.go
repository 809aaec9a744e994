// Package gateway sends authenticated requests on behalf of a session. A
// 401 triggers one shared renewal and a single retry.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
)

// TokenSource returns the current access token.
type TokenSource interface {
	AccessToken() string
}

// Renewer returns an access token newer than stale, waiting for a renewal
// if necessary.
type Renewer interface {
	Renew(ctx context.Context, stale string) (string, error)
}

type Gateway struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	renewer Renewer
	logger  logging.Logger
}

func New(baseURL string, httpClient *http.Client, tokens TokenSource, renewer Renewer, logger logging.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		renewer: renewer,
		logger:  logger.With("module", "gateway"),
	}
}

// Do sends req with the current access token. On 401 it renews and resends
// once, replaying the body through req.GetBody; a second 401 is returned as
// common.ErrUnauthorized. The caller owns the returned response body.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token := g.tokens.AccessToken()
	if token == "" {
		var err error
		if token, err = g.renewer.Renew(ctx, ""); err != nil {
			return nil, err
		}
	}

	resp, err := g.send(req, req.Body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	g.logger.Debug(ctx, "access token rejected, renewing", "path", req.URL.Path)

	fresh, err := g.renewer.Renew(ctx, token)
	if err != nil {
		return nil, err
	}

	body := io.ReadCloser(http.NoBody)
	if req.GetBody != nil {
		if body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("error replaying request body: %w", err)
		}
	} else if req.Body != nil && req.Body != http.NoBody {
		return nil, fmt.Errorf("%w: request body cannot be replayed", common.ErrUnauthorized)
	}

	resp, err = g.send(req, body, fresh)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, common.ErrUnauthorized
	}
	return resp, nil
}

// GetJSON fetches path relative to the base URL and decodes the JSON
// response into out. Non-2xx responses are errors.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (g *Gateway) send(req *http.Request, body io.ReadCloser, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Body = body
	r.Header.Set(common.AuthorizationHeader, common.BearerPrefix+token)

	resp, err := g.http.Do(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrTransport, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
