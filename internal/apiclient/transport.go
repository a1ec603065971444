package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrSessionExpired is returned when a request stays unauthorized after one
// token refresh. Stored tokens are cleared before it is returned.
var ErrSessionExpired = errors.New("session expired, please log in again")

// refreshFunc exchanges a refresh token for a new session
type refreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// authTransport adds the Bearer access token to every request. On a 401 it
// refreshes the session exactly once and replays the request once.
// Requests sent without a stored token pass through untouched.
type authTransport struct {
	base    http.RoundTripper
	tokens  TokenStore
	refresh refreshFunc

	mu sync.Mutex
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	current := t.tokens.Get()
	if current.AccessToken == "" {
		return t.base.RoundTrip(req)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(withToken(req, current.AccessToken, body))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	next, err := t.renew(req.Context(), current)
	if err != nil {
		return nil, err
	}

	resp, err = t.base.RoundTrip(withToken(req, next.AccessToken, body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		t.tokens.Clear()
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// renew refreshes the session unless another request already replaced the
// tokens that were rejected.
func (t *authTransport) renew(ctx context.Context, rejected Tokens) (Tokens, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if latest := t.tokens.Get(); latest.AccessToken != "" && latest.AccessToken != rejected.AccessToken {
		return latest, nil
	}
	if rejected.RefreshToken == "" {
		t.tokens.Clear()
		return Tokens{}, ErrSessionExpired
	}

	next, err := t.refresh(ctx, rejected.RefreshToken)
	if err != nil || next.AccessToken == "" {
		t.tokens.Clear()
		return Tokens{}, ErrSessionExpired
	}
	t.tokens.Set(next)
	return next, nil
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// withToken clones req with a fresh copy of body and the given access token
func withToken(req *http.Request, accessToken string, body []byte) *http.Request {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
