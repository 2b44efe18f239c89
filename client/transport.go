package client

import (
	"net/http"
)

// refreshTransport adds the bearer token to each request. On a 401 it
// refreshes and replays the request once, provided the body can be replayed.
type refreshTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := t.client.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	next := t.client.renewAfterReject(ctx, token)
	if next == "" || next == token {
		return resp, nil
	}
	retry := withBearer(req, next)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	resp.Body.Close()
	return t.base.RoundTrip(retry)
}

// withBearer returns req unchanged for an empty token, otherwise a clone
// carrying it.
func withBearer(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}
