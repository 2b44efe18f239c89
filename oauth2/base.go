// Package oauth2 implements the provider side of delegated login: sending the
// browser to the identity provider, and turning the callback's authorization
// code into a verified Profile.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrMissingState      = errors.New("oauth state cookie missing")
	ErrStateMismatch     = errors.New("oauth state mismatch")
	ErrMissingCode       = errors.New("authorization code missing")
	ErrProviderDenied    = errors.New("provider returned an error")
	ErrIncompleteProfile = errors.New("provider profile incomplete")
)

// Profile is the subset of the provider's user record we rely on.
type Profile struct {
	ProviderID    string
	Email         string
	Name          string
	Avatar        string
	EmailVerified bool
}

// fetchJSON GETs url with an already authorized client and decodes the body
// into dst.
func fetchJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned HTTP %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}
