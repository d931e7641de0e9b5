// SPDX-License-Identifier: AGPL-3.0-only
package sailpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ksr-verse/MCP/internal/errors"
)

// expirySkew is subtracted from a token's lifetime so a token that is about
// to expire is never sent on the wire.
const expirySkew = 60 * time.Second

// defaultTokenTTL is assumed when the token endpoint omits expires_in.
// IdentityIQ deployments frequently do; the 401-retry in the client covers
// the case where the assumption is too generous.
const defaultTokenTTL = 20 * time.Minute

// TokenCache holds an OAuth2 client-credentials bearer token and refreshes
// it on demand. The first caller that observes a missing or expired token
// performs the refresh while concurrent callers block on the mutex.
type TokenCache struct {
	mu           sync.Mutex
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	value     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenCache creates a token cache for the IdentityIQ OAuth2 endpoint
// under baseURL.
func NewTokenCache(baseURL, clientID, clientSecret string, httpClient *http.Client) *TokenCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenCache{
		tokenURL:     strings.TrimRight(baseURL, "/") + "/identityiq/oauth2/token?grant_type=client_credentials",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Get returns a bearer token whose expiry is in the future, fetching a new
// one from the token endpoint if necessary.
func (tc *TokenCache) Get(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.value != "" && tc.now().Before(tc.expiresAt) {
		return tc.value, nil
	}

	return tc.refreshLocked(ctx)
}

// Invalidate discards the cached token so the next Get fetches a fresh one
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.value = ""
	tc.expiresAt = time.Time{}
}

// refreshLocked fetches a new token. Caller must hold tc.mu.
func (tc *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL, strings.NewReader(""))
	if err != nil {
		return "", errors.Internal(fmt.Errorf("build token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(tc.clientID, tc.clientSecret)

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", errors.Upstreamf("token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Upstreamf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := decodeJSONBody(resp.Body, &payload); err != nil {
		return "", errors.Upstreamf("decode token response: %v", err)
	}
	if payload.AccessToken == "" {
		return "", errors.Upstreamf("token endpoint returned no access_token")
	}

	ttl := defaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	if ttl > expirySkew {
		ttl -= expirySkew
	}

	tc.value = payload.AccessToken
	tc.expiresAt = tc.now().Add(ttl)

	return tc.value, nil
}
