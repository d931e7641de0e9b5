// SPDX-License-Identifier: AGPL-3.0-only
package sailpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ksr-verse/MCP/internal/config"
	"github.com/ksr-verse/MCP/internal/errors"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Options{Output: io.Discard, Level: logging.Fatal})
}

// fakeSailPoint is a test double for the IdentityIQ API. It serves the OAuth
// token endpoint and the identity refresh endpoint and counts requests.
type fakeSailPoint struct {
	server        *httptest.Server
	tokenCalls    atomic.Int64
	refreshCalls  atomic.Int64
	refreshStatus int
	// tokens issued so far; each token fetch returns a new value
	tokenCounter atomic.Int64
	// when set, the refresh endpoint returns 401 for tokens older than
	// the latest one
	rejectStaleTokens bool
}

func newFakeSailPoint(t *testing.T) *fakeSailPoint {
	t.Helper()

	f := &fakeSailPoint{refreshStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/identityiq/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if user, pass, ok := r.BasicAuth(); !ok || user != "test-client" || pass != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.tokenCounter.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "bearer",
			"expires_in":   600,
		})
	})
	mux.HandleFunc("/identityiq/plugin/rest/RefreshIdentity/refreshIdentitySingleUser", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		auth := r.Header.Get("Authorization")
		latest := fmt.Sprintf("Bearer token-%d", f.tokenCounter.Load())
		if f.rejectStaleTokens && auth != latest {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.refreshStatus != http.StatusOK {
			w.WriteHeader(f.refreshStatus)
			fmt.Fprint(w, "upstream failure")
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":    "Identity refresh task launched",
			"userId":     r.URL.Query().Get("userId"),
			"taskStatus": "Success",
			"status":     "success",
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.SailPointConfig{
		BaseURL:      baseURL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Timeout:      5 * time.Second,
	}
	return NewClient(cfg, testLogger())
}

func TestTokenCacheFetchesAndCaches(t *testing.T) {
	fake := newFakeSailPoint(t)
	tc := NewTokenCache(fake.server.URL, "test-client", "test-secret", nil)

	token, err := tc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if token != "token-1" {
		t.Errorf("Expected 'token-1', got '%s'", token)
	}

	// Second call must hit the cache, not the endpoint
	if _, err := tc.Get(context.Background()); err != nil {
		t.Fatalf("Second Get returned error: %v", err)
	}
	if calls := fake.tokenCalls.Load(); calls != 1 {
		t.Errorf("Expected 1 token fetch, got %d", calls)
	}
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	fake := newFakeSailPoint(t)
	tc := NewTokenCache(fake.server.URL, "test-client", "test-secret", nil)

	now := time.Now()
	tc.now = func() time.Time { return now }

	if _, err := tc.Get(context.Background()); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	// Advance the clock beyond the 600s lifetime
	now = now.Add(15 * time.Minute)

	token, err := tc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after expiry returned error: %v", err)
	}
	if token != "token-2" {
		t.Errorf("Expected a fresh 'token-2' after expiry, got '%s'", token)
	}
	if calls := fake.tokenCalls.Load(); calls != 2 {
		t.Errorf("Expected 2 token fetches, got %d", calls)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	fake := newFakeSailPoint(t)
	tc := NewTokenCache(fake.server.URL, "test-client", "test-secret", nil)

	if _, err := tc.Get(context.Background()); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	tc.Invalidate()

	token, err := tc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after Invalidate returned error: %v", err)
	}
	if token != "token-2" {
		t.Errorf("Expected fresh token after Invalidate, got '%s'", token)
	}
}

func TestTokenCacheBadCredentials(t *testing.T) {
	fake := newFakeSailPoint(t)
	tc := NewTokenCache(fake.server.URL, "wrong-client", "wrong-secret", nil)

	_, err := tc.Get(context.Background())
	if err == nil {
		t.Fatal("Expected error for bad credentials")
	}
	if !errors.IsKind(err, errors.KindUpstream) {
		t.Errorf("Expected an upstream error, got %v", err)
	}
}

func TestTriggerRefreshSuccess(t *testing.T) {
	fake := newFakeSailPoint(t)
	client := newTestClient(t, fake.server.URL)

	result := client.TriggerRefresh(context.Background(), "Aaron.Nichols", "Approved but can't access")

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success status, got '%s' (%v)", result.Status, result.Payload)
	}
	if result.Payload["user_id"] != "Aaron.Nichols" {
		t.Errorf("Expected user_id 'Aaron.Nichols', got %v", result.Payload["user_id"])
	}
	if result.Payload["message"] != "Identity refresh task launched" {
		t.Errorf("Expected upstream message in payload, got %v", result.Payload["message"])
	}
	if result.Payload["task_status"] != "Success" {
		t.Errorf("Expected task_status 'Success', got %v", result.Payload["task_status"])
	}
	if _, ok := result.Payload["sailpoint_response"]; !ok {
		t.Error("Expected raw sailpoint_response in payload")
	}
}

func TestTriggerRefresh401RetriesOnce(t *testing.T) {
	fake := newFakeSailPoint(t)
	fake.rejectStaleTokens = true

	client := newTestClient(t, fake.server.URL)

	// Prime the cache, then issue a newer token so the cached one is stale
	if _, err := client.tokens.Get(context.Background()); err != nil {
		t.Fatalf("Priming token fetch failed: %v", err)
	}
	fake.tokenCounter.Add(1)

	result := client.TriggerRefresh(context.Background(), "Ram", "")

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success after 401 retry, got '%s' (%v)", result.Status, result.Payload)
	}
	if calls := fake.refreshCalls.Load(); calls != 2 {
		t.Errorf("Expected exactly 2 refresh calls (original + one retry), got %d", calls)
	}
}

func TestTriggerRefreshServerError(t *testing.T) {
	fake := newFakeSailPoint(t)
	fake.refreshStatus = http.StatusInternalServerError

	client := newTestClient(t, fake.server.URL)

	result := client.TriggerRefresh(context.Background(), "Ram", "")

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status for HTTP 500, got '%s'", result.Status)
	}
	msg, _ := result.Payload["message"].(string)
	if msg == "" {
		t.Error("Expected a human-readable error message in the payload")
	}
	if calls := fake.refreshCalls.Load(); calls != 1 {
		t.Errorf("Expected no retry on HTTP 500, got %d calls", calls)
	}
}

func TestTriggerRefreshUnreachable(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	result := client.TriggerRefresh(context.Background(), "Ram", "")

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status for unreachable API, got '%s'", result.Status)
	}
}

func TestTriggerRefreshUnconfigured(t *testing.T) {
	cfg := &config.SailPointConfig{Timeout: time.Second}
	client := NewClient(cfg, testLogger())

	result := client.TriggerRefresh(context.Background(), "Ram", "")

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected placeholder result, got status '%s'", result.Status)
	}
	if result.Payload["message"] != placeholderMessage {
		t.Errorf("Expected placeholder message, got %v", result.Payload["message"])
	}
}

func TestPlaceholderToolsMakeNoCalls(t *testing.T) {
	fake := newFakeSailPoint(t)
	client := newTestClient(t, fake.server.URL)

	status := client.GetRequestStatus(context.Background(), "REQ-123")
	if status.Status != model.StatusSuccess {
		t.Errorf("Expected placeholder status result, got '%s'", status.Status)
	}
	if status.Payload["message"] != placeholderMessage {
		t.Errorf("Expected placeholder message, got %v", status.Payload["message"])
	}
	if status.Payload["request_id"] != "REQ-123" {
		t.Errorf("Expected request_id echoed back, got %v", status.Payload["request_id"])
	}

	identity := client.GetIdentity(context.Background(), "Ram")
	if identity.Payload["message"] != placeholderMessage {
		t.Errorf("Expected placeholder message, got %v", identity.Payload["message"])
	}

	if calls := fake.tokenCalls.Load() + fake.refreshCalls.Load(); calls != 0 {
		t.Errorf("Expected placeholder tools to make no outbound calls, got %d", calls)
	}
}

func TestToolResultText(t *testing.T) {
	result := model.ErrorResult("boom")
	text := result.Text()

	var decoded model.ToolResult
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		t.Fatalf("Text() did not produce valid JSON: %v", err)
	}
	if decoded.Status != model.StatusError {
		t.Errorf("Expected status 'error' in flattened text, got '%s'", decoded.Status)
	}
}
