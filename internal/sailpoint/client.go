// SPDX-License-Identifier: AGPL-3.0-only

// Package sailpoint is the client for the SailPoint IdentityIQ REST API.
// Authentication uses OAuth2 client credentials with the token cached in
// memory until expiry. Of the three operations only TriggerRefresh has a
// real backing endpoint; the other two are documented placeholders because
// no production API URL exists for them.
package sailpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ksr-verse/MCP/internal/config"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
)

const refreshPath = "/identityiq/plugin/rest/RefreshIdentity/refreshIdentitySingleUser"

// placeholderMessage is returned by the operations that have no backing
// endpoint configured upstream.
const placeholderMessage = "This is a placeholder - API endpoint not yet configured"

// Client talks to the SailPoint IdentityIQ REST API
type Client struct {
	baseURL    string
	tokens     *TokenCache
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a SailPoint client from configuration. A client with
// missing base URL or credentials is still usable: every operation then
// returns a placeholder result instead of making network calls.
func NewClient(cfg *config.SailPointConfig, logger *logging.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     NewTokenCache(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, httpClient),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Configured reports whether the client has enough configuration to make
// real API calls.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.tokens.clientID != "" && c.tokens.clientSecret != ""
}

// TriggerRefresh triggers an identity refresh/aggregation task for a user.
// On a 401 the cached token is invalidated and the call retried exactly
// once; this is the only retry in the system.
func (c *Client) TriggerRefresh(ctx context.Context, userID, reason string) *model.ToolResult {
	if !c.Configured() {
		c.logger.Warnf("trigger_refresh for %s skipped: SailPoint API not configured", userID)
		return model.SuccessResult(map[string]interface{}{
			"message": placeholderMessage,
			"user_id": userID,
			"note":    "trigger_identity_refresh requires SAILPOINT_API_URL, SAILPOINT_CLIENT_ID and SAILPOINT_CLIENT_SECRET",
		})
	}

	c.logger.Infof("Triggering identity refresh for user %s (reason: %s)", userID, reason)

	endpoint := fmt.Sprintf("%s%s?userId=%s", c.baseURL, refreshPath, url.QueryEscape(userID))

	status, body, err := c.get(ctx, endpoint)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("identity refresh request failed: %v", err))
	}

	if status == http.StatusUnauthorized {
		c.logger.Warnf("Got 401 from SailPoint, refreshing token and retrying once")
		c.tokens.Invalidate()
		status, body, err = c.get(ctx, endpoint)
		if err != nil {
			return model.ErrorResult(fmt.Sprintf("identity refresh retry failed: %v", err))
		}
	}

	if status != http.StatusOK {
		c.logger.Errorf("SailPoint refresh API returned status %d: %s", status, string(body))
		return model.ErrorResult(fmt.Sprintf("SailPoint API error: status %d: %s", status, strings.TrimSpace(string(body))))
	}

	var upstream map[string]interface{}
	if err := json.Unmarshal(body, &upstream); err != nil {
		return model.ErrorResult(fmt.Sprintf("decode SailPoint response: %v", err))
	}

	c.logger.Infof("SailPoint refresh response for %s: %v", userID, upstream)

	message, _ := upstream["message"].(string)
	if message == "" {
		message = fmt.Sprintf("Identity refresh triggered for %s", userID)
	}
	taskStatus, _ := upstream["taskStatus"].(string)
	if taskStatus == "" {
		taskStatus = "Unknown"
	}

	return model.SuccessResult(map[string]interface{}{
		"user_id":            userID,
		"message":            message,
		"task_status":        taskStatus,
		"sailpoint_response": upstream,
		"api_endpoint":       endpoint,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

// GetRequestStatus checks an access request status. Placeholder: no backing
// endpoint is configured upstream, so no network call is ever made.
func (c *Client) GetRequestStatus(ctx context.Context, requestID string) *model.ToolResult {
	c.logger.Infof("get_request_status for %s (placeholder)", requestID)

	return model.SuccessResult(map[string]interface{}{
		"message":    placeholderMessage,
		"request_id": requestID,
		"note":       "check_request_status is a placeholder tool - no SailPoint API URL available",
	})
}

// GetIdentity fetches identity details. Placeholder: no backing endpoint is
// configured upstream, so no network call is ever made.
func (c *Client) GetIdentity(ctx context.Context, userID string) *model.ToolResult {
	c.logger.Infof("get_identity for %s (placeholder)", userID)

	return model.SuccessResult(map[string]interface{}{
		"message": placeholderMessage,
		"user_id": userID,
		"note":    "get_identity_info is a placeholder tool - no SailPoint API URL available",
	})
}

// get performs one authenticated GET and returns status code and body
func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// decodeJSONBody decodes a JSON response body into v
func decodeJSONBody(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
