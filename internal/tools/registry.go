// SPDX-License-Identifier: AGPL-3.0-only

// Package tools declares the callable identity-system operations and routes
// tool invocations to the SailPoint client. The registry itself is stateless
// and safe to share across concurrent requests.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ksr-verse/MCP/internal/errors"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
)

// Tool names
const (
	ToolTriggerIdentityRefresh = "trigger_identity_refresh"
	ToolCheckRequestStatus     = "check_request_status"
	ToolGetIdentityInfo        = "get_identity_info"
)

// IdentityClient is the set of identity-system operations the registry
// dispatches to.
type IdentityClient interface {
	TriggerRefresh(ctx context.Context, userID, reason string) *model.ToolResult
	GetRequestStatus(ctx context.Context, requestID string) *model.ToolResult
	GetIdentity(ctx context.Context, userID string) *model.ToolResult
}

// RefreshParams holds parameters for the trigger_identity_refresh tool
type RefreshParams struct {
	UserID string `json:"user_id" description:"The username/user_id extracted from the message (e.g., 'Ram', 'Aaron.Nichols', 'John.Smith'). Look for names mentioned in the message."`
	Reason string `json:"reason,omitempty" description:"Brief reason why refresh is needed (e.g., 'Dynamic access not provisioned', 'Approved but can't access')"`
}

// RequestStatusParams holds parameters for the check_request_status tool
type RequestStatusParams struct {
	RequestID string `json:"request_id" description:"Request ID or user ID"`
}

// IdentityInfoParams holds parameters for the get_identity_info tool
type IdentityInfoParams struct {
	UserID string `json:"user_id" description:"The user ID to get information about"`
}

// Definition describes one callable tool: its name, what it does, and the
// JSON schema of its parameters.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type handlerFunc func(ctx context.Context, args map[string]interface{}) *model.ToolResult

// Registry maps tool names to handlers over the identity client
type Registry struct {
	client   IdentityClient
	store    model.AuditStore
	logger   *logging.Logger
	defs     []Definition
	handlers map[string]handlerFunc
}

// NewRegistry creates the registry of the three identity-system tools.
// store may be nil; audit writes are best-effort either way.
func NewRegistry(client IdentityClient, store model.AuditStore, logger *logging.Logger) *Registry {
	r := &Registry{
		client:   client,
		store:    store,
		logger:   logger,
		handlers: make(map[string]handlerFunc),
	}

	r.defs = []Definition{
		{
			Name: ToolTriggerIdentityRefresh,
			Description: "Trigger identity refresh in SailPoint IIQ when user can't access after approval, " +
				"colleagues have access but they don't, or dynamic access not working. " +
				"Extract the username from the user's message.",
			Parameters: BuildSchema(RefreshParams{}),
		},
		{
			Name:        ToolCheckRequestStatus,
			Description: "Check access request status in SailPoint IIQ",
			Parameters:  BuildSchema(RequestStatusParams{}),
		},
		{
			Name:        ToolGetIdentityInfo,
			Description: "Get detailed identity information from SailPoint IIQ",
			Parameters:  BuildSchema(IdentityInfoParams{}),
		},
	}

	r.handlers[ToolTriggerIdentityRefresh] = func(ctx context.Context, args map[string]interface{}) *model.ToolResult {
		userID, _ := args["user_id"].(string)
		reason, _ := args["reason"].(string)
		if reason == "" {
			reason = "User access issue"
		}
		return r.client.TriggerRefresh(ctx, userID, reason)
	}
	r.handlers[ToolCheckRequestStatus] = func(ctx context.Context, args map[string]interface{}) *model.ToolResult {
		requestID, _ := args["request_id"].(string)
		return r.client.GetRequestStatus(ctx, requestID)
	}
	r.handlers[ToolGetIdentityInfo] = func(ctx context.Context, args map[string]interface{}) *model.ToolResult {
		userID, _ := args["user_id"].(string)
		return r.client.GetIdentity(ctx, userID)
	}

	return r
}

// List returns the definitions of all registered tools
func (r *Registry) List() []Definition {
	return r.defs
}

// Names returns the registered tool names in declaration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Dispatch validates the arguments for the named tool and executes it.
// The returned result always has its status set. The error return carries
// the taxonomy kind (validation errors never reach the network); callers
// that feed results back to the LLM can use the result and ignore the error.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (*model.ToolResult, error) {
	record := &model.InvocationRecord{
		ID:        uuid.NewString(),
		Tool:      name,
		Arguments: argsJSON,
		StartTime: time.Now(),
	}

	result, err := r.dispatch(ctx, name, argsJSON)

	record.EndTime = time.Now()
	record.Duration = record.EndTime.Sub(record.StartTime).String()
	record.Status = result.Status
	record.Output = result.Text()
	if err != nil {
		record.Error = err.Error()
	}
	if userID, ok := result.Payload["user_id"].(string); ok {
		record.UserID = userID
	}
	model.PersistAndLogInvocation(r.store, record, r.logger)

	return result, err
}

func (r *Registry) dispatch(ctx context.Context, name, argsJSON string) (*model.ToolResult, error) {
	def, handler, ok := r.lookup(name)
	if !ok {
		err := errors.Validation(fmt.Sprintf("unknown tool: %s", name))
		return model.ErrorResult(err.Error()), err
	}

	args := map[string]interface{}{}
	if argsJSON != "" {
		if jsonErr := json.Unmarshal([]byte(argsJSON), &args); jsonErr != nil {
			err := errors.Validation(fmt.Sprintf("malformed arguments for %s: %v", name, jsonErr))
			return model.ErrorResult(err.Error()), err
		}
	}

	if err := validateArgs(def, args); err != nil {
		return model.ErrorResult(err.Error()), err
	}

	r.logger.Debugf("Dispatching tool %s with args %v", name, args)
	return handler(ctx, args), nil
}

func (r *Registry) lookup(name string) (Definition, handlerFunc, bool) {
	handler, ok := r.handlers[name]
	if !ok {
		return Definition{}, nil, false
	}
	for _, d := range r.defs {
		if d.Name == name {
			return d, handler, true
		}
	}
	return Definition{}, nil, false
}

// validateArgs checks the schema's required fields before any network call
func validateArgs(def Definition, args map[string]interface{}) error {
	required, _ := def.Parameters["required"].([]string)
	for _, field := range required {
		v, present := args[field]
		if !present {
			return errors.Validation(fmt.Sprintf("missing required argument %q for tool %s", field, def.Name))
		}
		if s, isString := v.(string); isString && s == "" {
			return errors.Validation(fmt.Sprintf("required argument %q for tool %s is empty", field, def.Name))
		}
	}
	return nil
}
