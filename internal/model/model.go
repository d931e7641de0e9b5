// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolResult statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// ChatResponse is the response of POST /chat
type ChatResponse struct {
	Response    string  `json:"response"`
	ActionTaken *string `json:"action_taken"`
}

// ChatMessage is one entry in a conversation. Messages are immutable once
// created and are only ever appended to the in-memory conversation list.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage creates a ChatMessage with a fresh ID and timestamp
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ToolResult is the outcome of a single tool invocation. Status is always
// set; Payload carries the upstream response or an error description.
type ToolResult struct {
	Status  string                 `json:"status"`
	Payload map[string]interface{} `json:"payload"`
}

// SuccessResult creates a success ToolResult with the given payload
func SuccessResult(payload map[string]interface{}) *ToolResult {
	return &ToolResult{Status: StatusSuccess, Payload: payload}
}

// ErrorResult creates an error ToolResult with a human-readable message
func ErrorResult(message string) *ToolResult {
	return &ToolResult{
		Status:  StatusError,
		Payload: map[string]interface{}{"message": message},
	}
}

// Text flattens the result into a JSON string suitable for feeding back to
// the LLM as a tool-role message.
func (r *ToolResult) Text() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","payload":{"message":"failed to encode tool result"}}`
	}
	return string(data)
}

// InvocationRecord is the audit row written for each tool invocation
type InvocationRecord struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	UserID    string    `json:"user_id,omitempty"`
	Arguments string    `json:"arguments,omitempty"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`
}

// AuditStore persists tool invocation records
type AuditStore interface {
	// SaveInvocation persists a single invocation record
	SaveInvocation(record *InvocationRecord) error

	// GetInvocations returns up to limit records for the given tool name,
	// most recent first. An empty tool name matches all tools.
	GetInvocations(tool string, limit int) ([]*InvocationRecord, error)

	// Prune deletes records whose start time is before cutoff and returns
	// the number of rows removed.
	Prune(cutoff time.Time) (int64, error)

	// Close releases the underlying resources
	Close() error
}
