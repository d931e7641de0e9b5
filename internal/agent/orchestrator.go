// SPDX-License-Identifier: AGPL-3.0-only

// Package agent runs the chat exchange with the LLM: one completion with the
// identity tools attached, at most one tool invocation, and a follow-up
// completion when a tool was used.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ksr-verse/MCP/internal/config"
	"github.com/ksr-verse/MCP/internal/errors"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
	"github.com/ksr-verse/MCP/internal/tools"
)

// systemPrompt instructs the model how to triage identity issues and when to
// reach for a tool.
const systemPrompt = `You are a SailPoint IIQ L1 support assistant.

When users report access issues:
1. EXTRACT the username/user_id from the message (e.g., "User Ram", "Aaron.Nichols", "John Smith")
2. Decide if identity refresh is needed
3. Call trigger_identity_refresh with the extracted user_id

Examples:
- "User Ram can't login" -> Extract: user_id="Ram"
- "Aaron.Nichols doesn't have access" -> Extract: user_id="Aaron.Nichols"
- "My colleague John Smith" -> Extract: user_id="John.Smith"

Common scenarios needing identity_refresh:
- Colleagues have access but this user doesn't
- Dynamic access not working
- Should have auto-provisioned but didn't
- Role based access not working

Be direct and helpful.`

// turnState tracks where a chat turn is in the exchange with the LLM.
type turnState int

const (
	awaitingInitialReply turnState = iota
	awaitingFollowupReply
	done
)

// TurnResult is the outcome of one chat turn
type TurnResult struct {
	// Reply is the final natural-language answer for the user
	Reply string
	// ActionTaken is the name of the tool that was executed, nil if none
	ActionTaken *string
	// Messages is the updated conversation history including the new user
	// entry and the assistant/tool entries this turn appended
	Messages []model.ChatMessage
}

// Orchestrator drives one chat turn: completion, optional single tool
// invocation, follow-up completion. It holds no conversation state; the
// caller owns the history.
type Orchestrator struct {
	provider ChatProvider
	registry *tools.Registry
	model    string
	logger   *logging.Logger
}

// NewOrchestrator builds an orchestrator with the provider selected by
// cfg.AI.Provider.
func NewOrchestrator(cfg *config.Config, registry *tools.Registry, logger *logging.Logger) (*Orchestrator, error) {
	provider, err := newChatProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		provider: provider,
		registry: registry,
		model:    cfg.AI.Model,
		logger:   logger,
	}, nil
}

// NewOrchestratorWithProvider builds an orchestrator around an existing
// provider. Used by tests and by callers that construct providers themselves.
func NewOrchestratorWithProvider(provider ChatProvider, registry *tools.Registry, modelName string, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		model:    modelName,
		logger:   logger,
	}
}

// newChatProvider builds the appropriate ChatProvider based on cfg.AI.Provider.
func newChatProvider(cfg *config.Config) (ChatProvider, error) {
	provider := strings.ToLower(cfg.AI.Provider)
	switch provider {
	case "anthropic":
		apiKey := cfg.AI.AnthropicAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, errors.Configuration("Anthropic API key is not set")
		}
		return NewAnthropicProvider(apiKey, cfg.AI.MaxTokens), nil
	default: // "openai" or empty
		apiKey := cfg.AI.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, errors.Configuration("OpenAI/Groq API key is not set")
		}
		return NewOpenAIProvider(apiKey, cfg.AI.BaseURL, cfg.AI.Temperature, cfg.AI.MaxTokens), nil
	}
}

// Handle runs one chat turn. The returned history is the caller's history
// plus the new user entry and one or two new assistant/tool entries, in
// order. At most one tool invocation happens per turn: if the model requests
// several, only the first is honored.
func (o *Orchestrator) Handle(ctx context.Context, userMessage string, history []model.ChatMessage) (*TurnResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, errors.Validation("message must not be empty")
	}

	history = append(history, model.NewChatMessage(model.RoleUser, userMessage))

	msgs := toProviderMessages(history)
	defs := o.toolDefinitions()

	var (
		state       = awaitingInitialReply
		reply       string
		actionTaken *string
	)

	for state != done {
		resp, err := o.provider.CreateCompletion(ctx, o.model, systemPrompt, msgs, defs)
		if err != nil {
			return nil, errors.Upstream(fmt.Errorf("chat completion failed: %w", err))
		}

		switch state {
		case awaitingInitialReply:
			if len(resp.ToolCalls) == 0 {
				reply = resp.Content
				state = done
				continue
			}

			// Honor only the first tool call; further calls in the same
			// turn are dropped.
			call := resp.ToolCalls[0]
			if len(resp.ToolCalls) > 1 {
				o.logger.Warnf("Model requested %d tool calls, honoring only %s", len(resp.ToolCalls), call.Name)
			}
			o.logger.Infof("Model requested tool %s with args %s", call.Name, call.Arguments)

			result, dispatchErr := o.registry.Dispatch(ctx, call.Name, call.Arguments)
			if dispatchErr != nil {
				o.logger.Warnf("Tool %s dispatch rejected: %v", call.Name, dispatchErr)
			}

			name := call.Name
			actionTaken = &name

			// Feed the tool result (success or error) back to the model;
			// a failed tool is reported, not masked.
			msgs = append(msgs, Message{
				Role:      model.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: []ToolCall{call},
			})
			msgs = append(msgs, Message{
				Role:       model.RoleTool,
				Content:    result.Text(),
				ToolCallID: call.ID,
			})
			history = append(history, model.NewChatMessage(model.RoleTool, result.Text()))

			state = awaitingFollowupReply

		case awaitingFollowupReply:
			// Tool cycle is over for this turn; any further tool request
			// from the model is ignored and its text is the final reply.
			reply = resp.Content
			state = done
		}
	}

	if reply == "" {
		reply = "I wasn't able to produce a response. Please try rephrasing your request."
	}

	history = append(history, model.NewChatMessage(model.RoleAssistant, reply))

	return &TurnResult{
		Reply:       reply,
		ActionTaken: actionTaken,
		Messages:    history,
	}, nil
}

// toolDefinitions converts the registry's definitions to the provider-
// agnostic form.
func (o *Orchestrator) toolDefinitions() []ToolDefinition {
	defs := o.registry.List()
	out := make([]ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}

// toProviderMessages converts conversation history to provider messages.
// Tool-role transcript entries are kept in the history for display and audit
// but are not replayed: their tool-call linkage belongs to a finished turn
// and the OpenAI API rejects tool messages without a preceding tool call.
func toProviderMessages(history []model.ChatMessage) []Message {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleTool {
			continue
		}
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
