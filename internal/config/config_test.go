// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("Expected default provider 'openai', got '%s'", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != GroqBaseURL {
		t.Errorf("Expected default base URL '%s', got '%s'", GroqBaseURL, cfg.AI.BaseURL)
	}
	if cfg.AI.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Expected default model 'llama-3.3-70b-versatile', got '%s'", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Errorf("Expected default temperature 0.3, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens != 500 {
		t.Errorf("Expected default max tokens 500, got %d", cfg.AI.MaxTokens)
	}
	if cfg.SailPoint.Timeout != 30*time.Second {
		t.Errorf("Expected default SailPoint timeout 30s, got %v", cfg.SailPoint.Timeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 default allowed origins, got %d", len(cfg.Server.AllowedOrigins))
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("AI_MODEL", "llama-3.1-8b-instant")
	t.Setenv("SAILPOINT_API_URL", "https://iiq.example.com/")
	t.Setenv("SAILPOINT_CLIENT_ID", "client-id")
	t.Setenv("SAILPOINT_CLIENT_SECRET", "client-secret")
	t.Setenv("SAILPOINT_TIMEOUT_SECONDS", "10")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, http://example.com")
	t.Setenv("AUDIT_RETENTION_DAYS", "7")

	cfg := DefaultConfig()
	FromEnv(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.AI.OpenAIAPIKey != "gsk_test" {
		t.Errorf("Expected OpenAI API key 'gsk_test', got '%s'", cfg.AI.OpenAIAPIKey)
	}
	if cfg.AI.Model != "llama-3.1-8b-instant" {
		t.Errorf("Expected model 'llama-3.1-8b-instant', got '%s'", cfg.AI.Model)
	}
	if cfg.SailPoint.BaseURL != "https://iiq.example.com" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.SailPoint.BaseURL)
	}
	if cfg.SailPoint.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", cfg.SailPoint.Timeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://example.com" {
		t.Errorf("Expected trimmed origins, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Audit.RetentionDays != 7 {
		t.Errorf("Expected retention days 7, got %d", cfg.Audit.RetentionDays)
	}
}

func TestFromEnvMalformedNumericsKeepDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("AI_TEMPERATURE", "warm")
	t.Setenv("AI_MAX_TOKENS", "lots")

	cfg := DefaultConfig()
	FromEnv(cfg)

	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000 for unparsable SERVER_PORT, got %d", cfg.Server.Port)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Errorf("Expected default temperature 0.3 for unparsable AI_TEMPERATURE, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens != 500 {
		t.Errorf("Expected default max tokens 500 for unparsable AI_MAX_TOKENS, got %d", cfg.AI.MaxTokens)
	}
}

func TestFromEnvAppPortFallback(t *testing.T) {
	t.Setenv("APP_PORT", "8080")

	cfg := DefaultConfig()
	FromEnv(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected APP_PORT fallback to set port 8080, got %d", cfg.Server.Port)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for missing LLM API key")
	}
}

func TestValidateDebugAllowsMissingAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Debug = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected debug mode to allow missing API key, got %v", err)
	}
}

func TestValidateBadProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.OpenAIAPIKey = "key"
	cfg.AI.Provider = "hal9000"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unsupported provider")
	}
}

func TestValidateBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.OpenAIAPIKey = "key"
	cfg.Server.Port = -1

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for invalid port")
	}
}

func TestLLMAPIKeyPerProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.OpenAIAPIKey = "openai-key"
	cfg.AI.AnthropicAPIKey = "anthropic-key"

	if key := cfg.LLMAPIKey(); key != "openai-key" {
		t.Errorf("Expected 'openai-key' for openai provider, got '%s'", key)
	}

	cfg.AI.Provider = "anthropic"
	if key := cfg.LLMAPIKey(); key != "anthropic-key" {
		t.Errorf("Expected 'anthropic-key' for anthropic provider, got '%s'", key)
	}

	cfg.AI.AnthropicAPIKey = ""
	cfg.AI.APIKey = "generic-key"
	if key := cfg.LLMAPIKey(); key != "generic-key" {
		t.Errorf("Expected fallback to generic key, got '%s'", key)
	}
}
