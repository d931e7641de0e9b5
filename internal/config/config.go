// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ksr-verse/MCP/internal/errors"
)

// Config holds all configuration for the support bot
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	SailPoint SailPointConfig
	Audit     AuditConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Name           string
	Version        string
	Address        string
	Port           int
	AllowedOrigins []string
	Debug          bool
}

// AIConfig holds LLM provider settings
type AIConfig struct {
	// Provider selects the chat backend: "openai" (default, covers any
	// OpenAI-compatible endpoint such as Groq) or "anthropic"
	Provider        string
	APIKey          string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	// BaseURL overrides the OpenAI endpoint; defaults to Groq
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// SailPointConfig holds identity-management API settings
type SailPointConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// AuditConfig holds invocation audit store settings
type AuditConfig struct {
	DBPath        string
	RetentionDays int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level    string
	FilePath string
}

// GroqBaseURL is the OpenAI-compatible endpoint of the Groq API.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return &Config{
		Server: ServerConfig{
			Name:    "sailpoint-support-bot",
			Version: "1.0.0",
			Address: "0.0.0.0",
			Port:    8000,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
		},
		AI: AIConfig{
			Provider:    "openai",
			BaseURL:     GroqBaseURL,
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			MaxTokens:   500,
		},
		SailPoint: SailPointConfig{
			Timeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			DBPath:        homeDir + "/.supportbot/audit.db",
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads variables from a .env file in the working directory if one
// exists. Missing files are not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// FromEnv overrides configuration from environment variables
func FromEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	} else if v := os.Getenv("APP_PORT"); v != "" {
		// APP_PORT is the name the original deployment used
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Server.Debug = v == "true" || v == "1"
	}

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicAPIKey = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if temp, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AI.Temperature = temp
		}
	}
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.AI.MaxTokens = n
		}
	}

	if v := os.Getenv("SAILPOINT_API_URL"); v != "" {
		cfg.SailPoint.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SAILPOINT_CLIENT_ID"); v != "" {
		cfg.SailPoint.ClientID = v
	}
	if v := os.Getenv("SAILPOINT_CLIENT_SECRET"); v != "" {
		cfg.SailPoint.ClientSecret = v
	}
	if v := os.Getenv("SAILPOINT_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SailPoint.Timeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("AUDIT_DB_PATH"); v != "" {
		cfg.Audit.DBPath = v
	}
	if v := os.Getenv("AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Audit.RetentionDays = days
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.FilePath = v
	}
}

// LLMAPIKey returns the API key for the configured provider, falling back
// to the generic AI_API_KEY.
func (c *Config) LLMAPIKey() string {
	switch strings.ToLower(c.AI.Provider) {
	case "anthropic":
		if c.AI.AnthropicAPIKey != "" {
			return c.AI.AnthropicAPIKey
		}
	default:
		if c.AI.OpenAIAPIKey != "" {
			return c.AI.OpenAIAPIKey
		}
	}
	return c.AI.APIKey
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Configuration(fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}

	switch strings.ToLower(c.AI.Provider) {
	case "openai", "anthropic":
	default:
		return errors.Configuration(fmt.Sprintf("unsupported AI provider: %s", c.AI.Provider))
	}

	// The LLM key is required for the chat path. In debug mode the server
	// still starts so the HTTP surface and tools can be exercised.
	if c.LLMAPIKey() == "" && !c.Server.Debug {
		return errors.Configuration("LLM API key is not set (GROQ_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}

	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return errors.Configuration(fmt.Sprintf("AI temperature out of range: %v", c.AI.Temperature))
	}
	if c.AI.MaxTokens <= 0 {
		return errors.Configuration(fmt.Sprintf("AI max tokens must be positive: %d", c.AI.MaxTokens))
	}

	if c.Audit.RetentionDays < 0 {
		return errors.Configuration(fmt.Sprintf("audit retention days must not be negative: %d", c.Audit.RetentionDays))
	}

	// SailPoint credentials are optional: without them the identity tools
	// degrade to documented placeholder results rather than failing startup.
	return nil
}
