// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"path/filepath"
	"testing"

	"github.com/ksr-verse/MCP/internal/config"
)

// TestCreateApp wires the full application from a config with a fake API key
// and a temp audit database.
func TestCreateApp(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.APIKey = "test-key"
	cfg.Audit.DBPath = filepath.Join(t.TempDir(), "audit.db")     // keep test runs isolated
	cfg.Server.Port = 0                                           // never bound; Start is not called

	app, err := createApp(cfg)
	if err != nil {
		t.Fatalf("createApp: %v", err)
	}
	if app.server == nil {
		t.Fatal("expected server to be created")
	}
	if app.auditStore == nil {
		t.Fatal("expected audit store for primary instance")
	}
	if app.auditLock == nil {
		t.Fatal("expected audit lock for primary instance")
	}

	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// TestCreateAppSecondaryInstance verifies a second app over the same audit
// database runs without the audit trail.
func TestCreateAppSecondaryInstance(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.APIKey = "test-key"
	cfg.Audit.DBPath = filepath.Join(t.TempDir(), "audit.db")

	primary, err := createApp(cfg)
	if err != nil {
		t.Fatalf("createApp primary: %v", err)
	}
	defer func() { _ = primary.Stop() }()

	secondary, err := createApp(cfg)
	if err != nil {
		t.Fatalf("createApp secondary: %v", err)
	}
	defer func() { _ = secondary.Stop() }()

	if secondary.auditStore != nil {
		t.Error("expected secondary instance to run without audit store")
	}
	if secondary.auditLock != nil {
		t.Error("expected secondary instance to hold no audit lock")
	}
}

func TestApplyCommandLineFlags(t *testing.T) {
	cfg := config.DefaultConfig()

	*address = "127.0.0.1"
	*port = 9000
	*logLevel = "debug"
	*aiModel = "llama-3.1-8b-instant"
	*sailpointURL = "http://iiq.example.com:8080"
	*retentionDays = 0
	t.Cleanup(func() {
		*address = ""
		*port = 0
		*logLevel = ""
		*aiModel = ""
		*sailpointURL = ""
		*retentionDays = -1
	})

	applyCommandLineFlagsToConfig(cfg)

	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.AI.Model != "llama-3.1-8b-instant" {
		t.Errorf("Model = %q", cfg.AI.Model)
	}
	if cfg.SailPoint.BaseURL != "http://iiq.example.com:8080" {
		t.Errorf("SailPoint BaseURL = %q", cfg.SailPoint.BaseURL)
	}
	if cfg.Audit.RetentionDays != 0 {
		t.Errorf("RetentionDays = %d", cfg.Audit.RetentionDays)
	}
}

func TestApplyCommandLineFlagsLeavesDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	want := config.DefaultConfig()

	applyCommandLineFlagsToConfig(cfg)

	if cfg.Server.Port != want.Server.Port {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.AI.Model != want.AI.Model {
		t.Errorf("Model = %q, want %q", cfg.AI.Model, want.AI.Model)
	}
	if cfg.Audit.RetentionDays != want.Audit.RetentionDays {
		t.Errorf("RetentionDays = %d, want %d", cfg.Audit.RetentionDays, want.Audit.RetentionDays)
	}
}
