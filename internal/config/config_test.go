package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "exoclaw.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: claude-sonnet
    max_tokens: 1024
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Bind != "127.0.0.1" || cfg.Gateway.Port != 7200 {
		t.Errorf("gateway defaults = %+v", cfg.Gateway)
	}
	if cfg.Memory.EpisodicWindow != 5 {
		t.Errorf("episodic window default = %d, want 5", cfg.Memory.EpisodicWindow)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: mystery
    model: x
    max_tokens: 10
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
}

func TestLoadRejectsZeroMaxTokens(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: x
    max_tokens: 0
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for zero max_tokens")
	}
}

func TestLoadRejectsBindingWithNoDiscriminator(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: x
    max_tokens: 10
bindings:
  - agent_id: main
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for binding with no discriminator")
	}
}

func TestLoadResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: x
    max_tokens: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents[0].APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Agents[0].APIKey)
	}
}

func TestLoadResolvesFallback(t *testing.T) {
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: x
    max_tokens: 10
    fallback: backup
  - id: backup
    provider: openai
    model: y
    max_tokens: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	fb := cfg.Agents[0].ResolvedFallback()
	if fb == nil || fb.ID != "backup" {
		t.Fatalf("ResolvedFallback() = %+v", fb)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_MODEL", "claude-sonnet-4")
	path := writeTempConfig(t, `
agents:
  - id: main
    provider: anthropic
    model: ${TEST_MODEL}
    max_tokens: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents[0].Model != "claude-sonnet-4" {
		t.Errorf("Model = %q", cfg.Agents[0].Model)
	}
}

func TestConfigPathEnvOverride(t *testing.T) {
	t.Setenv("EXOCLAW_CONFIG", "/tmp/custom.yaml")
	if ConfigPath() != "/tmp/custom.yaml" {
		t.Errorf("ConfigPath() = %q", ConfigPath())
	}
}
