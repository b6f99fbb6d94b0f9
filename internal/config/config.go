// Package config loads and validates the gateway's YAML configuration:
// bind address, agent definitions, plugin manifests, routing bindings,
// budget limits, and memory settings, exactly the surface enumerated in
// the external interfaces.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root of the gateway's configuration file.
type Config struct {
	Gateway  GatewayConfig    `yaml:"gateway"`
	Agents   []AgentConfig    `yaml:"agents"`
	Plugins  []PluginConfig   `yaml:"plugins"`
	Bindings []BindingConfig  `yaml:"bindings"`
	Budgets  BudgetConfig     `yaml:"budgets"`
	Memory   MemoryConfig     `yaml:"memory"`
}

// GatewayConfig controls the transport's bind address and auth token.
type GatewayConfig struct {
	Bind  string `yaml:"bind"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

// AgentConfig is one named (provider, model, system_prompt, tools)
// configuration. Fallback is resolved eagerly against Agents by ID once the
// whole file is parsed (see resolveFallbacks).
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	APIKey       string   `yaml:"api_key"`
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
	SoulPath     string   `yaml:"soul_path"`
	Tools        []string `yaml:"tools"`
	Fallback     string   `yaml:"fallback"`

	resolvedFallback *AgentConfig
}

// ResolvedFallback returns the AgentConfig named by Fallback, if any and if
// it was found among the file's Agents. Populated by Load (resolveFallbacks).
func (a AgentConfig) ResolvedFallback() *AgentConfig {
	return a.resolvedFallback
}

// PluginConfig is one sandboxed module to load at startup.
type PluginConfig struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"`
	Capabilities []string `yaml:"capabilities"`
	Isolation    string   `yaml:"isolation"`
}

// BindingConfig routes messages matching its discriminators to AgentID.
type BindingConfig struct {
	AgentID string `yaml:"agent_id"`
	Channel string `yaml:"channel"`
	Account string `yaml:"account_id"`
	Peer    string `yaml:"peer_id"`
	Guild   string `yaml:"guild_id"`
	Team    string `yaml:"team_id"`
}

// BudgetConfig sets the three token-budget scopes; zero means unconfigured.
type BudgetConfig struct {
	Session    uint64 `yaml:"session"`
	Daily      uint64 `yaml:"daily"`
	Monthly    uint64 `yaml:"monthly"`
	AuditDBPath string `yaml:"audit_db_path"`
}

// MemoryConfig sets the episodic window size and whether semantic fact
// extraction is enabled.
type MemoryConfig struct {
	EpisodicWindow  int  `yaml:"episodic_window"`
	SemanticEnabled bool `yaml:"semantic_enabled"`
}

// validProviders enumerates the only providers §6 of the configuration
// surface recognizes.
var validProviders = map[string]bool{"anthropic": true, "openai": true}

// Load reads path, expands ${VAR} references, decodes strict YAML (unknown
// fields are a load error), resolves agent.fallback references, resolves
// missing API keys from provider env vars, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyDefaults(&cfg)
	resolveAPIKeys(&cfg)
	resolveFallbacks(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigPath resolves the configuration file path: $EXOCLAW_CONFIG if set,
// otherwise the literal "exoclaw.yaml" in the working directory.
func ConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("EXOCLAW_CONFIG")); v != "" {
		return v
	}
	return "exoclaw.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 7200
	}
	if cfg.Memory.EpisodicWindow == 0 {
		cfg.Memory.EpisodicWindow = 5
	}
	if cfg.Gateway.Token == "" {
		cfg.Gateway.Token = strings.TrimSpace(os.Getenv("EXOCLAW_TOKEN"))
	}
}

// resolveAPIKeys fills in any agent's missing api_key from the provider's
// conventional environment variable.
func resolveAPIKeys(cfg *Config) {
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.APIKey != "" {
			continue
		}
		switch strings.ToLower(a.Provider) {
		case "anthropic":
			a.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			a.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func resolveFallbacks(cfg *Config) {
	byID := make(map[string]*AgentConfig, len(cfg.Agents))
	for i := range cfg.Agents {
		byID[cfg.Agents[i].ID] = &cfg.Agents[i]
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.Fallback == "" {
			continue
		}
		if fb, ok := byID[a.Fallback]; ok {
			a.resolvedFallback = fb
		}
	}
}

// ValidationError aggregates every configuration problem found so an
// operator can fix them all in one pass instead of one-at-a-time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config: validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	for i, a := range cfg.Agents {
		if !validProviders[strings.ToLower(a.Provider)] {
			issues = append(issues, fmt.Sprintf("agents[%d] (%s): provider must be \"anthropic\" or \"openai\", got %q", i, a.ID, a.Provider))
		}
		if a.MaxTokens <= 0 {
			issues = append(issues, fmt.Sprintf("agents[%d] (%s): max_tokens must be >= 1", i, a.ID))
		}
		if strings.TrimSpace(a.ID) == "" {
			issues = append(issues, fmt.Sprintf("agents[%d]: id must be set", i))
		}
	}

	for i, b := range cfg.Bindings {
		if b.Channel == "" && b.Account == "" && b.Peer == "" && b.Guild == "" && b.Team == "" {
			issues = append(issues, fmt.Sprintf("bindings[%d]: at least one discriminator field must be set", i))
		}
		if strings.TrimSpace(b.AgentID) == "" {
			issues = append(issues, fmt.Sprintf("bindings[%d]: agent_id must be set", i))
		}
	}

	for i, p := range cfg.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			issues = append(issues, fmt.Sprintf("plugins[%d]: name must be set", i))
		}
		if strings.TrimSpace(p.Path) == "" {
			issues = append(issues, fmt.Sprintf("plugins[%d] (%s): path must be set", i, p.Name))
		}
		if p.Isolation != "" && p.Isolation != "process" && p.Isolation != "firecracker" {
			issues = append(issues, fmt.Sprintf("plugins[%d] (%s): isolation must be \"process\" or \"firecracker\"", i, p.Name))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
