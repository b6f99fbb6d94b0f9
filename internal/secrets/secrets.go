// Package secrets implements the on-disk credential store: provider API
// keys live under <state_dir>/credentials/<provider>.key with POSIX
// permissions locked down to the owner.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	secureDirPerm  = 0o700
	secureFilePerm = 0o600
)

// normalizeProvider restricts the key store to the providers the gateway
// actually speaks; anything else (including path-traversal attempts smuggled
// in as a "provider" name) is rejected before it ever reaches the
// filesystem.
func normalizeProvider(provider string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "anthropic", "openai":
		return p, nil
	default:
		return "", fmt.Errorf("secrets: unsupported provider for key store: %s", p)
	}
}

// StateDir resolves the directory credentials live under: the parent of
// $EXOCLAW_CONFIG if set, otherwise ~/.exoclaw.
func StateDir() string {
	if path := strings.TrimSpace(os.Getenv("EXOCLAW_CONFIG")); path != "" {
		if dir := filepath.Dir(path); dir != "" {
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".exoclaw")
}

func credentialsDir(stateDir string) string {
	return filepath.Join(stateDir, "credentials")
}

func keyFilePath(stateDir, provider string) (string, error) {
	p, err := normalizeProvider(provider)
	if err != nil {
		return "", err
	}
	return filepath.Join(credentialsDir(stateDir), p+".key"), nil
}

// WriteKeyTo stores apiKey for provider under stateDir, creating the
// credentials directory (mode 0700) and writing the key file (mode 0600).
func WriteKeyTo(stateDir, provider, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", fmt.Errorf("secrets: API key cannot be empty")
	}

	dir := credentialsDir(stateDir)
	if err := os.MkdirAll(dir, secureDirPerm); err != nil {
		return "", fmt.Errorf("secrets: create %s: %w", dir, err)
	}
	if err := os.Chmod(dir, secureDirPerm); err != nil {
		return "", fmt.Errorf("secrets: secure %s: %w", dir, err)
	}

	path, err := keyFilePath(stateDir, provider)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(apiKey), secureFilePerm); err != nil {
		return "", fmt.Errorf("secrets: write %s: %w", path, err)
	}
	if err := os.Chmod(path, secureFilePerm); err != nil {
		return "", fmt.Errorf("secrets: secure %s: %w", path, err)
	}
	return path, nil
}

// ReadKeyFrom loads the stored API key for provider under stateDir, if any.
func ReadKeyFrom(stateDir, provider string) (string, bool) {
	path, err := keyFilePath(stateDir, provider)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", false
	}
	return value, true
}

// StoreAPIKey stores apiKey for provider in the default state directory.
func StoreAPIKey(provider, apiKey string) (string, error) {
	return WriteKeyTo(StateDir(), provider, apiKey)
}

// LoadAPIKey loads apiKey for provider from the default state directory.
func LoadAPIKey(provider string) (string, bool) {
	return ReadKeyFrom(StateDir(), provider)
}
