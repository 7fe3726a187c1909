package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentlab.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("LAB_API_KEY", "sk-test-123")
	path := writeConfig(t, `{
		"server": {"port": 8080},
		"providers": [
			{"id": "openai", "type": "openai", "api_key": "${LAB_API_KEY}"},
			{"id": "claude", "type": "anthropic", "api_key": "${MISSING_KEY:fallback}"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env substitution failed: %q", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[1].APIKey != "fallback" {
		t.Errorf("default substitution failed: %q", cfg.Providers[1].APIKey)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3210 || cfg.Server.LogLevel != "info" {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Agents.ReflectionThreshold != 5 {
		t.Errorf("reflection threshold default: %d", cfg.Agents.ReflectionThreshold)
	}
	if cfg.Discussion.TurnDelaySeconds != 5 {
		t.Errorf("turn delay default: %d", cfg.Discussion.TurnDelaySeconds)
	}
	if cfg.Fetch.MaxChars != 2000 || cfg.Fetch.TimeoutSeconds != 15 {
		t.Errorf("fetch defaults: %+v", cfg.Fetch)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
