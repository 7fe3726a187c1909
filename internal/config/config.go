// Package config loads the JSON configuration file, substituting
// ${VAR} and ${VAR:default} references from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  []ProviderConfig `json:"providers"`
	Database   DatabaseConfig   `json:"database"`
	Agents     AgentsConfig     `json:"agents"`
	Discussion DiscussionConfig `json:"discussion"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Fetch      FetchConfig      `json:"fetch"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	// TimeoutSeconds bounds each generation call; expiry is surfaced as
	// a capability failure.
	TimeoutSeconds int `json:"timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type AgentsConfig struct {
	ReflectionThreshold int    `json:"reflection_threshold"`
	Persona             string `json:"persona"`
	Model               string `json:"model"`
	MaxTokens           int    `json:"max_tokens"`
}

type DiscussionConfig struct {
	TurnDelaySeconds int `json:"turn_delay_seconds"`
}

type RetrievalConfig struct {
	CandidateWindow int `json:"candidate_window"`
	MemoryLines     int `json:"memory_lines"`
	ReflectionLines int `json:"reflection_lines"`
}

type FetchConfig struct {
	MaxChars       int `json:"max_chars"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3210
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/agentlab.db"
	}
	if c.Agents.ReflectionThreshold == 0 {
		c.Agents.ReflectionThreshold = 5
	}
	if c.Discussion.TurnDelaySeconds == 0 {
		c.Discussion.TurnDelaySeconds = 5
	}
	if c.Fetch.MaxChars == 0 {
		c.Fetch.MaxChars = 2000
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 15
	}
}
