// Package config handles Kestrel configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelhq/kestrel/internal/mcp"
	"github.com/kestrelhq/kestrel/internal/permission"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/kestrel/config.yaml, /etc/kestrel/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kestrel", "config.yaml"))
	}

	paths = append(paths, "/etc/kestrel/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Kestrel configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Model        ModelConfig        `yaml:"model"`
	SystemPrompt string             `yaml:"system_prompt"`
	MaxSteps     int                `yaml:"max_steps"`
	MCPServers   []mcp.ServerConfig `yaml:"mcp_servers"`
	Permissions  []permission.Rule  `yaml:"permissions"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// LLMConfig defines the model provider endpoint.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible API root. Empty means the
	// hosted default.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests. Supports ${ENV} expansion.
	APIKey string `yaml:"api_key"`
	// Timeout bounds each non-streaming request. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig defines the model and its sampling parameters.
type ModelConfig struct {
	Name        string   `yaml:"name"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      "gpt-4o",
			MaxTokens: 4096,
		},
		MaxSteps: 10,
		DataDir:  "data",
	}
}
