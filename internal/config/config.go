package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Project settings
	ProjectDir   string `json:"project_dir"`
	PromptsDir   string `json:"prompts_dir"`
	FunctionsDir string `json:"functions_dir"`
	StateDir     string `json:"state_dir"`

	// Optional overlay merged into the model catalog at startup.
	ModelsFile string `json:"models_file,omitempty"`

	// Run settings
	Run RunConfig `json:"run"`

	// HTTP settings
	HTTP HTTPConfig `json:"http"`

	// Per-provider overrides
	Providers map[string]ProviderConfig `json:"providers,omitempty"`
}

type RunConfig struct {
	MaxIterations   int           `json:"max_iterations"`
	FunctionTimeout time.Duration `json:"function_timeout"`
}

type HTTPConfig struct {
	Timeout time.Duration `json:"timeout"`
}

type ProviderConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		ProjectDir:   ".",
		PromptsDir:   "prompts",
		FunctionsDir: "functions",
		StateDir:     ".beeline",
		Run: RunConfig{
			MaxIterations:   20,
			FunctionTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout: 2 * time.Minute,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// PromptsPath resolves the prompts directory under the project root.
func (c *Config) PromptsPath(parts ...string) string {
	elems := append([]string{c.ProjectDir, c.PromptsDir}, parts...)
	return filepath.Join(elems...)
}

// FunctionsPath resolves the functions directory under the project root.
func (c *Config) FunctionsPath(parts ...string) string {
	elems := append([]string{c.ProjectDir, c.FunctionsDir}, parts...)
	return filepath.Join(elems...)
}

// StatePath resolves the state directory under the project root.
func (c *Config) StatePath(parts ...string) string {
	elems := append([]string{c.ProjectDir, c.StateDir}, parts...)
	return filepath.Join(elems...)
}

// Provider returns the override block for a provider, or a zero value
// when none is configured.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}
