package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Confluence Confluence `yaml:"confluence"`
	LLM        LLM        `yaml:"llm"`
	Classifier Classifier `yaml:"classifier"`
	Extract    Extract    `yaml:"extract"`
	Output     Output     `yaml:"output"`
	Logging    Logging    `yaml:"logging"`
}

// Confluence configures the content host client.
type Confluence struct {
	BaseURL      string    `yaml:"base_url"`
	LinkBaseURL  string    `yaml:"link_base_url"` // user-facing links; falls back to base_url
	TokenEnv     string    `yaml:"token_env"`
	SpaceKey     string    `yaml:"space_key"`
	ParentPageID string    `yaml:"parent_page_id"`
	Rate         RateLimit `yaml:"rate"`
}

// LLM configures the grading endpoint.
type LLM struct {
	BaseURL       string    `yaml:"base_url"`
	Model         string    `yaml:"model"`
	APIKeyEnv     string    `yaml:"api_key_env"`
	CredentialEnv string    `yaml:"credential_env"` // x-dep-ticket value
	SystemName    string    `yaml:"system_name"`
	UserID        string    `yaml:"user_id"`
	Temperature   float64   `yaml:"temperature"`
	MaxTokens     int       `yaml:"max_tokens"`
	MaxAttempts   int       `yaml:"max_attempts"`
	Workers       int       `yaml:"workers"`
	Rate          RateLimit `yaml:"rate"`
}

// RateLimit is a sliding-window budget for one external service.
type RateLimit struct {
	MaxCalls      int `yaml:"max_calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the window as a duration.
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

type Classifier struct {
	MinScore float64 `yaml:"min_score"`
}

type Extract struct {
	// PartialThreshold is the fraction of required fields that may be
	// missing before parse status degrades to partial. 0 means any missing
	// required field marks the record partial.
	PartialThreshold float64 `yaml:"partial_threshold"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ConfigDir returns the XDG config directory for appgrader.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "appgrader")
}

// DataDir returns the XDG data directory for appgrader.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "appgrader")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/appgrader/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'appgrader init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Confluence: Confluence{
			TokenEnv: "CONFLUENCE_TOKEN",
			Rate:     RateLimit{MaxCalls: 10, WindowSeconds: 60},
		},
		LLM: LLM{
			Model:         "gpt-oss",
			APIKeyEnv:     "LLM_API_KEY",
			CredentialEnv: "LLM_CREDENTIAL_KEY",
			SystemName:    "appgrader",
			UserID:        "system_user",
			Temperature:   0.1,
			MaxTokens:     2048,
			MaxAttempts:   3,
			Workers:       4,
			Rate:          RateLimit{MaxCalls: 20, WindowSeconds: 60},
		},
		Classifier: Classifier{MinScore: 1.0},
		Logging:    Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration a pipeline run depends on. It is the
// only place configuration errors abort the whole operation; everything
// downstream assumes a valid config.
func (c *Config) Validate() error {
	if c.Confluence.BaseURL == "" {
		return fmt.Errorf("confluence.base_url is required")
	}
	if c.Confluence.ParentPageID == "" {
		return fmt.Errorf("confluence.parent_page_id is required")
	}
	if os.Getenv(c.Confluence.TokenEnv) == "" {
		return fmt.Errorf("confluence credential missing: set %s", c.Confluence.TokenEnv)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if os.Getenv(c.LLM.APIKeyEnv) == "" {
		return fmt.Errorf("llm credential missing: set %s", c.LLM.APIKeyEnv)
	}
	for name, r := range map[string]RateLimit{
		"confluence.rate": c.Confluence.Rate,
		"llm.rate":        c.LLM.Rate,
	} {
		if r.MaxCalls <= 0 {
			return fmt.Errorf("%s.max_calls must be positive, got %d", name, r.MaxCalls)
		}
		if r.WindowSeconds <= 0 {
			return fmt.Errorf("%s.window_seconds must be positive, got %d", name, r.WindowSeconds)
		}
	}
	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("llm.max_attempts must be positive, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.Workers > c.LLM.Rate.MaxCalls {
		return fmt.Errorf("llm.workers (%d) must not exceed llm.rate.max_calls (%d)",
			c.LLM.Workers, c.LLM.Rate.MaxCalls)
	}
	if c.Extract.PartialThreshold < 0 || c.Extract.PartialThreshold >= 1 {
		return fmt.Errorf("extract.partial_threshold must be in [0, 1), got %v", c.Extract.PartialThreshold)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the sqlite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "appgrader.db")
}

// ImageDir returns the directory for downloaded page images.
func (c *Config) ImageDir() string {
	return filepath.Join(c.GetDataDir(), "images")
}

// LinkBase returns the base URL used for user-facing page links.
func (c *Config) LinkBase() string {
	if c.Confluence.LinkBaseURL != "" {
		return c.Confluence.LinkBaseURL
	}
	return c.Confluence.BaseURL
}

// ConfluenceToken reads the content-host credential from the environment.
func (c *Config) ConfluenceToken() string {
	return os.Getenv(c.Confluence.TokenEnv)
}

// LLMAPIKey reads the LLM gateway credential from the environment.
func (c *Config) LLMAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// LLMCredential reads the x-dep-ticket value from the environment.
func (c *Config) LLMCredential() string {
	return os.Getenv(c.LLM.CredentialEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
