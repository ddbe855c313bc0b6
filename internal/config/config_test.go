package config

import (
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Confluence.Rate.MaxCalls != 10 || cfg.Confluence.Rate.WindowSeconds != 60 {
		t.Errorf("unexpected confluence rate defaults: %+v", cfg.Confluence.Rate)
	}
	if cfg.LLM.Rate.MaxCalls != 20 {
		t.Errorf("expected llm rate default 20, got %d", cfg.LLM.Rate.MaxCalls)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.LLM.MaxAttempts)
	}
	if cfg.Classifier.MinScore != 1.0 {
		t.Errorf("expected min_score 1.0, got %v", cfg.Classifier.MinScore)
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
confluence:
  base_url: "https://wiki.example.com"
  parent_page_id: "12345"
  rate:
    max_calls: 5
    window_seconds: 30
llm:
  base_url: "https://llm.example.com"
  workers: 2
`
	cfg, err := parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Confluence.BaseURL != "https://wiki.example.com" {
		t.Errorf("base_url not applied: %q", cfg.Confluence.BaseURL)
	}
	if cfg.Confluence.Rate.MaxCalls != 5 || cfg.Confluence.Rate.WindowSeconds != 30 {
		t.Errorf("rate override not applied: %+v", cfg.Confluence.Rate)
	}
	if cfg.LLM.Workers != 2 {
		t.Errorf("workers override not applied: %d", cfg.LLM.Workers)
	}
	// Unset fields keep defaults.
	if cfg.LLM.Model != "gpt-oss" {
		t.Errorf("expected default model, got %q", cfg.LLM.Model)
	}
}

func TestParseEmbeddedDefault(t *testing.T) {
	if _, err := parse(DefaultConfigYAML); err != nil {
		t.Fatalf("embedded default.yaml does not parse: %v", err)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg, _ := parse([]byte(""))
	cfg.Confluence.BaseURL = "https://wiki.example.com"
	cfg.Confluence.ParentPageID = "1"
	cfg.LLM.BaseURL = "https://llm.example.com"
	cfg.Confluence.TokenEnv = "APPGRADER_TEST_MISSING_TOKEN"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "APPGRADER_TEST_MISSING_TOKEN") {
		t.Errorf("expected missing credential error, got %v", err)
	}
}

func TestValidateRateParams(t *testing.T) {
	t.Setenv("APPGRADER_TEST_TOKEN", "x")
	t.Setenv("APPGRADER_TEST_KEY", "x")

	cfg, _ := parse([]byte(""))
	cfg.Confluence.BaseURL = "https://wiki.example.com"
	cfg.Confluence.ParentPageID = "1"
	cfg.Confluence.TokenEnv = "APPGRADER_TEST_TOKEN"
	cfg.LLM.BaseURL = "https://llm.example.com"
	cfg.LLM.APIKeyEnv = "APPGRADER_TEST_KEY"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.Confluence.Rate.MaxCalls = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max_calls")
	}
	cfg.Confluence.Rate.MaxCalls = 10

	cfg.LLM.Workers = 50
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when workers exceed llm rate limit")
	}
}
