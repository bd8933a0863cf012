package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want gemini-2.5-flash", cfg.Model)
	}
	if len(cfg.KeyCandidates) != 1 || cfg.KeyCandidates[0] != "NÚMERO" {
		t.Errorf("KeyCandidates = %v, want [NÚMERO]", cfg.KeyCandidates)
	}
	if len(cfg.DateColumns) != 2 {
		t.Errorf("DateColumns = %v, want DataEmissao and DataEntrada", cfg.DateColumns)
	}
	if cfg.AuditEnabled() {
		t.Error("audit sink must be off by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9090"
answer_language: inglês
key_candidates:
  - ChaveNF
  - NÚMERO
bigquery:
  project_id: my-project
  dataset_id: invoice_audit
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.AnswerLanguage != "inglês" {
		t.Errorf("AnswerLanguage = %q, want inglês", cfg.AnswerLanguage)
	}
	if len(cfg.KeyCandidates) != 2 || cfg.KeyCandidates[0] != "ChaveNF" {
		t.Errorf("KeyCandidates = %v, want [ChaveNF NÚMERO]", cfg.KeyCandidates)
	}
	// Untouched fields keep their defaults.
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want the default", cfg.Model)
	}
	if !cfg.AuditEnabled() {
		t.Error("audit sink should be on with both BigQuery fields set")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != Default().Port {
		t.Errorf("Port = %q, want the default", cfg.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GCS_BUCKET", "my-bucket")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("BQ_PROJECT_ID", "proj")
	t.Setenv("BQ_DATASET_ID", "ds")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ArchiveBucket != "my-bucket" {
		t.Errorf("ArchiveBucket = %q, want my-bucket", cfg.ArchiveBucket)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q, want gemini-2.5-pro", cfg.Model)
	}
	if !cfg.AuditEnabled() {
		t.Error("audit sink should be on via env overrides")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty key candidates", func(c *Config) { c.KeyCandidates = nil }, true},
		{"empty port", func(c *Config) { c.Port = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
