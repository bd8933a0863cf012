// Package config loads service configuration from an optional YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BigQueryConfig enables the durable audit log when both fields are set.
type BigQueryConfig struct {
	// ProjectID is the GCP project holding the audit dataset.
	ProjectID string `yaml:"project_id"`

	// DatasetID is the dataset containing the question_log table.
	DatasetID string `yaml:"dataset_id"`
}

// Config holds all service settings.
type Config struct {
	// Port is the HTTP server port.
	Port string `yaml:"port"`

	// Model is the Gemini model name used by the agent.
	Model string `yaml:"model"`

	// AnswerLanguage is the language the agent is instructed to answer in.
	AnswerLanguage string `yaml:"answer_language"`

	// KeyCandidates is the ordered list of join-key column names.
	KeyCandidates []string `yaml:"key_candidates"`

	// DateColumns are header-table columns normalized to dates when present.
	DateColumns []string `yaml:"date_columns"`

	// ArchiveBucket, when set, retains uploaded CSV pairs in GCS.
	ArchiveBucket string `yaml:"archive_bucket"`

	// BigQuery configures the durable audit sink. Optional.
	BigQuery BigQueryConfig `yaml:"bigquery"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           "8080",
		Model:          "gemini-2.5-flash",
		AnswerLanguage: "português",
		KeyCandidates:  []string{"NÚMERO"},
		DateColumns:    []string{"DataEmissao", "DataEntrada"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.ArchiveBucket = v
	}
	if v := os.Getenv("BQ_PROJECT_ID"); v != "" {
		c.BigQuery.ProjectID = v
	}
	if v := os.Getenv("BQ_DATASET_ID"); v != "" {
		c.BigQuery.DatasetID = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model = v
	}
}

func (c *Config) validate() error {
	if len(c.KeyCandidates) == 0 {
		return fmt.Errorf("key_candidates must not be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	return nil
}

// AuditEnabled reports whether the BigQuery audit sink is configured.
func (c *Config) AuditEnabled() bool {
	return c.BigQuery.ProjectID != "" && c.BigQuery.DatasetID != ""
}
