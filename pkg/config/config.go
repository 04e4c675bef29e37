// Package config loads the control plane's configuration from a YAML file or
// from environment variables.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

type Config struct {
	// Partition is the ARN partition of every managed account.
	Partition string `yaml:"partition"`
	// SecurityAccount administers all shared keys.
	SecurityAccount types.AccountID    `yaml:"security_account"`
	Region          types.Region       `yaml:"region"`
	Hub             types.Hub          `yaml:"hub"`
	Tables          catalog.TableNames `yaml:"tables"`
	// EventsTopic receives dataset-updated events. Empty disables publishing.
	EventsTopic types.ARN `yaml:"events_topic"`
	// EnforceMetadataSync makes role-assumption failures during metadata sync
	// fatal (and rolls back the catalog write) instead of logging them.
	EnforceMetadataSync bool `yaml:"enforce_metadata_sync"`
	Verbose             bool `yaml:"verbose"`
}

func Default() *Config {
	return &Config{
		Partition: "aws",
		Hub:       types.HubDefault,
		Tables: catalog.TableNames{
			Datasets:  "datahub-datasets",
			Resources: "datahub-resources",
			Locks:     "datahub-locks",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := Default()
	cfg.Partition = getEnv("DATAHUB_PARTITION", cfg.Partition)
	cfg.SecurityAccount = types.AccountID(getEnv("DATAHUB_SECURITY_ACCOUNT", ""))
	cfg.Region = types.Region(getEnv("DATAHUB_REGION", ""))
	cfg.Hub = types.Hub(getEnv("DATAHUB_HUB", string(cfg.Hub)))
	cfg.Tables.Datasets = getEnv("DATAHUB_DATASETS_TABLE", cfg.Tables.Datasets)
	cfg.Tables.Resources = getEnv("DATAHUB_RESOURCES_TABLE", cfg.Tables.Resources)
	cfg.Tables.Locks = getEnv("DATAHUB_LOCKS_TABLE", cfg.Tables.Locks)
	cfg.EventsTopic = types.ARN(getEnv("DATAHUB_EVENTS_TOPIC", ""))
	cfg.EnforceMetadataSync = getEnv("DATAHUB_ENFORCE_METADATA_SYNC", "") == "true"
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
